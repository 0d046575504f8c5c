/*
Package log implements the logging framework of the crypto store.

See https://github.com/cihub/seelog/wiki/Log-levels for an introduction to the
different logging levels.

Logging is disabled until Init (or UseLogger) is called, so that the store can
be embedded into a messaging client without writing anything on its own.

All error conditions are logged exactly once, as early as possible: errors
returned by external packages (storage engines, the codec, the operating
system) are wrapped in a log.Error() call where they enter our code. Errors we
create ourselves are created with log.Error[f](). Bulk reads which skip a
record that cannot be decoded report that with log.Warn[f](), because the
caller never sees the dropped record as an error.
*/
package log
