// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package sqlkv implements a kv.Engine on top of SQLite, using the SQLCipher
enabled driver "github.com/mutecomm/go-sqlcipher".

Every partition is a table with a BLOB primary key, the schema version is
kept in PRAGMA user_version. If the engine is opened with a key, the whole
database file is AES-256 encrypted by SQLCipher in addition to the
per-record encryption done by the crypto store:

  name.db   SQLCipher encrypted sqlite3 file (if opened with a key)

Opening an existing unencrypted file with a key (or vice versa) fails.
*/
package sqlkv

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mutecomm/cryptostore/kv"
	"github.com/mutecomm/cryptostore/log"
	sqlite3 "github.com/mutecomm/go-sqlcipher"
	"github.com/pkg/errors"
)

// DBSuffix defines the suffix for database files created by an Opener.
const DBSuffix = ".db"

// DB is a kv.Engine backed by a SQLite database.
type DB struct {
	db *sql.DB

	mu     sync.RWMutex
	tables map[string]struct{}
}

// Open opens (or creates) the SQLite database at path. If key is not nil it
// must be 32 bytes long and the database is SQLCipher encrypted with it.
func Open(path string, key []byte) (*DB, error) {
	if key != nil && len(key) != 32 {
		return nil, log.Error("sqlkv: key must be 32 bytes long")
	}
	exists, err := fileExists(path)
	if err != nil {
		return nil, log.Error(err)
	}
	if exists {
		encrypted, err := sqlite3.IsEncrypted(path)
		if err != nil {
			return nil, log.Error(err)
		}
		if encrypted != (key != nil) {
			return nil, log.Errorf("sqlkv: dbfile '%s' encrypted=%t, but key given=%t",
				path, encrypted, key != nil)
		}
	}
	dsn := path
	if key != nil {
		dsn += fmt.Sprintf("?_pragma_key=x'%s'&_pragma_cipher_page_size=4096",
			hex.EncodeToString(key))
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, log.Error(err)
	}
	// SQLite has a single writer, one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	// test key
	if _, err := db.Exec("SELECT count(*) FROM sqlite_master;"); err != nil {
		db.Close()
		return nil, log.Error(err)
	}
	d := &DB{db: db, tables: make(map[string]struct{})}
	if err := d.loadTables(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func fileExists(filename string) (bool, error) {
	_, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (d *DB) loadTables() error {
	rows, err := d.db.Query("SELECT name FROM sqlite_master WHERE type='table';")
	if err != nil {
		return log.Error(err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return log.Error(err)
		}
		d.tables[name] = struct{}{}
	}
	return rows.Err()
}

// Opener opens stores as database files in Dir.
type Opener struct {
	Dir string
}

// Open implements kv.Opener. The database file is not encrypted.
func (o *Opener) Open(name string) (kv.Engine, error) {
	return o.OpenWithKey(name, nil)
}

// OpenWithKey implements kv.KeyedOpener.
func (o *Opener) OpenWithKey(name string, key []byte) (kv.Engine, error) {
	if err := os.MkdirAll(o.Dir, 0700); err != nil {
		return nil, log.Error(err)
	}
	return Open(filepath.Join(o.Dir, name+DBSuffix), key)
}

func quote(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "\"\x00") {
		return "", fmt.Errorf("sqlkv: invalid partition name %q", name)
	}
	return `"` + name + `"`, nil
}

// Upgrade implements kv.Engine.
func (d *DB) Upgrade(version uint32, fn kv.UpgradeFunc) error {
	var old uint32
	if err := d.db.QueryRow("PRAGMA user_version;").Scan(&old); err != nil {
		return log.Error(err)
	}
	if old >= version {
		return nil
	}
	sqlTx, err := d.db.Begin()
	if err != nil {
		return log.Error(err)
	}
	m := &migrator{tx: sqlTx}
	if err := fn(old, m); err != nil {
		sqlTx.Rollback()
		return err
	}
	// PRAGMA statements do not take parameters
	if _, err := sqlTx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", version)); err != nil {
		sqlTx.Rollback()
		return log.Error(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return log.Error(err)
	}
	d.mu.Lock()
	for _, name := range m.created {
		d.tables[name] = struct{}{}
	}
	d.mu.Unlock()
	return nil
}

type migrator struct {
	tx      *sql.Tx
	created []string
}

func (m *migrator) CreatePartition(name string) error {
	table, err := quote(name)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  k BLOB PRIMARY KEY NOT NULL,
  v BLOB NOT NULL
);`, table)
	if _, err := m.tx.Exec(stmt); err != nil {
		return log.Errorf("sqlkv: %q: %s", err, stmt)
	}
	m.created = append(m.created, name)
	return nil
}

// View implements kv.Engine.
func (d *DB) View(partitions []string, fn func(kv.Tx) error) error {
	sqlTx, err := d.db.Begin()
	if err != nil {
		return errors.Wrap(err, "sqlkv: begin")
	}
	defer sqlTx.Rollback()
	return fn(&tx{db: d, tx: sqlTx, declared: kv.NewPartitionSet(partitions)})
}

// Update implements kv.Engine.
func (d *DB) Update(partitions []string, fn func(kv.Tx) error) error {
	sqlTx, err := d.db.Begin()
	if err != nil {
		return errors.Wrap(err, "sqlkv: begin")
	}
	t := &tx{db: d, tx: sqlTx, declared: kv.NewPartitionSet(partitions), writable: true}
	if err := fn(t); err != nil {
		sqlTx.Rollback()
		return err
	}
	return errors.Wrap(sqlTx.Commit(), "sqlkv: commit")
}

// Close implements kv.Engine.
func (d *DB) Close() error {
	return d.db.Close()
}

var autoVacuumModes = []string{
	"NONE",
	"FULL",
	"INCREMENTAL",
}

// Status returns the autoVacuum mode and freelistCount of the database.
func (d *DB) Status() (autoVacuum string, freelistCount int64, err error) {
	var av int64
	if err = d.db.QueryRow("PRAGMA auto_vacuum;").Scan(&av); err != nil {
		return "", 0, log.Error(err)
	}
	if av < 0 || av >= int64(len(autoVacuumModes)) {
		return "", 0, log.Errorf("sqlkv: unknown auto_vacuum mode %d", av)
	}
	autoVacuum = autoVacuumModes[av]
	if err = d.db.QueryRow("PRAGMA freelist_count;").Scan(&freelistCount); err != nil {
		return "", 0, log.Error(err)
	}
	return
}

// Vacuum executes the VACUUM command, which rebuilds the database file and
// drops the pages freed by deleted records.
func (d *DB) Vacuum() error {
	if _, err := d.db.Exec("VACUUM;"); err != nil {
		return log.Error(err)
	}
	return nil
}

// Compact implements kv.Compacter.
func (d *DB) Compact() error {
	return d.Vacuum()
}

type tx struct {
	db       *DB
	tx       *sql.Tx
	declared kv.PartitionSet
	writable bool
}

func (t *tx) table(name string) (string, error) {
	if err := t.declared.Check(name); err != nil {
		return "", err
	}
	t.db.mu.RLock()
	_, ok := t.db.tables[name]
	t.db.mu.RUnlock()
	if !ok {
		return "", kv.ErrUnknownPartition
	}
	return quote(name)
}

func (t *tx) Get(name string, key []byte) ([]byte, error) {
	table, err := t.table(name)
	if err != nil {
		return nil, err
	}
	var value []byte
	err = t.tx.QueryRow("SELECT v FROM "+table+" WHERE k = ?;", key).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		return nil, kv.ErrNotFound
	case err != nil:
		return nil, errors.Wrap(err, "sqlkv: get")
	default:
		return value, nil
	}
}

func (t *tx) Put(name string, key, value []byte) error {
	if !t.writable {
		return kv.ErrReadOnly
	}
	if err := t.declared.CheckWrite(name, key); err != nil {
		return err
	}
	table, err := t.table(name)
	if err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err = t.tx.Exec("INSERT OR REPLACE INTO "+table+" (k, v) VALUES (?, ?);", key, value)
	return errors.Wrap(err, "sqlkv: put")
}

func (t *tx) Delete(name string, key []byte) error {
	if !t.writable {
		return kv.ErrReadOnly
	}
	table, err := t.table(name)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec("DELETE FROM "+table+" WHERE k = ?;", key)
	return errors.Wrap(err, "sqlkv: delete")
}

type row struct {
	k, v []byte
}

func (t *tx) Scan(name string, r kv.Range, fn kv.ScanFunc) error {
	table, err := t.table(name)
	if err != nil {
		return err
	}
	var (
		where []string
		args  []interface{}
	)
	if len(r.Lower) > 0 {
		where = append(where, "k >= ?")
		args = append(args, r.Lower)
	}
	if r.Upper != nil {
		where = append(where, "k < ?")
		args = append(args, r.Upper)
	}
	query := "SELECT k, v FROM " + table
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY k;"
	rows, err := t.tx.Query(query, args...)
	if err != nil {
		return errors.Wrap(err, "sqlkv: scan")
	}
	// read everything first, fn may issue statements on the same connection
	var result []row
	for rows.Next() {
		var rw row
		if err := rows.Scan(&rw.k, &rw.v); err != nil {
			rows.Close()
			return errors.Wrap(err, "sqlkv: scan")
		}
		result = append(result, rw)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return errors.Wrap(err, "sqlkv: scan")
	}
	rows.Close()
	for _, rw := range result {
		if err := fn(rw.k, rw.v); err != nil {
			return err
		}
	}
	return nil
}
