// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package interrupt allows to close open stores on SIGINT (Ctrl+C) and
// SIGTERM.
package interrupt

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mutecomm/cryptostore/log"
)

// ShutdownChannel is used to signal that shutdown is in progress. Only the
// first signal is kept, use Shutdown to send on it.
var ShutdownChannel = make(chan error, 1)

var (
	mu       sync.Mutex
	handlers []func()
	signals  chan os.Signal
)

func handle() {
	sig := <-signals
	log.Infof("received %s, shutting down...", sig)
	mu.Lock()
	for _, handler := range handlers {
		handler()
	}
	mu.Unlock()
	Shutdown(nil)
}

// Shutdown signals shutdown with err on ShutdownChannel. It never blocks,
// signals after the first one are dropped.
func Shutdown(err error) {
	select {
	case ShutdownChannel <- err:
	default:
	}
}

// AddInterruptHandler adds a handler to call when a SIGINT (Ctrl+C) or a
// SIGTERM is received. Handlers are called in the order they were added.
func AddInterruptHandler(handler func()) {
	mu.Lock()
	defer mu.Unlock()
	if signals == nil {
		signals = make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		go handle()
	}
	handlers = append(handlers, handler)
}
