// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package kv defines the storage engine abstraction the crypto store is written
against: an ordered key-value store with named partitions, atomic
transactions spanning several partitions, half-open range scans and a
versioned schema upgrade hook.

Concrete engines live in the subpackages:

  memkv     in-memory engine (tests, ephemeral stores)
  boltkv    file-backed engine on top of go.etcd.io/bbolt
  sqlkv     SQLite engine on top of github.com/mutecomm/go-sqlcipher
  pebblekv  LSM engine on top of github.com/cockroachdb/pebble

Every transaction declares the partitions it is going to touch. Accessing any
other partition fails with ErrUnknownPartition, which keeps callers honest
about the scope of their transactions independent of the engine in use.
*/
package kv

import (
	"bytes"
	"errors"
)

var (
	// ErrNotFound is returned by Tx.Get if a key does not exist.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnknownPartition is returned if a transaction accesses a partition it
	// did not declare or a partition which was never created.
	ErrUnknownPartition = errors.New("kv: unknown partition")
	// ErrReadOnly is returned if a write is attempted in a View transaction.
	ErrReadOnly = errors.New("kv: read-only transaction")
	// ErrClosed is returned if an engine is used after Close.
	ErrClosed = errors.New("kv: engine closed")
	// ErrEmptyKey is returned if a nil or empty key is written.
	ErrEmptyKey = errors.New("kv: empty key")
)

// Range is the half-open key interval [Lower, Upper). A nil Lower starts at
// the first key of the partition, a nil Upper ends after its last key.
type Range struct {
	Lower []byte
	Upper []byte
}

// Contains reports whether key lies inside r.
func (r Range) Contains(key []byte) bool {
	if r.Lower != nil && bytes.Compare(key, r.Lower) < 0 {
		return false
	}
	if r.Upper != nil && bytes.Compare(key, r.Upper) >= 0 {
		return false
	}
	return true
}

// Tx is a transaction over a fixed set of partitions.
// Slices passed to a ScanFunc are only valid until it returns; values
// returned by Get are owned by the caller.
type Tx interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(partition string, key []byte) ([]byte, error)
	// Put stores value under key, replacing any previous value.
	Put(partition string, key, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(partition string, key []byte) error
	// Scan calls fn for every key in r in ascending key order. Scanning stops
	// at the first error returned by fn, which is passed on to the caller.
	Scan(partition string, r Range, fn ScanFunc) error
}

// ScanFunc is called by Tx.Scan for each key-value pair.
type ScanFunc func(key, value []byte) error

// Migrator is handed to an UpgradeFunc to create partitions.
type Migrator interface {
	// CreatePartition creates the named partition. Creating an existing
	// partition is a no-op.
	CreatePartition(name string) error
}

// UpgradeFunc migrates a store from oldVersion to the version passed to
// Engine.Upgrade. It is only called if oldVersion is lower.
type UpgradeFunc func(oldVersion uint32, m Migrator) error

// Engine is an ordered, partitioned key-value store with atomic multi
// partition transactions.
type Engine interface {
	// Upgrade runs fn in a write transaction if the stored schema version is
	// lower than version and records version afterwards.
	Upgrade(version uint32, fn UpgradeFunc) error
	// View runs fn in a read-only transaction over partitions.
	View(partitions []string, fn func(Tx) error) error
	// Update runs fn in a read-write transaction over partitions. If fn
	// returns an error nothing is written and that error is returned,
	// otherwise the transaction is committed.
	Update(partitions []string, fn func(Tx) error) error
	// Close releases all resources held by the engine.
	Close() error
}

// Opener opens the engine backing the store with the given name.
type Opener interface {
	Open(name string) (Engine, error)
}

// KeyedOpener is implemented by openers whose engines can encrypt the
// storage file itself with a key supplied by the store.
type KeyedOpener interface {
	Opener
	OpenWithKey(name string, key []byte) (Engine, error)
}

// Compacter is implemented by engines which can reclaim the space of deleted
// records.
type Compacter interface {
	Compact() error
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(name string) (Engine, error)

// Open calls f(name).
func (f OpenerFunc) Open(name string) (Engine, error) {
	return f(name)
}
