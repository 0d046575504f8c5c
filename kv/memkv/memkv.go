// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memkv implements an in-memory kv.Engine.
//
// A DB forgets everything once the process exits. An Opener keeps the data of
// every store it opened, so that closing and reopening a store by name within
// one process behaves like a file-backed engine.
package memkv

import (
	"sort"
	"sync"

	"github.com/mutecomm/cryptostore/kv"
)

type partition map[string][]byte

func (p partition) clone() partition {
	c := make(partition, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// data is the state shared by all handles of one store.
type data struct {
	mu         sync.RWMutex
	version    uint32
	partitions map[string]partition
}

func newData() *data {
	return &data{partitions: make(map[string]partition)}
}

// DB is a handle to an in-memory store.
type DB struct {
	d *data

	mu     sync.RWMutex
	closed bool
}

// New returns a new empty in-memory DB.
func New() *DB {
	return &DB{d: newData()}
}

// Opener opens in-memory stores by name and remembers their content across
// Close calls. The zero value is ready to use.
type Opener struct {
	mu     sync.Mutex
	stores map[string]*data
}

// Open returns a new handle to the store with the given name.
func (o *Opener) Open(name string) (kv.Engine, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stores == nil {
		o.stores = make(map[string]*data)
	}
	d, ok := o.stores[name]
	if !ok {
		d = newData()
		o.stores[name] = d
	}
	return &DB{d: d}, nil
}

func (db *DB) check() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return kv.ErrClosed
	}
	return nil
}

// Upgrade implements kv.Engine.
func (db *DB) Upgrade(version uint32, fn kv.UpgradeFunc) error {
	if err := db.check(); err != nil {
		return err
	}
	db.d.mu.Lock()
	defer db.d.mu.Unlock()
	if db.d.version >= version {
		return nil
	}
	m := &migrator{created: make(map[string]partition)}
	if err := fn(db.d.version, m); err != nil {
		return err
	}
	for name, p := range m.created {
		if _, ok := db.d.partitions[name]; !ok {
			db.d.partitions[name] = p
		}
	}
	db.d.version = version
	return nil
}

type migrator struct {
	created map[string]partition
}

func (m *migrator) CreatePartition(name string) error {
	if _, ok := m.created[name]; !ok {
		m.created[name] = make(partition)
	}
	return nil
}

// View implements kv.Engine.
func (db *DB) View(partitions []string, fn func(kv.Tx) error) error {
	if err := db.check(); err != nil {
		return err
	}
	db.d.mu.RLock()
	defer db.d.mu.RUnlock()
	tx := &tx{
		declared:   kv.NewPartitionSet(partitions),
		partitions: db.d.partitions,
	}
	return fn(tx)
}

// Update implements kv.Engine. Writes go to copies of the declared
// partitions which replace the originals only if fn succeeds.
func (db *DB) Update(partitions []string, fn func(kv.Tx) error) error {
	if err := db.check(); err != nil {
		return err
	}
	db.d.mu.Lock()
	defer db.d.mu.Unlock()
	working := make(map[string]partition, len(partitions))
	for _, name := range partitions {
		if p, ok := db.d.partitions[name]; ok {
			working[name] = p.clone()
		}
	}
	tx := &tx{
		declared:   kv.NewPartitionSet(partitions),
		partitions: working,
		writable:   true,
	}
	if err := fn(tx); err != nil {
		return err
	}
	for name, p := range working {
		db.d.partitions[name] = p
	}
	return nil
}

// Close implements kv.Engine. The data stays available to the Opener.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closed = true
	return nil
}

type tx struct {
	declared   kv.PartitionSet
	partitions map[string]partition
	writable   bool
}

func (t *tx) partition(name string) (partition, error) {
	if err := t.declared.Check(name); err != nil {
		return nil, err
	}
	p, ok := t.partitions[name]
	if !ok {
		return nil, kv.ErrUnknownPartition
	}
	return p, nil
}

func (t *tx) Get(name string, key []byte) ([]byte, error) {
	p, err := t.partition(name)
	if err != nil {
		return nil, err
	}
	v, ok := p[string(key)]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (t *tx) Put(name string, key, value []byte) error {
	if !t.writable {
		return kv.ErrReadOnly
	}
	if err := t.declared.CheckWrite(name, key); err != nil {
		return err
	}
	p, err := t.partition(name)
	if err != nil {
		return err
	}
	p[string(key)] = append([]byte(nil), value...)
	return nil
}

func (t *tx) Delete(name string, key []byte) error {
	if !t.writable {
		return kv.ErrReadOnly
	}
	p, err := t.partition(name)
	if err != nil {
		return err
	}
	delete(p, string(key))
	return nil
}

func (t *tx) Scan(name string, r kv.Range, fn kv.ScanFunc) error {
	p, err := t.partition(name)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		if r.Contains([]byte(k)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), p[k]); err != nil {
			return err
		}
	}
	return nil
}
