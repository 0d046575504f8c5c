// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pebblekv implements a kv.Engine on top of the Pebble LSM store.
//
// All partitions share one keyspace, a record of partition p is stored under
// p || 0x00 || key. Keys starting with 0x00 are reserved for the schema
// version and the registry of created partitions.
package pebblekv

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/mutecomm/cryptostore/kv"
	"github.com/pkg/errors"
)

// DirSuffix defines the suffix for database directories created by an
// Opener.
const DirSuffix = ".pebble"

var (
	versionKey        = []byte("\x00version")
	partitionRegistry = []byte("\x00partition\x00")
)

// DB is a kv.Engine backed by a Pebble database directory.
type DB struct {
	db *pebble.DB

	// writers are serialized, pebble batches do not detect conflicts
	writeMu sync.Mutex

	mu         sync.RWMutex
	partitions map[string]struct{}
}

// Open opens (or creates) the Pebble database in dir.
func Open(dir string) (*DB, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "pebblekv: open %s", dir)
	}
	d := &DB{db: db, partitions: make(map[string]struct{})}
	if err := d.loadPartitions(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) loadPartitions() error {
	iter, err := d.db.NewIter(&pebble.IterOptions{
		LowerBound: partitionRegistry,
		UpperBound: upperBound(partitionRegistry),
	})
	if err != nil {
		return errors.Wrap(err, "pebblekv: load partitions")
	}
	for iter.First(); iter.Valid(); iter.Next() {
		name := string(iter.Key()[len(partitionRegistry):])
		d.partitions[name] = struct{}{}
	}
	return errors.Wrap(iter.Close(), "pebblekv: load partitions")
}

// Opener opens stores as database directories in Dir.
type Opener struct {
	Dir string
}

// Open implements kv.Opener.
func (o *Opener) Open(name string) (kv.Engine, error) {
	if err := os.MkdirAll(o.Dir, 0700); err != nil {
		return nil, errors.Wrap(err, "pebblekv: create directory")
	}
	return Open(filepath.Join(o.Dir, name+DirSuffix))
}

// upperBound returns the smallest key greater than all keys with prefix p,
// where p ends with 0x00.
func upperBound(p []byte) []byte {
	u := append([]byte(nil), p...)
	u[len(u)-1] = 0x01
	return u
}

func prefix(name string) []byte {
	p := make([]byte, len(name)+1)
	copy(p, name)
	return p
}

func validName(name string) error {
	if name == "" || strings.ContainsRune(name, 0) {
		return errors.Errorf("pebblekv: invalid partition name %q", name)
	}
	return nil
}

func get(r reader, key []byte) ([]byte, error) {
	value, closer, err := r.Get(key)
	if err == pebble.ErrNotFound {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "pebblekv: get")
	}
	defer closer.Close()
	return append([]byte{}, value...), nil
}

// Upgrade implements kv.Engine.
func (d *DB) Upgrade(version uint32, fn kv.UpgradeFunc) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	var old uint32
	v, err := get(d.db, versionKey)
	switch {
	case err == kv.ErrNotFound:
	case err != nil:
		return err
	case len(v) != 4:
		return errors.New("pebblekv: corrupt version record")
	default:
		old = binary.BigEndian.Uint32(v)
	}
	if old >= version {
		return nil
	}
	b := d.db.NewBatch()
	defer b.Close()
	m := &migrator{b: b}
	if err := fn(old, m); err != nil {
		return err
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], version)
	if err := b.Set(versionKey, buf[:], nil); err != nil {
		return errors.Wrap(err, "pebblekv: set version")
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "pebblekv: commit upgrade")
	}
	d.mu.Lock()
	for _, name := range m.created {
		d.partitions[name] = struct{}{}
	}
	d.mu.Unlock()
	return nil
}

type migrator struct {
	b       *pebble.Batch
	created []string
}

func (m *migrator) CreatePartition(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	key := append(append([]byte(nil), partitionRegistry...), name...)
	if err := m.b.Set(key, nil, nil); err != nil {
		return errors.Wrap(err, "pebblekv: create partition")
	}
	m.created = append(m.created, name)
	return nil
}

// View implements kv.Engine. Reads see a consistent snapshot.
func (d *DB) View(partitions []string, fn func(kv.Tx) error) error {
	snap := d.db.NewSnapshot()
	defer snap.Close()
	return fn(&tx{db: d, r: snap, declared: kv.NewPartitionSet(partitions)})
}

// Update implements kv.Engine. Writes are collected in an indexed batch, so
// the transaction reads its own writes, and committed atomically.
func (d *DB) Update(partitions []string, fn func(kv.Tx) error) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	b := d.db.NewIndexedBatch()
	defer b.Close()
	if err := fn(&tx{db: d, r: b, b: b, declared: kv.NewPartitionSet(partitions)}); err != nil {
		return err
	}
	return errors.Wrap(b.Commit(pebble.Sync), "pebblekv: commit")
}

// Close implements kv.Engine.
func (d *DB) Close() error {
	return errors.Wrap(d.db.Close(), "pebblekv: close")
}

// Compact implements kv.Compacter, it compacts the whole keyspace.
func (d *DB) Compact() error {
	iter, err := d.db.NewIter(nil)
	if err != nil {
		return errors.Wrap(err, "pebblekv: compact")
	}
	var first, last []byte
	if iter.First() {
		first = append(first, iter.Key()...)
	}
	if iter.Last() {
		last = append(last, iter.Key()...)
	}
	if err := iter.Close(); err != nil {
		return errors.Wrap(err, "pebblekv: compact")
	}
	if first == nil {
		return nil
	}
	// the end key is exclusive
	last = append(last, 0x00)
	return errors.Wrap(d.db.Compact(first, last, false), "pebblekv: compact")
}

type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

type tx struct {
	db       *DB
	r        reader
	b        *pebble.Batch // nil for read-only transactions
	declared kv.PartitionSet
}

func (t *tx) prefix(name string) ([]byte, error) {
	if err := t.declared.Check(name); err != nil {
		return nil, err
	}
	t.db.mu.RLock()
	_, ok := t.db.partitions[name]
	t.db.mu.RUnlock()
	if !ok {
		return nil, kv.ErrUnknownPartition
	}
	return prefix(name), nil
}

func (t *tx) Get(name string, key []byte) ([]byte, error) {
	p, err := t.prefix(name)
	if err != nil {
		return nil, err
	}
	return get(t.r, append(p, key...))
}

func (t *tx) Put(name string, key, value []byte) error {
	if t.b == nil {
		return kv.ErrReadOnly
	}
	if err := t.declared.CheckWrite(name, key); err != nil {
		return err
	}
	p, err := t.prefix(name)
	if err != nil {
		return err
	}
	return errors.Wrap(t.b.Set(append(p, key...), value, nil), "pebblekv: put")
}

func (t *tx) Delete(name string, key []byte) error {
	if t.b == nil {
		return kv.ErrReadOnly
	}
	p, err := t.prefix(name)
	if err != nil {
		return err
	}
	return errors.Wrap(t.b.Delete(append(p, key...), nil), "pebblekv: delete")
}

func (t *tx) Scan(name string, r kv.Range, fn kv.ScanFunc) error {
	p, err := t.prefix(name)
	if err != nil {
		return err
	}
	opts := &pebble.IterOptions{
		LowerBound: append(append([]byte(nil), p...), r.Lower...),
		UpperBound: upperBound(p),
	}
	if r.Upper != nil {
		opts.UpperBound = append(append([]byte(nil), p...), r.Upper...)
	}
	iter, err := t.r.NewIter(opts)
	if err != nil {
		return errors.Wrap(err, "pebblekv: scan")
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key()[len(p):], iter.Value()); err != nil {
			iter.Close()
			return err
		}
	}
	return errors.Wrap(iter.Close(), "pebblekv: scan")
}
