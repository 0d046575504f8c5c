// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package boltkv implements a file-backed kv.Engine on top of bbolt.
// Every partition is a top-level bucket, the schema version lives in a
// reserved bucket.
package boltkv

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/mutecomm/cryptostore/kv"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

// FileSuffix defines the suffix for database files created by an Opener.
const FileSuffix = ".bolt"

var (
	metaBucket = []byte("__kv_meta")
	versionKey = []byte("version")
)

// Options configures a DB.
type Options struct {
	// Timeout is the time to wait for the file lock. Zero means 1 second.
	Timeout time.Duration
	// NoSync disables fsync after every commit. Only use it in tests.
	NoSync bool
}

// DB is a kv.Engine backed by a bbolt database file.
type DB struct {
	db *bbolt.DB
}

// Open opens (or creates) the bbolt database at path.
func Open(path string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = &Options{}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: timeout,
		NoSync:  opts.NoSync,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "boltkv: open %s", path)
	}
	return &DB{db: db}, nil
}

// Opener opens stores as files in Dir.
type Opener struct {
	Dir     string
	Options *Options
}

// Open implements kv.Opener.
func (o *Opener) Open(name string) (kv.Engine, error) {
	if err := os.MkdirAll(o.Dir, 0700); err != nil {
		return nil, errors.Wrap(err, "boltkv: create directory")
	}
	return Open(filepath.Join(o.Dir, name+FileSuffix), o.Options)
}

// Upgrade implements kv.Engine.
func (d *DB) Upgrade(version uint32, fn kv.UpgradeFunc) error {
	return d.db.Update(func(btx *bbolt.Tx) error {
		meta, err := btx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return errors.Wrap(err, "boltkv: create meta bucket")
		}
		var old uint32
		if v := meta.Get(versionKey); len(v) == 4 {
			old = binary.BigEndian.Uint32(v)
		}
		if old >= version {
			return nil
		}
		if err := fn(old, &migrator{btx}); err != nil {
			return err
		}
		var v [4]byte
		binary.BigEndian.PutUint32(v[:], version)
		return errors.Wrap(meta.Put(versionKey, v[:]), "boltkv: store version")
	})
}

type migrator struct {
	btx *bbolt.Tx
}

func (m *migrator) CreatePartition(name string) error {
	_, err := m.btx.CreateBucketIfNotExists([]byte(name))
	return errors.Wrapf(err, "boltkv: create partition %q", name)
}

// View implements kv.Engine.
func (d *DB) View(partitions []string, fn func(kv.Tx) error) error {
	return d.db.View(func(btx *bbolt.Tx) error {
		return fn(&tx{btx: btx, declared: kv.NewPartitionSet(partitions)})
	})
}

// Update implements kv.Engine.
func (d *DB) Update(partitions []string, fn func(kv.Tx) error) error {
	return d.db.Update(func(btx *bbolt.Tx) error {
		return fn(&tx{btx: btx, declared: kv.NewPartitionSet(partitions)})
	})
}

// Close implements kv.Engine.
func (d *DB) Close() error {
	return errors.Wrap(d.db.Close(), "boltkv: close")
}

type tx struct {
	btx      *bbolt.Tx
	declared kv.PartitionSet
}

func (t *tx) bucket(name string) (*bbolt.Bucket, error) {
	if err := t.declared.Check(name); err != nil {
		return nil, err
	}
	b := t.btx.Bucket([]byte(name))
	if b == nil {
		return nil, kv.ErrUnknownPartition
	}
	return b, nil
}

func (t *tx) Get(name string, key []byte) ([]byte, error) {
	b, err := t.bucket(name)
	if err != nil {
		return nil, err
	}
	v := b.Get(key)
	if v == nil {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (t *tx) Put(name string, key, value []byte) error {
	if !t.btx.Writable() {
		return kv.ErrReadOnly
	}
	if err := t.declared.CheckWrite(name, key); err != nil {
		return err
	}
	b, err := t.bucket(name)
	if err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	return errors.Wrap(b.Put(key, value), "boltkv: put")
}

func (t *tx) Delete(name string, key []byte) error {
	if !t.btx.Writable() {
		return kv.ErrReadOnly
	}
	b, err := t.bucket(name)
	if err != nil {
		return err
	}
	return errors.Wrap(b.Delete(key), "boltkv: delete")
}

func (t *tx) Scan(name string, r kv.Range, fn kv.ScanFunc) error {
	b, err := t.bucket(name)
	if err != nil {
		return err
	}
	c := b.Cursor()
	var k, v []byte
	if len(r.Lower) == 0 {
		k, v = c.First()
	} else {
		k, v = c.Seek(r.Lower)
	}
	for ; k != nil; k, v = c.Next() {
		if r.Upper != nil && bytes.Compare(k, r.Upper) >= 0 {
			break
		}
		if v == nil {
			// nested bucket
			continue
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}
