// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kvtest contains a conformance suite every kv.Engine has to pass.
package kvtest

import (
	"errors"
	"testing"

	"github.com/mutecomm/cryptostore/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewOpener returns an Opener backed by fresh storage for one test.
type NewOpener func(t *testing.T) kv.Opener

var errAbort = errors.New("kvtest: abort")

// Run runs the conformance suite against the engines returned by newOpener.
func Run(t *testing.T, newOpener NewOpener) {
	t.Run("Upgrade", func(t *testing.T) { testUpgrade(t, newOpener(t)) })
	t.Run("PutGetDelete", func(t *testing.T) { testPutGetDelete(t, newOpener(t)) })
	t.Run("Partitions", func(t *testing.T) { testPartitions(t, newOpener(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newOpener(t)) })
	t.Run("ReadOnly", func(t *testing.T) { testReadOnly(t, newOpener(t)) })
	t.Run("Scan", func(t *testing.T) { testScan(t, newOpener(t)) })
	t.Run("Reopen", func(t *testing.T) { testReopen(t, newOpener(t)) })
}

func createAB(oldVersion uint32, m kv.Migrator) error {
	if err := m.CreatePartition("a"); err != nil {
		return err
	}
	return m.CreatePartition("b")
}

func open(t *testing.T, o kv.Opener, name string) kv.Engine {
	e, err := o.Open(name)
	require.NoError(t, err)
	require.NoError(t, e.Upgrade(1, createAB))
	return e
}

func put(t *testing.T, e kv.Engine, partition, key, value string) {
	err := e.Update([]string{partition}, func(tx kv.Tx) error {
		return tx.Put(partition, []byte(key), []byte(value))
	})
	require.NoError(t, err)
}

func get(e kv.Engine, partition, key string) ([]byte, error) {
	var value []byte
	err := e.View([]string{partition}, func(tx kv.Tx) error {
		var err error
		value, err = tx.Get(partition, []byte(key))
		return err
	})
	return value, err
}

func testUpgrade(t *testing.T, o kv.Opener) {
	e, err := o.Open("upgrade")
	require.NoError(t, err)
	var calls []uint32
	record := func(old uint32, m kv.Migrator) error {
		calls = append(calls, old)
		return createAB(old, m)
	}
	require.NoError(t, e.Upgrade(1, record))
	require.NoError(t, e.Upgrade(1, record))
	assert.Equal(t, []uint32{0}, calls)
	require.NoError(t, e.Upgrade(2, func(old uint32, m kv.Migrator) error {
		calls = append(calls, old)
		if err := m.CreatePartition("a"); err != nil {
			return err
		}
		return m.CreatePartition("c")
	}))
	assert.Equal(t, []uint32{0, 1}, calls)
	put(t, e, "c", "key", "value")
	require.NoError(t, e.Close())

	e, err = o.Open("upgrade")
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.Upgrade(2, record))
	assert.Equal(t, []uint32{0, 1}, calls)
	value, err := get(e, "c", "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)
}

func testPutGetDelete(t *testing.T, o kv.Opener) {
	e := open(t, o, "putget")
	defer e.Close()
	_, err := get(e, "a", "missing")
	assert.True(t, errors.Is(err, kv.ErrNotFound))

	put(t, e, "a", "key", "value")
	value, err := get(e, "a", "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	// values returned by Get are copies
	value[0] = 'X'
	value, err = get(e, "a", "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	put(t, e, "a", "key", "other")
	value, err = get(e, "a", "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("other"), value)

	for i := 0; i < 2; i++ {
		err = e.Update([]string{"a"}, func(tx kv.Tx) error {
			return tx.Delete("a", []byte("key"))
		})
		require.NoError(t, err)
	}
	_, err = get(e, "a", "key")
	assert.True(t, errors.Is(err, kv.ErrNotFound))
}

func testPartitions(t *testing.T, o kv.Opener) {
	e := open(t, o, "partitions")
	defer e.Close()
	err := e.Update([]string{"a", "b"}, func(tx kv.Tx) error {
		if err := tx.Put("a", []byte("key"), []byte("in a")); err != nil {
			return err
		}
		return tx.Put("b", []byte("key"), []byte("in b"))
	})
	require.NoError(t, err)
	va, err := get(e, "a", "key")
	require.NoError(t, err)
	vb, err := get(e, "b", "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("in a"), va)
	assert.Equal(t, []byte("in b"), vb)

	// undeclared partition
	err = e.Update([]string{"a"}, func(tx kv.Tx) error {
		return tx.Put("b", []byte("key"), []byte("value"))
	})
	assert.True(t, errors.Is(err, kv.ErrUnknownPartition))
	err = e.View([]string{"a"}, func(tx kv.Tx) error {
		_, err := tx.Get("b", []byte("key"))
		return err
	})
	assert.True(t, errors.Is(err, kv.ErrUnknownPartition))

	// declared, but never created
	err = e.Update([]string{"nope"}, func(tx kv.Tx) error {
		return tx.Put("nope", []byte("key"), []byte("value"))
	})
	assert.Error(t, err)

	// empty key
	err = e.Update([]string{"a"}, func(tx kv.Tx) error {
		return tx.Put("a", nil, []byte("value"))
	})
	assert.True(t, errors.Is(err, kv.ErrEmptyKey))
}

func testRollback(t *testing.T, o kv.Opener) {
	e := open(t, o, "rollback")
	defer e.Close()
	put(t, e, "b", "keep", "old")
	err := e.Update([]string{"a", "b"}, func(tx kv.Tx) error {
		if err := tx.Put("a", []byte("key"), []byte("value")); err != nil {
			return err
		}
		if err := tx.Put("b", []byte("keep"), []byte("new")); err != nil {
			return err
		}
		if err := tx.Delete("b", []byte("keep")); err != nil {
			return err
		}
		return errAbort
	})
	assert.True(t, errors.Is(err, errAbort))
	_, err = get(e, "a", "key")
	assert.True(t, errors.Is(err, kv.ErrNotFound))
	value, err := get(e, "b", "keep")
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), value)
}

func testReadOnly(t *testing.T, o kv.Opener) {
	e := open(t, o, "readonly")
	defer e.Close()
	err := e.View([]string{"a"}, func(tx kv.Tx) error {
		return tx.Put("a", []byte("key"), []byte("value"))
	})
	assert.True(t, errors.Is(err, kv.ErrReadOnly))
	err = e.View([]string{"a"}, func(tx kv.Tx) error {
		return tx.Delete("a", []byte("key"))
	})
	assert.True(t, errors.Is(err, kv.ErrReadOnly))
}

func testScan(t *testing.T, o kv.Opener) {
	e := open(t, o, "scan")
	defer e.Close()
	keys := []string{"abc:2", "abcd:1", "abc;", "ab:1", "abc:1", "abc"}
	err := e.Update([]string{"a"}, func(tx kv.Tx) error {
		for _, k := range keys {
			if err := tx.Put("a", []byte(k), []byte("v"+k)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	scan := func(r kv.Range) ([]string, []string) {
		var ks, vs []string
		err := e.View([]string{"a"}, func(tx kv.Tx) error {
			return tx.Scan("a", r, func(key, value []byte) error {
				ks = append(ks, string(key))
				vs = append(vs, string(value))
				return nil
			})
		})
		require.NoError(t, err)
		return ks, vs
	}

	ks, vs := scan(kv.Range{Lower: []byte("abc:"), Upper: []byte("abc;")})
	assert.Equal(t, []string{"abc:1", "abc:2"}, ks)
	assert.Equal(t, []string{"vabc:1", "vabc:2"}, vs)

	ks, _ = scan(kv.Range{})
	assert.Equal(t, []string{"ab:1", "abc", "abc:1", "abc:2", "abc;", "abcd:1"}, ks)

	ks, _ = scan(kv.Range{Lower: []byte("abc;")})
	assert.Equal(t, []string{"abc;", "abcd:1"}, ks)

	ks, _ = scan(kv.Range{Upper: []byte("abc")})
	assert.Equal(t, []string{"ab:1"}, ks)

	ks, _ = scan(kv.Range{Lower: []byte("x:"), Upper: []byte("x;")})
	assert.Empty(t, ks)

	var n int
	err = e.View([]string{"a"}, func(tx kv.Tx) error {
		return tx.Scan("a", kv.Range{}, func(key, value []byte) error {
			n++
			return errAbort
		})
	})
	assert.True(t, errors.Is(err, errAbort))
	assert.Equal(t, 1, n)
}

func testReopen(t *testing.T, o kv.Opener) {
	e := open(t, o, "reopen")
	put(t, e, "a", "key", "value")
	require.NoError(t, e.Close())

	e = open(t, o, "reopen")
	defer e.Close()
	value, err := get(e, "a", "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	other := open(t, o, "other")
	defer other.Close()
	_, err = get(other, "a", "key")
	assert.True(t, errors.Is(err, kv.ErrNotFound))
}
