// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pebblekv

import (
	"testing"

	"github.com/mutecomm/cryptostore/kv"
	"github.com/mutecomm/cryptostore/kv/kvtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Opener {
		return &Opener{Dir: t.TempDir()}
	})
}

func TestPrefixBounds(t *testing.T) {
	p := prefix("session")
	assert.Equal(t, []byte("session\x00"), p)
	assert.Equal(t, []byte("session\x01"), upperBound(p))
	// one partition never overlaps with another one sharing a name prefix
	assert.True(t, string(upperBound(prefix("a"))) <= string(prefix("ab")))
}

func TestInvalidPartition(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()
	err = db.Upgrade(1, func(old uint32, m kv.Migrator) error {
		return m.CreatePartition("bad\x00name")
	})
	assert.Error(t, err)
}

func TestCompact(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Compact())
	require.NoError(t, db.Upgrade(1, func(old uint32, m kv.Migrator) error {
		return m.CreatePartition("core")
	}))
	require.NoError(t, db.Update([]string{"core"}, func(tx kv.Tx) error {
		return tx.Put("core", []byte("account"), []byte("pickle"))
	}))
	require.NoError(t, db.Compact())
	err = db.View([]string{"core"}, func(tx kv.Tx) error {
		v, err := tx.Get("core", []byte("account"))
		assert.Equal(t, []byte("pickle"), v)
		return err
	})
	assert.NoError(t, err)
}
