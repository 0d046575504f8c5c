// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlkv

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/mutecomm/cryptostore/kv"
	"github.com/mutecomm/cryptostore/kv/kvtest"
	sqlite3 "github.com/mutecomm/go-sqlcipher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = bytes.Repeat([]byte{0x42}, 32)

func TestEngine(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Opener {
		return &Opener{Dir: t.TempDir()}
	})
}

type keyedOpener struct {
	Opener
}

func (o *keyedOpener) Open(name string) (kv.Engine, error) {
	return o.OpenWithKey(name, testKey)
}

func TestEngineEncrypted(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Opener {
		return &keyedOpener{Opener{Dir: t.TempDir()}}
	})
}

func TestEncryptedFile(t *testing.T) {
	dir := t.TempDir()
	o := &Opener{Dir: dir}
	e, err := o.OpenWithKey("store", testKey)
	require.NoError(t, err)
	require.NoError(t, e.Upgrade(1, func(old uint32, m kv.Migrator) error {
		return m.CreatePartition("core")
	}))
	require.NoError(t, e.Close())

	encrypted, err := sqlite3.IsEncrypted(filepath.Join(dir, "store"+DBSuffix))
	require.NoError(t, err)
	assert.True(t, encrypted)

	// without key
	_, err = o.Open("store")
	assert.Error(t, err)
	// wrong key
	_, err = o.OpenWithKey("store", bytes.Repeat([]byte{0x23}, 32))
	assert.Error(t, err)
	// short key
	_, err = o.OpenWithKey("other", []byte("short"))
	assert.Error(t, err)
}

func TestStatusVacuum(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "status"+DBSuffix), nil)
	require.NoError(t, err)
	defer db.Close()
	autoVacuum, _, err := db.Status()
	require.NoError(t, err)
	assert.Equal(t, "NONE", autoVacuum)
	assert.NoError(t, db.Vacuum())
}

func TestQuote(t *testing.T) {
	q, err := quote("secret_requests_by_info")
	require.NoError(t, err)
	assert.Equal(t, `"secret_requests_by_info"`, q)
	_, err = quote(`bad"name`)
	assert.Error(t, err)
	_, err = quote("")
	assert.Error(t, err)
}
