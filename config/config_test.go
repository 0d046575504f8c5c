// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mutecomm/cryptostore/cipher"
	"github.com/mutecomm/cryptostore/kv/boltkv"
	"github.com/mutecomm/cryptostore/kv/memkv"
	"github.com/mutecomm/cryptostore/kv/pebblekv"
	"github.com/mutecomm/cryptostore/kv/sqlkv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, EngineBolt, c.Engine)
	assert.Equal(t, cipher.DefaultKDFIterations, c.KDFIterations)
	assert.Len(t, c.Options(), 1)
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
engine: pebble
dir: /tmp/store
kdf_iterations: 1000
logconsole: true
`))
	require.NoError(t, err)
	assert.Equal(t, EnginePebble, c.Engine)
	assert.Equal(t, "/tmp/store", c.Dir)
	assert.Equal(t, 1000, c.KDFIterations)
	assert.True(t, c.LogConsole)
	// defaults
	assert.Equal(t, "cryptostore", c.Name)
	assert.Equal(t, "info", c.LogLevel)

	c, err = Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestParseErrors(t *testing.T) {
	for _, data := range []string{
		"engine: leveldb",
		"engin: bolt",
		"name: ''",
		"kdf_iterations: 0",
		"loglevel: loud",
		"dir: ''",
		"engine: [",
	} {
		_, err := Parse([]byte(data))
		assert.Error(t, err, data)
	}
	c, err := Parse([]byte("engine: memory\ndir: ''"))
	require.NoError(t, err)
	assert.Equal(t, "", c.Dir)
}

func TestLoadWrite(t *testing.T) {
	c := Default()
	c.Engine = EngineSQLite
	c.Name = "alice"
	var buf bytes.Buffer
	require.NoError(t, c.Write(&buf))
	filename := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(filename, buf.Bytes(), 0600))
	loaded, err := Load(filename)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOpener(t *testing.T) {
	c := Default()
	assert.IsType(t, &boltkv.Opener{}, c.Opener())
	c.Engine = EngineSQLite
	assert.IsType(t, &sqlkv.Opener{}, c.Opener())
	c.Engine = EnginePebble
	assert.IsType(t, &pebblekv.Opener{}, c.Opener())
	c.Engine = EngineMemory
	assert.IsType(t, &memkv.Opener{}, c.Opener())
}
