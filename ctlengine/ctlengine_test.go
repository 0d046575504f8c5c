// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctlengine

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mutecomm/cryptostore/cipher"
	"github.com/mutecomm/cryptostore/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, engine, dir string, args ...string) (string, error) {
	t.Helper()
	ce := New()
	var out bytes.Buffer
	ce.out = &out
	ce.app.Writer = io.Discard
	ce.app.ErrWriter = io.Discard
	argv := []string{"cryptostorectl", "--config", "", "--engine", engine,
		"--dir", dir, "--logdir", "", "--loglevel", "error"}
	err := ce.Start(append(argv, args...))
	return out.String(), err
}

func TestTrack(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "bolt", dir, "track", "--dirty", "@bob:example.org")
	require.NoError(t, err)
	assert.Equal(t, "@bob:example.org: tracked\n", out)
	out, err = run(t, "bolt", dir, "track", "@alice:example.org")
	require.NoError(t, err)
	assert.Equal(t, "@alice:example.org: tracked\n", out)
	out, err = run(t, "bolt", dir, "track", "@alice:example.org")
	require.NoError(t, err)
	assert.Equal(t, "@alice:example.org: updated\n", out)

	// tracked users survive a restart
	out, err = run(t, "bolt", dir, "tracked")
	require.NoError(t, err)
	assert.Equal(t, "@alice:example.org\n@bob:example.org *\n", out)
}

func TestInfo(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "bolt", dir, "track", "@bob:example.org")
	require.NoError(t, err)
	out, err := run(t, "bolt", dir, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Engine=bolt\n")
	assert.Contains(t, out, "Name=cryptostore\n")
	assert.Contains(t, out, "TrackedUsers=1\n")
	assert.Contains(t, out, "UsersForKeyQuery=0\n")
	assert.Contains(t, out, "RoomKeys=0\n")
	assert.Contains(t, out, "UserID=\n")
}

func TestDump(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "bolt", dir, "track", "--dirty", "@bob:example.org")
	require.NoError(t, err)
	out, err := run(t, "bolt", dir, "dump")
	require.NoError(t, err)
	assert.Contains(t, out, "TrackedUsers")
	assert.Contains(t, out, "@bob:example.org")
}

func TestDevicesAndRequestsEmpty(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "bolt", dir, "devices", "@bob:example.org")
	require.NoError(t, err)
	assert.Empty(t, out)
	out, err = run(t, "bolt", dir, "requests")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestVacuum(t *testing.T) {
	out, err := run(t, "sqlite", t.TempDir(), "vacuum")
	require.NoError(t, err)
	assert.Equal(t, "sqlite engine: compacted\n", out)
	out, err = run(t, "pebble", t.TempDir(), "vacuum")
	require.NoError(t, err)
	assert.Equal(t, "pebble engine: compacted\n", out)
	out, err = run(t, "bolt", t.TempDir(), "vacuum")
	require.NoError(t, err)
	assert.Equal(t, "bolt engine: nothing to compact\n", out)
}

func TestConfig(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "pebble", dir, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "engine: pebble\n")
	assert.Contains(t, out, "dir: "+dir+"\n")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "config.yaml")
	data := []byte("engine: sqlite\nname: alice\nloglevel: error\nlogdir: \"\"\ndir: " +
		filepath.Join(dir, "db") + "\n")
	require.NoError(t, os.WriteFile(filename, data, 0600))

	ce := New()
	var out bytes.Buffer
	ce.out = &out
	ce.app.Writer = io.Discard
	ce.app.ErrWriter = io.Discard
	err := ce.Start([]string{"cryptostorectl", "--config", filename, "--name", "bob", "info"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Engine=sqlite\n")
	// flags override the configuration file
	assert.Contains(t, out.String(), "Name=bob\n")
}

func TestArguments(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "bolt", dir, "info", "superfluous")
	assert.Error(t, err)
	_, err = run(t, "bolt", dir, "devices")
	assert.Error(t, err)
	_, err = run(t, "unknown", dir, "info")
	assert.Error(t, err)
}

func TestConcurrentClose(t *testing.T) {
	cfg := config.Default()
	cfg.Dir = t.TempDir()
	ce := New()
	ce.config = cfg
	ce.out = io.Discard
	require.NoError(t, ce.openStore(-1))

	done := make(chan error, 1)
	go func() {
		done <- ce.withStore(ce.info)
	}()
	require.NoError(t, ce.Close())
	// the command either finished before Close or saw the closed store
	if err := <-done; err != nil {
		assert.Contains(t, err.Error(), "store is closed")
	}
	assert.NoError(t, ce.Close())
	assert.Error(t, ce.withStore(ce.info))
}

func TestGenpass(t *testing.T) {
	dir := t.TempDir()
	p1, err := run(t, "bolt", dir, "genpass")
	require.NoError(t, err)
	p2, err := run(t, "bolt", dir, "genpass")
	require.NoError(t, err)
	// 32 bytes in unpadded base64 plus newline
	assert.Len(t, p1, 44)
	assert.NotEqual(t, p1, p2)

	var out bytes.Buffer
	assert.Error(t, genpass(&out, cipher.RandFail))
	assert.Empty(t, out.String())
}
