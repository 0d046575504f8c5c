// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadline(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "passphrase")
	require.NoError(t, os.WriteFile(filename, []byte("secret\nsecond line\n"), 0600))
	fp, err := os.Open(filename)
	require.NoError(t, err)
	line, err := Readline(fp)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), line)
}

func TestCreateDirs(t *testing.T) {
	tmpdir := t.TempDir()
	a := filepath.Join(tmpdir, "a", "b")
	c := filepath.Join(tmpdir, "c")
	require.NoError(t, CreateDirs(a, "", c))
	assert.DirExists(t, a)
	assert.DirExists(t, c)
}
