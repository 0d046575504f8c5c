// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package boltkv

import (
	"path/filepath"
	"testing"

	"github.com/mutecomm/cryptostore/kv"
	"github.com/mutecomm/cryptostore/kv/kvtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Opener {
		return &Opener{Dir: t.TempDir(), Options: &Options{NoSync: true}}
	})
}

func TestOpenerFileName(t *testing.T) {
	dir := t.TempDir()
	o := &Opener{Dir: filepath.Join(dir, "sub")}
	e, err := o.Open("alice")
	require.NoError(t, err)
	require.NoError(t, e.Close())
	assert.FileExists(t, filepath.Join(dir, "sub", "alice"+FileSuffix))
}
