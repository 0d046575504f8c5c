// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRangeContains(t *testing.T) {
	r := Range{Lower: []byte("abc:"), Upper: []byte("abc;")}
	assert.True(t, r.Contains([]byte("abc:1")))
	assert.True(t, r.Contains([]byte("abc:")))
	assert.False(t, r.Contains([]byte("abc;")))
	assert.False(t, r.Contains([]byte("abcd:1")))
	assert.False(t, r.Contains([]byte("abc")))
	assert.True(t, Range{}.Contains([]byte("anything")))
	assert.True(t, Range{Lower: []byte("b")}.Contains([]byte("z")))
	assert.False(t, Range{Upper: []byte("b")}.Contains([]byte("b")))
}

func TestPartitionSet(t *testing.T) {
	set := NewPartitionSet([]string{"core", "session"})
	assert.NoError(t, set.Check("core"))
	err := set.Check("devices")
	assert.True(t, errors.Is(err, ErrUnknownPartition))
	assert.Equal(t, ErrEmptyKey, set.CheckWrite("core", nil))
	assert.NoError(t, set.CheckWrite("core", []byte("account")))
}
