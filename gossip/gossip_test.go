// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gossip

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsKey(t *testing.T) {
	info := SecretInfo{RoomKey: &RequestedKeyInfo{
		Algorithm: "m.megolm.v1.aes-sha2",
		RoomID:    "!room:example.org",
		SenderKey: "curve1",
		SessionID: "group1",
	}}
	key, err := info.AsKey()
	require.NoError(t, err)
	assert.Equal(t, "!room:example.org|curve1|m.megolm.v1.aes-sha2|group1", key)

	key, err = SecretInfo{SecretName: "m.cross_signing.master"}.AsKey()
	require.NoError(t, err)
	assert.Equal(t, "m.cross_signing.master", key)

	_, err = SecretInfo{}.AsKey()
	assert.Equal(t, ErrEmptyInfo, err)
}

func TestNewRequest(t *testing.T) {
	info := SecretInfo{SecretName: "m.megolm_backup.v1"}
	r1 := NewRequest("@alice:example.org", info)
	r2 := NewRequest("@alice:example.org", info)
	assert.NotEqual(t, r1.RequestID, r2.RequestID)
	_, err := uuid.Parse(r1.RequestID)
	assert.NoError(t, err)
	assert.False(t, r1.SentOut)
	assert.Equal(t, info, r1.Info)
}
