// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package olm

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/mutecomm/cryptostore/cipher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pickleKey = bytes.Repeat([]byte{0x01}, 32)
	wrongKey  = bytes.Repeat([]byte{0x02}, 32)
	alice     = AccountInfo{
		UserID:   "@alice:example.org",
		DeviceID: "ALICEDEVICE",
		IdentityKeys: IdentityKeys{
			Curve25519: "curve-alice",
			Ed25519:    "ed-alice",
		},
	}
)

func TestAccountPickle(t *testing.T) {
	a := &Account{
		UserID:           alice.UserID,
		DeviceID:         alice.DeviceID,
		IdentityKeys:     alice.IdentityKeys,
		Shared:           true,
		UploadedKeyCount: 50,
		State:            []byte("one-time keys"),
	}
	pickle, err := a.Pickle(pickleKey)
	require.NoError(t, err)
	b, err := UnpickleAccount(pickle, pickleKey)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, alice, b.Info())

	_, err = UnpickleAccount(pickle, wrongKey)
	assert.True(t, errors.Is(err, ErrUnpickle))
}

func TestPickleLabels(t *testing.T) {
	s := NewSession(alice, "curve1", "session1", []byte("ratchet"))
	pickle, err := s.Pickle(pickleKey)
	require.NoError(t, err)
	// a session pickle is not an account pickle
	_, err = UnpickleAccount(pickle, pickleKey)
	assert.True(t, errors.Is(err, ErrUnpickle))
}

func TestPickleFormat(t *testing.T) {
	pickle, err := cipher.Seal(pickleKey, []byte("not json"), []byte(accountLabel),
		cipher.RandReader)
	require.NoError(t, err)
	_, err = UnpickleAccount(pickle, pickleKey)
	assert.True(t, errors.Is(err, ErrPickleFormat))
}

func TestSessionPickle(t *testing.T) {
	s := NewSession(alice, "curve1", "session1", []byte("ratchet"))
	pickle, err := s.Pickle(pickleKey)
	require.NoError(t, err)
	u, err := UnpickleSession(pickle, pickleKey, alice)
	require.NoError(t, err)
	assert.Equal(t, "curve1", u.SenderKey())
	assert.Equal(t, "session1", u.SessionID())
	assert.Equal(t, []byte("ratchet"), u.State())
	assert.Equal(t, alice.UserID, u.UserID())
	assert.Equal(t, alice.DeviceID, u.DeviceID())
	assert.Equal(t, alice.IdentityKeys, u.OurIdentityKeys())
	assert.True(t, s.CreationTime().Equal(u.CreationTime()))
	// account info is not part of the pickle
	assert.NotContains(t, string(pickle), alice.UserID)

	_, err = UnpickleSession(pickle, wrongKey, alice)
	assert.True(t, errors.Is(err, ErrUnpickle))
}

func TestSessionAdvance(t *testing.T) {
	s := NewSession(alice, "curve1", "session1", []byte("0"))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Advance([]byte{byte(i)})
			_, err := s.Pickle(pickleKey)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, s.State(), 1)
	assert.False(t, s.LastUseTime().Before(s.CreationTime()))
}

func TestInboundGroupSessionPickle(t *testing.T) {
	s := &InboundGroupSession{
		RoomID:      "!room:example.org",
		SenderKey:   "curve1",
		SessionID:   "group1",
		SigningKeys: map[string]string{"ed25519": "ed-bob"},
		State:       []byte("megolm"),
	}
	assert.False(t, s.BackedUp())
	s.MarkAsBackedUp()
	pickle, err := s.Pickle(pickleKey)
	require.NoError(t, err)
	u, err := UnpickleInboundGroupSession(pickle, pickleKey)
	require.NoError(t, err)
	assert.Equal(t, s.RoomID, u.RoomID)
	assert.Equal(t, s.SenderKey, u.SenderKey)
	assert.Equal(t, s.SessionID, u.SessionID)
	assert.Equal(t, s.SigningKeys, u.SigningKeys)
	assert.Equal(t, s.State, u.State)
	assert.True(t, u.BackedUp())
	u.ResetBackupState()
	assert.False(t, u.BackedUp())
}

func TestOutboundGroupSessionPickle(t *testing.T) {
	s := NewOutboundGroupSession(alice, "!room:example.org", "out1", []byte("megolm"))
	s.MessageCount = 3
	s.SharedWith = map[string][]string{"@bob:example.org": {"BOBDEVICE"}}
	pickle, err := s.Pickle(pickleKey)
	require.NoError(t, err)
	u, err := UnpickleOutboundGroupSession(pickle, pickleKey, alice)
	require.NoError(t, err)
	assert.Equal(t, s.RoomID, u.RoomID)
	assert.Equal(t, s.SessionID, u.SessionID)
	assert.Equal(t, uint64(3), u.MessageCount)
	assert.Equal(t, s.SharedWith, u.SharedWith)
	assert.True(t, s.CreationTime.Equal(u.CreationTime))
	assert.Equal(t, alice.DeviceID, u.DeviceID())
	assert.Equal(t, alice.IdentityKeys, u.IdentityKeys())
}

func TestPrivateIdentityPickle(t *testing.T) {
	rawKey := bytes.Repeat([]byte{0x03}, 32)
	p := &PrivateCrossSigningIdentity{UserID: alice.UserID}
	assert.True(t, p.Empty())
	p.MasterKey = []byte("master")
	assert.False(t, p.Empty())
	pickle, err := p.Pickle(rawKey)
	require.NoError(t, err)
	u, err := UnpicklePrivateIdentity(pickle, rawKey)
	require.NoError(t, err)
	assert.Equal(t, p, u)
	_, err = UnpicklePrivateIdentity(pickle, pickleKey)
	assert.True(t, errors.Is(err, ErrUnpickle))
}

func TestMessageHash(t *testing.T) {
	h1 := NewMessageHash("curve1", []byte("ciphertext"))
	h2 := NewMessageHash("curve1", []byte("ciphertext"))
	h3 := NewMessageHash("curve1", []byte("other"))
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1.Hash, h3.Hash)
	assert.Equal(t, "curve1", h1.SenderKey)
	// base64 without padding of 32 bytes
	assert.Len(t, h1.Hash, 43)
}
