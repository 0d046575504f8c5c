// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package olm

import (
	"sync/atomic"
	"time"
)

// InboundGroupSession holds the key material to decrypt the messages of one
// sender in a room.
type InboundGroupSession struct {
	RoomID      string
	SenderKey   string
	SessionID   string
	SigningKeys map[string]string
	State       []byte
	Imported    bool

	backedUp atomic.Bool
}

type inboundPickle struct {
	RoomID      string            `json:"room_id"`
	SenderKey   string            `json:"sender_key"`
	SessionID   string            `json:"session_id"`
	SigningKeys map[string]string `json:"signing_keys,omitempty"`
	State       []byte            `json:"state"`
	Imported    bool              `json:"imported"`
	BackedUp    bool              `json:"backed_up"`
}

// BackedUp reports whether the session was uploaded to the key backup.
func (s *InboundGroupSession) BackedUp() bool {
	return s.backedUp.Load()
}

// MarkAsBackedUp flags the session as uploaded to the key backup.
func (s *InboundGroupSession) MarkAsBackedUp() {
	s.backedUp.Store(true)
}

// ResetBackupState clears the backup flag, the session is uploaded again by
// the next backup.
func (s *InboundGroupSession) ResetBackupState() {
	s.backedUp.Store(false)
}

// Pickle encrypts the session under key.
func (s *InboundGroupSession) Pickle(key []byte) ([]byte, error) {
	return seal(key, inboundGroupSessionLabel, &inboundPickle{
		RoomID:      s.RoomID,
		SenderKey:   s.SenderKey,
		SessionID:   s.SessionID,
		SigningKeys: s.SigningKeys,
		State:       s.State,
		Imported:    s.Imported,
		BackedUp:    s.BackedUp(),
	})
}

// UnpickleInboundGroupSession decrypts an inbound group session pickled with
// key.
func UnpickleInboundGroupSession(pickle, key []byte) (*InboundGroupSession, error) {
	var p inboundPickle
	if err := open(key, inboundGroupSessionLabel, pickle, &p); err != nil {
		return nil, err
	}
	s := &InboundGroupSession{
		RoomID:      p.RoomID,
		SenderKey:   p.SenderKey,
		SessionID:   p.SessionID,
		SigningKeys: p.SigningKeys,
		State:       p.State,
		Imported:    p.Imported,
	}
	s.backedUp.Store(p.BackedUp)
	return s, nil
}

// OutboundGroupSession holds the key material this device uses to encrypt
// messages in a room.
type OutboundGroupSession struct {
	RoomID       string
	SessionID    string
	State        []byte
	CreationTime time.Time
	MessageCount uint64
	Shared       bool
	// SharedWith maps user IDs to the device IDs the session key was sent to.
	SharedWith map[string][]string

	info AccountInfo
}

type outboundPickle struct {
	RoomID       string              `json:"room_id"`
	SessionID    string              `json:"session_id"`
	State        []byte              `json:"state"`
	CreationTime time.Time           `json:"creation_time"`
	MessageCount uint64              `json:"message_count"`
	Shared       bool                `json:"shared"`
	SharedWith   map[string][]string `json:"shared_with,omitempty"`
}

// NewOutboundGroupSession returns a new outbound session for roomID owned by
// the account described by info.
func NewOutboundGroupSession(info AccountInfo, roomID, sessionID string, state []byte) *OutboundGroupSession {
	return &OutboundGroupSession{
		RoomID:       roomID,
		SessionID:    sessionID,
		State:        state,
		CreationTime: time.Now().UTC(),
		info:         info,
	}
}

// DeviceID returns the device ID of the owning account.
func (s *OutboundGroupSession) DeviceID() string { return s.info.DeviceID }

// IdentityKeys returns the identity keys of the owning account.
func (s *OutboundGroupSession) IdentityKeys() IdentityKeys { return s.info.IdentityKeys }

// Pickle encrypts the session under key.
func (s *OutboundGroupSession) Pickle(key []byte) ([]byte, error) {
	return seal(key, outboundGroupSessionLabel, &outboundPickle{
		RoomID:       s.RoomID,
		SessionID:    s.SessionID,
		State:        s.State,
		CreationTime: s.CreationTime,
		MessageCount: s.MessageCount,
		Shared:       s.Shared,
		SharedWith:   s.SharedWith,
	})
}

// UnpickleOutboundGroupSession decrypts an outbound group session pickled
// with key and attaches it to the account described by info.
func UnpickleOutboundGroupSession(pickle, key []byte, info AccountInfo) (*OutboundGroupSession, error) {
	var p outboundPickle
	if err := open(key, outboundGroupSessionLabel, pickle, &p); err != nil {
		return nil, err
	}
	return &OutboundGroupSession{
		RoomID:       p.RoomID,
		SessionID:    p.SessionID,
		State:        p.State,
		CreationTime: p.CreationTime,
		MessageCount: p.MessageCount,
		Shared:       p.Shared,
		SharedWith:   p.SharedWith,
		info:         info,
	}, nil
}
