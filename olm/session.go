// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package olm

import (
	"sync"
	"time"
)

// Session is a pairwise encryption session with the device identified by
// its curve25519 sender key. A Session is safe for concurrent use, its
// ratchet state is guarded by an internal mutex.
type Session struct {
	info      AccountInfo
	senderKey string
	sessionID string
	created   time.Time

	mu       sync.Mutex
	state    []byte
	lastUsed time.Time
}

type sessionPickle struct {
	SenderKey    string    `json:"sender_key"`
	SessionID    string    `json:"session_id"`
	State        []byte    `json:"state"`
	CreationTime time.Time `json:"creation_time"`
	LastUseTime  time.Time `json:"last_use_time"`
}

// NewSession returns a new session of the account described by info.
func NewSession(info AccountInfo, senderKey, sessionID string, state []byte) *Session {
	now := time.Now().UTC()
	return &Session{
		info:      info,
		senderKey: senderKey,
		sessionID: sessionID,
		created:   now,
		state:     append([]byte(nil), state...),
		lastUsed:  now,
	}
}

// SenderKey returns the curve25519 key of the other device.
func (s *Session) SenderKey() string { return s.senderKey }

// SessionID returns the unique ID of the session.
func (s *Session) SessionID() string { return s.sessionID }

// UserID returns the user ID of the account owning the session.
func (s *Session) UserID() string { return s.info.UserID }

// DeviceID returns the device ID of the account owning the session.
func (s *Session) DeviceID() string { return s.info.DeviceID }

// OurIdentityKeys returns the identity keys of the account owning the
// session.
func (s *Session) OurIdentityKeys() IdentityKeys { return s.info.IdentityKeys }

// CreationTime returns the time the session was created.
func (s *Session) CreationTime() time.Time { return s.created }

// State returns a copy of the current ratchet state.
func (s *Session) State() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.state...)
}

// LastUseTime returns the time of the last ratchet step.
func (s *Session) LastUseTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Advance replaces the ratchet state after a message was encrypted or
// decrypted with the session.
func (s *Session) Advance(state []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = append([]byte(nil), state...)
	s.lastUsed = time.Now().UTC()
}

// Pickle encrypts the session under key. The account identity is not part
// of the pickle.
func (s *Session) Pickle(key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := sessionPickle{
		SenderKey:    s.senderKey,
		SessionID:    s.sessionID,
		State:        s.state,
		CreationTime: s.created,
		LastUseTime:  s.lastUsed,
	}
	return seal(key, sessionLabel, &p)
}

// UnpickleSession decrypts a session pickled with key and attaches it to the
// account described by info.
func UnpickleSession(pickle, key []byte, info AccountInfo) (*Session, error) {
	var p sessionPickle
	if err := open(key, sessionLabel, pickle, &p); err != nil {
		return nil, err
	}
	return &Session{
		info:      info,
		senderKey: p.SenderKey,
		sessionID: p.SessionID,
		created:   p.CreationTime,
		state:     p.State,
		lastUsed:  p.LastUseTime,
	}, nil
}
