// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cryptostore

import (
	"sync"

	"github.com/mutecomm/cryptostore/kv"
	"github.com/mutecomm/cryptostore/log"
	"github.com/mutecomm/cryptostore/olm"
)

// SessionList is the list of sessions with one sender key. It is shared by
// all callers of GetSessions for that key and safe for concurrent use.
type SessionList struct {
	mu       sync.RWMutex
	sessions []*olm.Session
}

// Sessions returns the sessions in the list.
func (l *SessionList) Sessions() []*olm.Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*olm.Session(nil), l.sessions...)
}

// Len returns the number of sessions in the list.
func (l *SessionList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sessions)
}

// Get returns the session with the given ID or nil.
func (l *SessionList) Get(sessionID string) *olm.Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.sessions {
		if s.SessionID() == sessionID {
			return s
		}
	}
	return nil
}

// put adds session to the list, replacing a session with the same ID.
func (l *SessionList) put(session *olm.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.sessions {
		if s.SessionID() == session.SessionID() {
			l.sessions[i] = session
			return
		}
	}
	l.sessions = append(l.sessions, session)
}

// sessionCache maps sender keys to session lists. A sender key is either
// cached with all its stored sessions or not at all.
type sessionCache struct {
	mu    sync.Mutex // held while a list is loaded
	lists map[string]*SessionList
}

func (c *sessionCache) getOrLoad(senderKey string, load func() ([]*olm.Session, error)) (*SessionList, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if list, ok := c.lists[senderKey]; ok {
		return list, nil
	}
	sessions, err := load()
	if err != nil {
		return nil, err
	}
	list := &SessionList{sessions: sessions}
	c.lists[senderKey] = list
	return list, nil
}

// merge adds committed sessions to the lists which are already cached.
// Sender keys which are not cached yet get loaded completely on first use.
func (c *sessionCache) merge(sessions []*olm.Session) {
	if len(sessions) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, session := range sessions {
		if list, ok := c.lists[session.SenderKey()]; ok {
			list.put(session)
		}
	}
}

// GetSessions returns the sessions with senderKey. On the first call for a
// sender key all its sessions are loaded from the engine, records which
// cannot be unpickled are skipped. The account must be loaded.
func (s *Store) GetSessions(senderKey string) (*SessionList, error) {
	const op = "get sessions"
	info, err := s.accountInfo(op)
	if err != nil {
		return nil, err
	}
	return s.sessions.getOrLoad(senderKey, func() ([]*olm.Session, error) {
		r, err := prefixRange(op, senderKey)
		if err != nil {
			return nil, err
		}
		var sessions []*olm.Session
		err = s.view(op, []string{partitions.Session}, func(tx kv.Tx) error {
			return tx.Scan(partitions.Session, r, func(k, v []byte) error {
				session, err := olm.UnpickleSession(v, s.key, info)
				if err != nil {
					log.Warnf("cryptostore: skip session '%s': %s", k, err)
					return nil
				}
				sessions = append(sessions, session)
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
		log.Debugf("cryptostore: loaded %d sessions for sender key '%s'",
			len(sessions), senderKey)
		return sessions, nil
	})
}
