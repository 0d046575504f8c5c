// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cryptostore

import (
	"sync"

	"github.com/mutecomm/cryptostore/kv"
)

// trackedUsers are the users whose devices we track and the subset of them
// which needs a key query. dirty is always a subset of tracked.
type trackedUsers struct {
	mu      sync.RWMutex
	tracked map[string]struct{}
	dirty   map[string]struct{}
}

func (t *trackedUsers) set(user string, dirty bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracked[user] = struct{}{}
	if dirty {
		t.dirty[user] = struct{}{}
	} else {
		delete(t.dirty, user)
	}
}

func (t *trackedUsers) load(users map[string]bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for user, dirty := range users {
		t.tracked[user] = struct{}{}
		if dirty {
			t.dirty[user] = struct{}{}
		} else {
			delete(t.dirty, user)
		}
	}
}

func (t *trackedUsers) isTracked(user string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.tracked[user]
	return ok
}

// IsUserTracked reports whether the devices of user are tracked.
func (s *Store) IsUserTracked(user string) bool {
	return s.tracked.isTracked(user)
}

// HasUsersForKeyQuery reports whether any tracked user needs a key query.
func (s *Store) HasUsersForKeyQuery() bool {
	s.tracked.mu.RLock()
	defer s.tracked.mu.RUnlock()
	return len(s.tracked.dirty) > 0
}

// TrackedUsers returns the tracked users in sorted order.
func (s *Store) TrackedUsers() []string {
	s.tracked.mu.RLock()
	defer s.tracked.mu.RUnlock()
	return sortedKeys(s.tracked.tracked)
}

// UsersForKeyQuery returns the tracked users which need a key query in
// sorted order.
func (s *Store) UsersForKeyQuery() []string {
	s.tracked.mu.RLock()
	defer s.tracked.mu.RUnlock()
	return sortedKeys(s.tracked.dirty)
}

// UpdateTrackedUser starts tracking user and marks whether the user needs a
// key query. The flag is persisted before the in-memory sets change. The
// returned bool reports whether user was tracked before.
func (s *Store) UpdateTrackedUser(user string, dirty bool) (bool, error) {
	const op = "update tracked user"
	s.trackedMu.Lock()
	defer s.trackedMu.Unlock()
	alreadyTracked := s.tracked.isTracked(user)
	err := s.update(op, []string{partitions.TrackedUsers}, func(tx kv.Tx) error {
		return tx.Put(partitions.TrackedUsers, []byte(user), dirtyFlag(dirty))
	})
	if err != nil {
		return false, err
	}
	s.tracked.set(user, dirty)
	return alreadyTracked, nil
}
