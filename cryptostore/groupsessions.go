// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cryptostore

import (
	"errors"

	"github.com/mutecomm/cryptostore/kv"
	"github.com/mutecomm/cryptostore/log"
	"github.com/mutecomm/cryptostore/olm"
)

// RoomKeyCounts are the numbers of stored inbound group sessions.
type RoomKeyCounts struct {
	Total    int
	BackedUp int
}

var errStopScan = errors.New("cryptostore: stop scan")

// GetInboundGroupSession returns the inbound group session or nil if it is
// unknown.
func (s *Store) GetInboundGroupSession(roomID, senderKey, sessionID string) (*olm.InboundGroupSession, error) {
	const op = "get inbound group session"
	var pickle []byte
	err := s.view(op, []string{partitions.InboundGroupSessions}, func(tx kv.Tx) error {
		var err error
		pickle, err = get(tx, partitions.InboundGroupSessions,
			compositeKey(roomID, senderKey, sessionID))
		return err
	})
	if err != nil || pickle == nil {
		return nil, err
	}
	session, err := olm.UnpickleInboundGroupSession(pickle, s.key)
	if err != nil {
		return nil, pickleError(op, err)
	}
	return session, nil
}

// scanInbound calls fn for every inbound group session in key order.
// Sessions which cannot be unpickled are skipped.
func (s *Store) scanInbound(tx kv.Tx, fn func(key []byte, session *olm.InboundGroupSession) error) error {
	return tx.Scan(partitions.InboundGroupSessions, kv.Range{}, func(k, v []byte) error {
		session, err := olm.UnpickleInboundGroupSession(v, s.key)
		if err != nil {
			log.Warnf("cryptostore: skip inbound group session '%s': %s", k, err)
			return nil
		}
		return fn(k, session)
	})
}

// GetInboundGroupSessions returns all inbound group sessions which can be
// unpickled.
func (s *Store) GetInboundGroupSessions() ([]*olm.InboundGroupSession, error) {
	const op = "get inbound group sessions"
	var sessions []*olm.InboundGroupSession
	err := s.view(op, []string{partitions.InboundGroupSessions}, func(tx kv.Tx) error {
		return s.scanInbound(tx, func(_ []byte, session *olm.InboundGroupSession) error {
			sessions = append(sessions, session)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// InboundGroupSessionCounts returns the number of stored inbound group
// sessions and how many of them are backed up. Records which cannot be
// unpickled count as not backed up.
func (s *Store) InboundGroupSessionCounts() (RoomKeyCounts, error) {
	const op = "inbound group session counts"
	var counts RoomKeyCounts
	err := s.view(op, []string{partitions.InboundGroupSessions}, func(tx kv.Tx) error {
		return tx.Scan(partitions.InboundGroupSessions, kv.Range{}, func(k, v []byte) error {
			counts.Total++
			session, err := olm.UnpickleInboundGroupSession(v, s.key)
			if err == nil && session.BackedUp() {
				counts.BackedUp++
			}
			return nil
		})
	})
	return counts, err
}

// InboundGroupSessionsForBackup returns up to limit inbound group sessions
// which are not backed up yet, in key order.
func (s *Store) InboundGroupSessionsForBackup(limit int) ([]*olm.InboundGroupSession, error) {
	const op = "inbound group sessions for backup"
	var sessions []*olm.InboundGroupSession
	if limit <= 0 {
		return sessions, nil
	}
	err := s.view(op, []string{partitions.InboundGroupSessions}, func(tx kv.Tx) error {
		err := s.scanInbound(tx, func(_ []byte, session *olm.InboundGroupSession) error {
			if session.BackedUp() {
				return nil
			}
			sessions = append(sessions, session)
			if len(sessions) >= limit {
				return errStopScan
			}
			return nil
		})
		if err == errStopScan {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// ResetBackupState marks all inbound group sessions as not backed up, in one
// transaction.
func (s *Store) ResetBackupState() error {
	const op = "reset backup state"
	return s.update(op, []string{partitions.InboundGroupSessions}, func(tx kv.Tx) error {
		var (
			keys     [][]byte
			sessions []*olm.InboundGroupSession
		)
		err := s.scanInbound(tx, func(k []byte, session *olm.InboundGroupSession) error {
			if session.BackedUp() {
				keys = append(keys, append([]byte(nil), k...))
				sessions = append(sessions, session)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for i, session := range sessions {
			session.ResetBackupState()
			pickle, err := session.Pickle(s.key)
			if err != nil {
				return pickleError(op, err)
			}
			if err := tx.Put(partitions.InboundGroupSessions, keys[i], pickle); err != nil {
				return err
			}
		}
		log.Debugf("cryptostore: reset backup state of %d sessions", len(sessions))
		return nil
	})
}

// GetOutboundGroupSession returns the outbound group session of roomID or nil
// if there is none. The account must be loaded.
func (s *Store) GetOutboundGroupSession(roomID string) (*olm.OutboundGroupSession, error) {
	const op = "get outbound group session"
	info, err := s.accountInfo(op)
	if err != nil {
		return nil, err
	}
	var pickle []byte
	err = s.view(op, []string{partitions.OutboundGroupSessions}, func(tx kv.Tx) error {
		var err error
		pickle, err = get(tx, partitions.OutboundGroupSessions, []byte(roomID))
		return err
	})
	if err != nil || pickle == nil {
		return nil, err
	}
	session, err := olm.UnpickleOutboundGroupSession(pickle, s.key, info)
	if err != nil {
		return nil, pickleError(op, err)
	}
	return session, nil
}
