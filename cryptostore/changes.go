// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cryptostore

import (
	"github.com/mutecomm/cryptostore/gossip"
	"github.com/mutecomm/cryptostore/identities"
	"github.com/mutecomm/cryptostore/kv"
	"github.com/mutecomm/cryptostore/olm"
)

// BackupKeys are the keys of the server-side key backup.
type BackupKeys struct {
	BackupVersion string `json:"backup_version,omitempty"`
	RecoveryKey   []byte `json:"recovery_key,omitempty"`
}

// DeviceChanges are the device records to store or delete.
type DeviceChanges struct {
	New     []*identities.Device
	Changed []*identities.Device
	Deleted []*identities.Device
}

// IsEmpty reports whether there are no device changes.
func (c *DeviceChanges) IsEmpty() bool {
	return len(c.New) == 0 && len(c.Changed) == 0 && len(c.Deleted) == 0
}

// IdentityChanges are the user identities to store.
type IdentityChanges struct {
	New     []*identities.UserIdentity
	Changed []*identities.UserIdentity
}

// IsEmpty reports whether there are no identity changes.
func (c *IdentityChanges) IsEmpty() bool {
	return len(c.New) == 0 && len(c.Changed) == 0
}

// ChangeSet collects changes which are written with SaveChanges in one
// transaction. Fields left empty are not touched.
type ChangeSet struct {
	Account               *olm.Account
	PrivateIdentity       *olm.PrivateCrossSigningIdentity
	BackupKeys            *BackupKeys
	Sessions              []*olm.Session
	MessageHashes         []olm.MessageHash
	InboundGroupSessions  []*olm.InboundGroupSession
	OutboundGroupSessions []*olm.OutboundGroupSession
	KeyRequests           []*gossip.Request
	Identities            IdentityChanges
	Devices               DeviceChanges
}

// IsEmpty reports whether c contains no changes.
func (c *ChangeSet) IsEmpty() bool {
	return len(c.partitions()) == 0
}

// partitions returns the partitions touched by c.
func (c *ChangeSet) partitions() []string {
	var p []string
	if c.Account != nil || c.PrivateIdentity != nil || c.BackupKeys != nil {
		p = append(p, partitions.Core)
	}
	if len(c.Sessions) > 0 {
		p = append(p, partitions.Session)
	}
	if len(c.MessageHashes) > 0 {
		p = append(p, partitions.OlmHashes)
	}
	if len(c.InboundGroupSessions) > 0 {
		p = append(p, partitions.InboundGroupSessions)
	}
	if len(c.OutboundGroupSessions) > 0 {
		p = append(p, partitions.OutboundGroupSessions)
	}
	if len(c.KeyRequests) > 0 {
		p = append(p, partitions.gossip()...)
	}
	if !c.Identities.IsEmpty() {
		p = append(p, partitions.Identities)
	}
	if !c.Devices.IsEmpty() {
		p = append(p, partitions.Devices)
	}
	return p
}

type record struct {
	partition string
	key       []byte
	value     []byte
}

// prepare encrypts every value of c, nothing is written yet.
func (s *Store) prepare(op string, c *ChangeSet) (puts, deletes []record, requests []preparedRequest, err error) {
	put := func(partition string, key, value []byte) {
		puts = append(puts, record{partition, key, value})
	}
	if c.Account != nil {
		pickle, err := c.Account.Pickle(s.key)
		if err != nil {
			return nil, nil, nil, pickleError(op, err)
		}
		put(partitions.Core, accountKey, pickle)
	}
	if c.PrivateIdentity != nil {
		pickle, err := c.PrivateIdentity.Pickle(s.key)
		if err != nil {
			return nil, nil, nil, pickleError(op, err)
		}
		put(partitions.Core, privateIdentityKey, pickle)
	}
	if c.BackupKeys != nil {
		value, err := s.encrypt(op, backupKeysAD, c.BackupKeys)
		if err != nil {
			return nil, nil, nil, err
		}
		put(partitions.Core, backupKeysKey, value)
	}
	for _, session := range c.Sessions {
		pickle, err := session.Pickle(s.key)
		if err != nil {
			return nil, nil, nil, pickleError(op, err)
		}
		put(partitions.Session, compositeKey(session.SenderKey(), session.SessionID()), pickle)
	}
	for _, hash := range c.MessageHashes {
		put(partitions.OlmHashes, compositeKey(hash.SenderKey, hash.Hash), jsonTrue)
	}
	for _, session := range c.InboundGroupSessions {
		pickle, err := session.Pickle(s.key)
		if err != nil {
			return nil, nil, nil, pickleError(op, err)
		}
		key := compositeKey(session.RoomID, session.SenderKey, session.SessionID)
		put(partitions.InboundGroupSessions, key, pickle)
	}
	for _, session := range c.OutboundGroupSessions {
		pickle, err := session.Pickle(s.key)
		if err != nil {
			return nil, nil, nil, pickleError(op, err)
		}
		put(partitions.OutboundGroupSessions, []byte(session.RoomID), pickle)
	}
	for _, list := range [][]*identities.UserIdentity{c.Identities.New, c.Identities.Changed} {
		for _, identity := range list {
			value, err := s.encrypt(op, identityAD, identity)
			if err != nil {
				return nil, nil, nil, err
			}
			put(partitions.Identities, []byte(identity.UserID), value)
		}
	}
	for _, list := range [][]*identities.Device{c.Devices.New, c.Devices.Changed} {
		for _, device := range list {
			value, err := s.encrypt(op, deviceAD, device)
			if err != nil {
				return nil, nil, nil, err
			}
			put(partitions.Devices, compositeKey(device.UserID, device.DeviceID), value)
		}
	}
	for _, device := range c.Devices.Deleted {
		deletes = append(deletes, record{
			partition: partitions.Devices,
			key:       compositeKey(device.UserID, device.DeviceID),
		})
	}
	for _, request := range c.KeyRequests {
		r, err := s.prepareRequest(op, request)
		if err != nil {
			return nil, nil, nil, err
		}
		requests = append(requests, r)
	}
	return puts, deletes, requests, nil
}

// SaveChanges writes all changes in c in one transaction. Either all of them
// are written or none. Saved sessions become visible to GetSessions after the
// transaction was committed. An empty ChangeSet does nothing.
func (s *Store) SaveChanges(c *ChangeSet) error {
	const op = "save changes"
	if c == nil {
		return nil
	}
	touched := c.partitions()
	if len(touched) == 0 {
		return nil
	}
	puts, deletes, requests, err := s.prepare(op, c)
	if err != nil {
		return err
	}
	err = s.update(op, touched, func(tx kv.Tx) error {
		for _, r := range puts {
			if err := tx.Put(r.partition, r.key, r.value); err != nil {
				return err
			}
		}
		for _, r := range deletes {
			if err := tx.Delete(r.partition, r.key); err != nil {
				return err
			}
		}
		for _, r := range requests {
			if err := putRequest(tx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if c.Account != nil {
		s.setAccountInfo(c.Account.Info())
	}
	s.sessions.merge(c.Sessions)
	return nil
}
