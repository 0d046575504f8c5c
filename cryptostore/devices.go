// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cryptostore

import (
	"github.com/mutecomm/cryptostore/identities"
	"github.com/mutecomm/cryptostore/kv"
	"github.com/mutecomm/cryptostore/log"
	"github.com/mutecomm/cryptostore/olm"
)

// GetDevice returns the device deviceID of user or nil if it is unknown.
func (s *Store) GetDevice(user, deviceID string) (*identities.Device, error) {
	const op = "get device"
	var device *identities.Device
	err := s.view(op, []string{partitions.Devices}, func(tx kv.Tx) error {
		value, err := get(tx, partitions.Devices, compositeKey(user, deviceID))
		if err != nil || value == nil {
			return err
		}
		var d identities.Device
		if err := s.decrypt(op, deviceAD, value, &d); err != nil {
			return err
		}
		device = &d
		return nil
	})
	return device, err
}

// GetUserDevices returns the devices of user by device ID. Records which
// cannot be decrypted or belong to another user are skipped.
func (s *Store) GetUserDevices(user string) (map[string]*identities.Device, error) {
	const op = "get user devices"
	r, err := prefixRange(op, user)
	if err != nil {
		return nil, err
	}
	devices := make(map[string]*identities.Device)
	err = s.view(op, []string{partitions.Devices}, func(tx kv.Tx) error {
		return tx.Scan(partitions.Devices, r, func(k, v []byte) error {
			var d identities.Device
			if err := s.openRecord(deviceAD, v, &d); err != nil {
				log.Warnf("cryptostore: skip device '%s': %s", k, err)
				return nil
			}
			// user IDs may contain the delimiter (server ports), so the
			// range can cover devices of users with a longer ID
			if d.UserID != user {
				return nil
			}
			devices[d.DeviceID] = &d
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return devices, nil
}

// GetUserIdentity returns the cross-signing identity of user or nil if it is
// unknown.
func (s *Store) GetUserIdentity(user string) (*identities.UserIdentity, error) {
	const op = "get user identity"
	var identity *identities.UserIdentity
	err := s.view(op, []string{partitions.Identities}, func(tx kv.Tx) error {
		value, err := get(tx, partitions.Identities, []byte(user))
		if err != nil || value == nil {
			return err
		}
		var i identities.UserIdentity
		if err := s.decrypt(op, identityAD, value, &i); err != nil {
			return err
		}
		identity = &i
		return nil
	})
	return identity, err
}

// IsMessageKnown reports whether a message with hash was seen before.
func (s *Store) IsMessageKnown(hash olm.MessageHash) (bool, error) {
	const op = "is message known"
	var known bool
	err := s.view(op, []string{partitions.OlmHashes}, func(tx kv.Tx) error {
		value, err := get(tx, partitions.OlmHashes, compositeKey(hash.SenderKey, hash.Hash))
		known = value != nil
		return err
	})
	return known, err
}
