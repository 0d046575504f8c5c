// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cryptostore

import (
	"github.com/mutecomm/cryptostore/kv"
	"github.com/mutecomm/cryptostore/log"
	"github.com/mutecomm/cryptostore/olm"
)

// LoadAccount loads the account and the set of tracked users. It returns
// nil if no account was saved yet.
func (s *Store) LoadAccount() (*olm.Account, error) {
	const op = "load account"
	var pickle []byte
	tracked := make(map[string]bool)
	// an UpdateTrackedUser between the scan and the reload would be undone
	s.trackedMu.Lock()
	defer s.trackedMu.Unlock()
	err := s.view(op, []string{partitions.Core, partitions.TrackedUsers}, func(tx kv.Tx) error {
		var err error
		pickle, err = get(tx, partitions.Core, accountKey)
		if err != nil {
			return err
		}
		return tx.Scan(partitions.TrackedUsers, kv.Range{}, func(k, v []byte) error {
			tracked[string(k)] = isDirty(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.tracked.load(tracked)
	if pickle == nil {
		return nil, nil
	}
	account, err := olm.UnpickleAccount(pickle, s.key)
	if err != nil {
		return nil, pickleError(op, err)
	}
	s.setAccountInfo(account.Info())
	log.Debugf("cryptostore: loaded account %s/%s, %d tracked users",
		account.UserID, account.DeviceID, len(tracked))
	return account, nil
}

// SaveAccount saves account and makes it the account of the store.
func (s *Store) SaveAccount(account *olm.Account) error {
	return s.SaveChanges(&ChangeSet{Account: account})
}

// LoadIdentity loads the private cross-signing identity. It returns nil if
// none was saved yet.
func (s *Store) LoadIdentity() (*olm.PrivateCrossSigningIdentity, error) {
	const op = "load identity"
	var pickle []byte
	err := s.view(op, []string{partitions.Core}, func(tx kv.Tx) error {
		var err error
		pickle, err = get(tx, partitions.Core, privateIdentityKey)
		return err
	})
	if err != nil || pickle == nil {
		return nil, err
	}
	identity, err := olm.UnpicklePrivateIdentity(pickle, s.key)
	if err != nil {
		return nil, pickleError(op, err)
	}
	return identity, nil
}

// LoadBackupKeys loads the keys of the key backup. Unset keys are empty.
func (s *Store) LoadBackupKeys() (BackupKeys, error) {
	const op = "load backup keys"
	var keys BackupKeys
	err := s.view(op, []string{partitions.Core}, func(tx kv.Tx) error {
		value, err := get(tx, partitions.Core, backupKeysKey)
		if err != nil || value == nil {
			return err
		}
		return s.decrypt(op, backupKeysAD, value, &keys)
	})
	return keys, err
}
