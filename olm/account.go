// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package olm

// Account is the device account: identity keys and one-time key state.
type Account struct {
	UserID           string       `json:"user_id"`
	DeviceID         string       `json:"device_id"`
	IdentityKeys     IdentityKeys `json:"identity_keys"`
	Shared           bool         `json:"shared"`
	UploadedKeyCount uint64       `json:"uploaded_key_count"`
	State            []byte       `json:"state"`
}

// Info returns the AccountInfo of a.
func (a *Account) Info() AccountInfo {
	return AccountInfo{
		UserID:       a.UserID,
		DeviceID:     a.DeviceID,
		IdentityKeys: a.IdentityKeys,
	}
}

// Pickle encrypts the account under key.
func (a *Account) Pickle(key []byte) ([]byte, error) {
	return seal(key, accountLabel, a)
}

// UnpickleAccount decrypts an account pickled with key.
func UnpickleAccount(pickle, key []byte) (*Account, error) {
	var a Account
	if err := open(key, accountLabel, pickle, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
