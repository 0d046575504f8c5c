// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package olm

// PrivateCrossSigningIdentity holds the private cross-signing keys of the
// account owner. Any of the keys may be missing.
type PrivateCrossSigningIdentity struct {
	UserID         string `json:"user_id"`
	Shared         bool   `json:"shared"`
	MasterKey      []byte `json:"master_key,omitempty"`
	SelfSigningKey []byte `json:"self_signing_key,omitempty"`
	UserSigningKey []byte `json:"user_signing_key,omitempty"`
}

// Empty reports whether the identity holds no private key at all.
func (p *PrivateCrossSigningIdentity) Empty() bool {
	return len(p.MasterKey) == 0 && len(p.SelfSigningKey) == 0 &&
		len(p.UserSigningKey) == 0
}

// Pickle encrypts the identity with the raw key bytes rawKey.
func (p *PrivateCrossSigningIdentity) Pickle(rawKey []byte) ([]byte, error) {
	return seal(rawKey, privateIdentityLabel, p)
}

// UnpicklePrivateIdentity decrypts an identity pickled with rawKey.
func UnpicklePrivateIdentity(pickle, rawKey []byte) (*PrivateCrossSigningIdentity, error) {
	var p PrivateCrossSigningIdentity
	if err := open(rawKey, privateIdentityLabel, pickle, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
