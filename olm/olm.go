// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package olm defines the containers for the end-to-end encryption state the
crypto store persists: the device account, pairwise sessions, inbound and
outbound group sessions and the private cross-signing identity.

The ratchet algorithms operating on that state live outside of this package,
every container keeps its algorithm state as opaque bytes. What this package
defines is the pickle format: a container is serialized to JSON and
authenticate-encrypted with XChaCha20-Poly1305 under a pickle key. The type
of the container is bound to the ciphertext as additional data, a session
pickle can therefore never be unpickled as an account.

Containers which belong to an account (sessions, outbound group sessions) do
not store the account identity keys, they are supplied again as AccountInfo
when unpickling.
*/
package olm

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mutecomm/cryptostore/cipher"
)

var (
	// ErrUnpickle is returned if a pickle could not be decrypted, because the
	// key is wrong or the pickle was modified.
	ErrUnpickle = errors.New("olm: pickle authentication failed")
	// ErrPickleFormat is returned if a decrypted pickle does not decode to
	// the expected container.
	ErrPickleFormat = errors.New("olm: malformed pickle")
)

// IdentityKeys are the long-term public keys of a device.
type IdentityKeys struct {
	Curve25519 string `json:"curve25519"`
	Ed25519    string `json:"ed25519"`
}

// AccountInfo identifies the account a store belongs to.
type AccountInfo struct {
	UserID       string
	DeviceID     string
	IdentityKeys IdentityKeys
}

// Pickle labels, used as additional data.
const (
	accountLabel              = "account"
	sessionLabel              = "session"
	inboundGroupSessionLabel  = "inbound_group_session"
	outboundGroupSessionLabel = "outbound_group_session"
	privateIdentityLabel      = "private_identity"
)

func seal(key []byte, label string, v interface{}) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPickleFormat, label, err)
	}
	return cipher.Seal(key, plaintext, []byte(label), cipher.RandReader)
}

func open(key []byte, label string, pickle []byte, v interface{}) error {
	plaintext, err := cipher.Open(key, pickle, []byte(label))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnpickle, label, err)
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPickleFormat, label, err)
	}
	return nil
}
