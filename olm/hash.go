// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package olm

import (
	"github.com/mutecomm/cryptostore/cipher"
	"github.com/mutecomm/cryptostore/encode/base64"
)

// MessageHash identifies a received pairwise message for replay detection.
type MessageHash struct {
	SenderKey string
	Hash      string
}

// NewMessageHash returns the hash of ciphertext received from senderKey.
func NewMessageHash(senderKey string, ciphertext []byte) MessageHash {
	return MessageHash{
		SenderKey: senderKey,
		Hash:      base64.Encode(cipher.SHA256(ciphertext)),
	}
}
