// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cipher

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// DefaultKDFIterations is the number of PBKDF2 iterations used to derive a
// key from a passphrase if nothing else is configured.
const DefaultKDFIterations = 200000

// SaltSize is the length of the salt used for passphrase based key
// derivation.
const SaltSize = 32

// PassphraseKey derives a KeySize long key from passphrase and salt with iter
// many iterations of PBKDF2-SHA256.
func PassphraseKey(passphrase, salt []byte, iter int) []byte {
	return pbkdf2.Key(passphrase, salt, iter, KeySize, sha256.New)
}
