// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cipher bundles the cryptographic primitives used by the crypto
// store: randomness, passphrase based key derivation, authenticated
// encryption and hashing.
package cipher

import (
	"crypto/rand"
	"io"
)

// RandReader defines the CSPRNG used by the crypto store.
var RandReader = rand.Reader

// RandFail is a Reader that doesn't deliver any data.
var RandFail = eofReader{}

// RandZero is a Reader that delivers an endless stream of zero bytes.
// Only use it in tests.
var RandZero = zeroReader{}

type eofReader struct{}

func (e eofReader) Read(p []byte) (n int, err error) {
	return 0, io.EOF
}

type zeroReader struct{}

func (z zeroReader) Read(p []byte) (n int, err error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
