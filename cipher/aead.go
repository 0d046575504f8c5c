// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cipher

import (
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the size of keys used for authenticated encryption.
const KeySize = chacha20poly1305.KeySize

// NonceSize is the size of the random nonce prepended to every ciphertext.
const NonceSize = chacha20poly1305.NonceSizeX

// ErrAuthentication is returned by Open if the ciphertext was not created with
// the given key and additional data, or was modified afterwards.
var ErrAuthentication = errors.New("cipher: message authentication failed")

// ErrKeySize is returned if a key does not have length KeySize.
var ErrKeySize = errors.New("cipher: key has wrong size")

// Seal encrypts and authenticates plaintext and authenticates additionalData
// with XChaCha20-Poly1305 under key. The returned ciphertext is prepended by
// a nonce read from rand.
func Seal(key, plaintext, additionalData []byte, rand io.Reader) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, ErrKeySize
	}
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand, out); err != nil {
		return nil, err
	}
	return aead.Seal(out, out[:NonceSize], plaintext, additionalData), nil
}

// Open authenticates and decrypts a ciphertext created by Seal.
func Open(key, ciphertext, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, ErrKeySize
	}
	if len(ciphertext) < NonceSize+aead.Overhead() {
		return nil, ErrAuthentication
	}
	nonce := ciphertext[:NonceSize]
	plaintext, err := aead.Open(nil, nonce, ciphertext[NonceSize:], additionalData)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
