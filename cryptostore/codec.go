// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cryptostore

import (
	"encoding/json"

	"github.com/mutecomm/cryptostore/cipher"
	"github.com/mutecomm/cryptostore/util/bzero"
)

// encrypt encodes v as JSON and encrypts it under the envelope key.
func (s *Store) encrypt(op, ad string, v interface{}) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, newError(ErrSerialization, op, err)
	}
	ciphertext, err := cipher.Seal(s.key, plaintext, []byte(ad), s.rand)
	bzero.Bytes(plaintext)
	if err != nil {
		return nil, newError(ErrSerialization, op, err)
	}
	return ciphertext, nil
}

// openRecord decrypts a record created by encrypt into v.
func (s *Store) openRecord(ad string, ciphertext []byte, v interface{}) error {
	plaintext, err := cipher.Open(s.key, ciphertext, []byte(ad))
	if err != nil {
		return err
	}
	defer bzero.Bytes(plaintext)
	return json.Unmarshal(plaintext, v)
}

// decrypt is like openRecord, but maps and logs errors.
func (s *Store) decrypt(op, ad string, ciphertext []byte, v interface{}) error {
	if err := s.openRecord(ad, ciphertext, v); err != nil {
		return pickleError(op, err)
	}
	return nil
}

var (
	jsonTrue  = []byte("true")
	jsonFalse = []byte("false")
)

// dirtyFlag encodes the key query flag of a tracked user.
func dirtyFlag(dirty bool) []byte {
	if dirty {
		return jsonTrue
	}
	return jsonFalse
}

// isDirty decodes a stored key query flag. Everything but the JSON literal
// false counts as dirty.
func isDirty(value []byte) bool {
	var v interface{}
	if err := json.Unmarshal(value, &v); err != nil {
		return true
	}
	b, ok := v.(bool)
	return !ok || b
}
