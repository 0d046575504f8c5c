// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cryptostore

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/mutecomm/cryptostore/cipher"
	"github.com/mutecomm/cryptostore/kv"
	"github.com/mutecomm/cryptostore/log"
	"github.com/mutecomm/cryptostore/util/bzero"
)

// DefaultPickleKey is the envelope key of stores opened without passphrase.
// It is public, such stores only protect their content against accidental
// disclosure.
const DefaultPickleKey = "DEFAULT_PICKLE_PASSPHRASE_123456"

// MetaSuffix is appended to the name of a passphrase protected store to get
// the name of the engine holding its encrypted envelope key.
const MetaSuffix = "-meta"

const (
	envelopeKeyVersion = 1
	envelopePartition  = "envelope_key"
)

var (
	pickleKeyKey = []byte("pickle_key")
	envelopeAD   = []byte("envelope_key")
)

// EncryptedEnvelopeKey is the envelope key of a passphrase protected store,
// encrypted with a key derived from the passphrase by PBKDF2.
type EncryptedEnvelopeKey struct {
	Version       int    `json:"version"`
	KDFIterations int    `json:"kdf_iterations"`
	Salt          []byte `json:"salt"`
	Ciphertext    []byte `json:"ciphertext"`
}

// encryptEnvelopeKey encrypts key with passphrase.
func encryptEnvelopeKey(key, passphrase []byte, iter int, rand io.Reader) (*EncryptedEnvelopeKey, error) {
	salt := make([]byte, cipher.SaltSize)
	if _, err := io.ReadFull(rand, salt); err != nil {
		return nil, err
	}
	derivedKey := cipher.PassphraseKey(passphrase, salt, iter)
	defer bzero.Bytes(derivedKey)
	ciphertext, err := cipher.Seal(derivedKey, key, envelopeAD, rand)
	if err != nil {
		return nil, err
	}
	return &EncryptedEnvelopeKey{
		Version:       envelopeKeyVersion,
		KDFIterations: iter,
		Salt:          salt,
		Ciphertext:    ciphertext,
	}, nil
}

// decrypt returns the envelope key. A wrong passphrase results in an
// ErrUnpickling error.
func (e *EncryptedEnvelopeKey) decrypt(passphrase []byte) ([]byte, error) {
	const op = "decrypt envelope key"
	if e.Version != envelopeKeyVersion || e.KDFIterations <= 0 ||
		len(e.Salt) != cipher.SaltSize {
		return nil, newError(ErrSerialization, op,
			errors.New("unsupported envelope key record"))
	}
	derivedKey := cipher.PassphraseKey(passphrase, e.Salt, e.KDFIterations)
	defer bzero.Bytes(derivedKey)
	key, err := cipher.Open(derivedKey, e.Ciphertext, envelopeAD)
	if err != nil {
		return nil, newError(ErrUnpickling, op, err)
	}
	if len(key) != cipher.KeySize {
		return nil, newError(ErrSerialization, op,
			errors.New("envelope key has wrong size"))
	}
	return key, nil
}

// loadEnvelopeKey returns the envelope key of the passphrase protected store
// name. If the store has no envelope key yet, a random one is generated and
// stored encrypted with passphrase. Creating and loading happen in one
// transaction, a failed attempt never changes the stored key.
func loadEnvelopeKey(opener kv.Opener, name string, passphrase []byte, o *options) ([]byte, error) {
	const op = "load envelope key"
	meta, err := opener.Open(name + MetaSuffix)
	if err != nil {
		return nil, engineError(op, err)
	}
	defer meta.Close()
	err = meta.Upgrade(1, func(oldVersion uint32, m kv.Migrator) error {
		return m.CreatePartition(envelopePartition)
	})
	if err != nil {
		return nil, engineError(op, err)
	}
	var key []byte
	err = meta.Update([]string{envelopePartition}, func(tx kv.Tx) error {
		value, err := tx.Get(envelopePartition, pickleKeyKey)
		if err == nil {
			var e EncryptedEnvelopeKey
			if err := json.Unmarshal(value, &e); err != nil {
				return newError(ErrSerialization, op, err)
			}
			key, err = e.decrypt(passphrase)
			return err
		}
		if err != kv.ErrNotFound {
			return err
		}
		log.Infof("cryptostore: generate envelope key for store '%s'", name)
		newKey := make([]byte, cipher.KeySize)
		if _, err := io.ReadFull(o.rand, newKey); err != nil {
			return newError(ErrStorageEngine, op, err)
		}
		e, err := encryptEnvelopeKey(newKey, passphrase, o.kdfIterations, o.rand)
		if err != nil {
			return newError(ErrStorageEngine, op, err)
		}
		value, err = json.Marshal(e)
		if err != nil {
			return newError(ErrSerialization, op, err)
		}
		if err := tx.Put(envelopePartition, pickleKeyKey, value); err != nil {
			return err
		}
		key = newKey
		return nil
	})
	if err != nil {
		if key != nil {
			bzero.Bytes(key)
		}
		return nil, engineError(op, err)
	}
	return key, nil
}

// engineKey derives the key used to encrypt the storage file itself from the
// envelope key.
func engineKey(envelopeKey []byte) []byte {
	return cipher.SHA256(append([]byte("engine-key"), envelopeKey...))
}

// openEngine opens the engine of store name. Engines which support it are
// encrypted with a key derived from the envelope key.
func openEngine(opener kv.Opener, name string, envelopeKey []byte) (kv.Engine, error) {
	if keyed, ok := opener.(kv.KeyedOpener); ok {
		key := engineKey(envelopeKey)
		defer bzero.Bytes(key)
		return keyed.OpenWithKey(name, key)
	}
	return opener.Open(name)
}
