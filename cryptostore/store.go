// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package cryptostore implements the encrypted, transactional store of an
end-to-end encryption engine. It persists the device account, pairwise and
group sessions, device and identity records, a replay detection hash set,
and outgoing secret requests.

Every secret is encrypted under the envelope key of the store before it
reaches the storage engine. A store opened with Open uses the public
DefaultPickleKey, a store opened with OpenWithPassphrase uses a random key
which is kept encrypted under the passphrase in a separate engine:

  name        the store itself (11 partitions)
  name-meta   the EncryptedEnvelopeKey of a passphrase protected store

All changes the engine makes are collected in a ChangeSet and written with
SaveChanges in one atomic transaction. Sessions are loaded lazily per sender
key and cached for the lifetime of the Store.

A Store is safe for concurrent use, except for Close.
*/
package cryptostore

import (
	"io"
	"sort"
	"sync"

	"github.com/mutecomm/cryptostore/cipher"
	"github.com/mutecomm/cryptostore/kv"
	"github.com/mutecomm/cryptostore/log"
	"github.com/mutecomm/cryptostore/olm"
	"github.com/mutecomm/cryptostore/util/bzero"
)

type options struct {
	kdfIterations int
	rand          io.Reader
}

// Option configures how a store is opened.
type Option func(*options)

// WithKDFIterations sets the number of PBKDF2 iterations used to protect the
// envelope key of a new passphrase protected store. Existing stores keep the
// number they were created with.
func WithKDFIterations(iter int) Option {
	return func(o *options) {
		if iter > 0 {
			o.kdfIterations = iter
		}
	}
}

// WithRandReader sets the source of randomness for keys, salts, and nonces.
func WithRandReader(rand io.Reader) Option {
	return func(o *options) {
		o.rand = rand
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		kdfIterations: cipher.DefaultKDFIterations,
		rand:          cipher.RandReader,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Store is an encrypted crypto store.
type Store struct {
	name   string
	engine kv.Engine
	key    []byte
	rand   io.Reader

	mu      sync.RWMutex
	account *olm.AccountInfo

	sessions sessionCache

	trackedMu sync.Mutex // serializes UpdateTrackedUser and LoadAccount
	tracked   trackedUsers
}

// Open opens the store name with the engine returned by opener. The store is
// encrypted with the DefaultPickleKey.
func Open(opener kv.Opener, name string, opts ...Option) (*Store, error) {
	return open(opener, name, []byte(DefaultPickleKey), newOptions(opts))
}

// OpenWithPassphrase opens the passphrase protected store name with the
// engine returned by opener. If the store does not exist yet, it is created
// with a random envelope key. A wrong passphrase results in an ErrUnpickling
// error.
func OpenWithPassphrase(opener kv.Opener, name string, passphrase []byte, opts ...Option) (*Store, error) {
	o := newOptions(opts)
	key, err := loadEnvelopeKey(opener, name, passphrase, o)
	if err != nil {
		return nil, err
	}
	return open(opener, name, key, o)
}

func open(opener kv.Opener, name string, key []byte, o *options) (*Store, error) {
	engine, err := openEngine(opener, name, key)
	if err != nil {
		bzero.Bytes(key)
		return nil, engineError("open", err)
	}
	if err := engine.Upgrade(schemaVersion, upgradeSchema); err != nil {
		engine.Close()
		bzero.Bytes(key)
		return nil, engineError("upgrade", err)
	}
	log.Infof("cryptostore: opened store '%s'", name)
	return &Store{
		name:   name,
		engine: engine,
		key:    key,
		rand:   o.rand,
		sessions: sessionCache{
			lists: make(map[string]*SessionList),
		},
		tracked: trackedUsers{
			tracked: make(map[string]struct{}),
			dirty:   make(map[string]struct{}),
		},
	}, nil
}

// Name returns the name of the store.
func (s *Store) Name() string {
	return s.name
}

// Close closes the storage engine and zeroes the envelope key.
func (s *Store) Close() error {
	err := s.engine.Close()
	bzero.Bytes(s.key)
	if err != nil {
		return engineError("close", err)
	}
	log.Infof("cryptostore: closed store '%s'", s.name)
	return nil
}

// Compact reclaims the space of deleted records, if the engine supports it.
// It reports whether the engine was compacted.
func (s *Store) Compact() (bool, error) {
	c, ok := s.engine.(kv.Compacter)
	if !ok {
		return false, nil
	}
	if err := c.Compact(); err != nil {
		return false, engineError("compact", err)
	}
	log.Infof("cryptostore: compacted store '%s'", s.name)
	return true, nil
}

// AccountInfo returns the info of the loaded account. The second return
// value is false if no account was loaded or saved yet.
func (s *Store) AccountInfo() (olm.AccountInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.account == nil {
		return olm.AccountInfo{}, false
	}
	return *s.account, true
}

func (s *Store) accountInfo(op string) (olm.AccountInfo, error) {
	info, ok := s.AccountInfo()
	if !ok {
		return info, newError(ErrAccountUnset, op, nil)
	}
	return info, nil
}

func (s *Store) setAccountInfo(info olm.AccountInfo) {
	s.mu.Lock()
	s.account = &info
	s.mu.Unlock()
}

func (s *Store) view(op string, partitions []string, fn func(kv.Tx) error) error {
	if err := s.engine.View(partitions, fn); err != nil {
		return engineError(op, err)
	}
	return nil
}

func (s *Store) update(op string, partitions []string, fn func(kv.Tx) error) error {
	if err := s.engine.Update(partitions, fn); err != nil {
		return engineError(op, err)
	}
	return nil
}

// get returns the value of key or nil if it does not exist.
func get(tx kv.Tx, partition string, key []byte) ([]byte, error) {
	value, err := tx.Get(partition, key)
	if err == kv.ErrNotFound {
		return nil, nil
	}
	return value, err
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
