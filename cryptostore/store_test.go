// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cryptostore

import (
	"errors"
	"sync"
	"testing"

	"github.com/mutecomm/cryptostore/kv"
	"github.com/mutecomm/cryptostore/kv/boltkv"
	"github.com/mutecomm/cryptostore/kv/memkv"
	"github.com/mutecomm/cryptostore/kv/pebblekv"
	"github.com/mutecomm/cryptostore/kv/sqlkv"
	"github.com/mutecomm/cryptostore/olm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKDFIterations = 16
	alice             = "@alice:example.org"
	bob               = "@bob:example.org"
)

var errCommit = errors.New("commit failed")

func testAccount() *olm.Account {
	return &olm.Account{
		UserID:   alice,
		DeviceID: "ALICEDEVICE",
		IdentityKeys: olm.IdentityKeys{
			Curve25519: "curve-alice",
			Ed25519:    "ed-alice",
		},
		State: []byte("account state"),
	}
}

func openStore(t *testing.T, opener kv.Opener) *Store {
	s, err := Open(opener, "store")
	require.NoError(t, err)
	return s
}

// openWithAccount opens a new in-memory store and saves an account.
func openWithAccount(t *testing.T) *Store {
	s := openStore(t, &memkv.Opener{})
	require.NoError(t, s.SaveAccount(testAccount()))
	return s
}

// countingEngine counts the transactions run on an engine.
type countingEngine struct {
	kv.Engine

	mu      sync.Mutex
	views   int
	updates int
}

func (e *countingEngine) View(p []string, fn func(kv.Tx) error) error {
	e.mu.Lock()
	e.views++
	e.mu.Unlock()
	return e.Engine.View(p, fn)
}

func (e *countingEngine) Update(p []string, fn func(kv.Tx) error) error {
	e.mu.Lock()
	e.updates++
	e.mu.Unlock()
	return e.Engine.Update(p, fn)
}

// failingEngine runs all writes but never commits them.
type failingEngine struct {
	kv.Engine
}

func (e *failingEngine) Update(p []string, fn func(kv.Tx) error) error {
	return e.Engine.Update(p, func(tx kv.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errCommit
	})
}

func TestEmptyChangeSet(t *testing.T) {
	var engine *countingEngine
	mem := &memkv.Opener{}
	opener := kv.OpenerFunc(func(name string) (kv.Engine, error) {
		e, err := mem.Open(name)
		if err != nil {
			return nil, err
		}
		engine = &countingEngine{Engine: e}
		return engine, nil
	})
	s := openStore(t, opener)
	defer s.Close()
	require.NoError(t, s.SaveChanges(nil))
	require.NoError(t, s.SaveChanges(&ChangeSet{}))
	require.NoError(t, s.SaveChanges(&ChangeSet{Devices: DeviceChanges{}}))
	assert.True(t, (&ChangeSet{}).IsEmpty())
	assert.Equal(t, 0, engine.views)
	assert.Equal(t, 0, engine.updates)

	require.NoError(t, s.SaveChanges(&ChangeSet{Account: testAccount()}))
	assert.Equal(t, 1, engine.updates)
}

func TestChangeSetPartitions(t *testing.T) {
	c := &ChangeSet{
		Account:       testAccount(),
		MessageHashes: []olm.MessageHash{olm.NewMessageHash("curve1", []byte("m"))},
	}
	assert.Equal(t, []string{partitions.Core, partitions.OlmHashes}, c.partitions())
	c = &ChangeSet{KeyRequests: testRequests(1)}
	assert.Equal(t, partitions.gossip(), c.partitions())
}

func TestCommitFailure(t *testing.T) {
	mem := &memkv.Opener{}
	fail := false
	opener := kv.OpenerFunc(func(name string) (kv.Engine, error) {
		e, err := mem.Open(name)
		if err != nil || !fail {
			return e, err
		}
		return &failingEngine{Engine: e}, nil
	})
	s := openStore(t, opener)
	require.NoError(t, s.SaveAccount(testAccount()))
	require.NoError(t, s.Close())
	fail = true
	s = openStore(t, opener)
	defer s.Close()
	_, err := s.LoadAccount()
	require.NoError(t, err)
	info, _ := s.AccountInfo()

	// cache the empty list of curve1
	list, err := s.GetSessions("curve1")
	require.NoError(t, err)
	assert.Equal(t, 0, list.Len())

	session := olm.NewSession(info, "curve1", "session1", []byte("ratchet"))
	err = s.SaveChanges(&ChangeSet{
		Sessions: []*olm.Session{session},
		Devices:  DeviceChanges{New: testDevices(bob, "BOBDEVICE")},
	})
	assert.True(t, errors.Is(err, ErrStorageEngine))
	assert.True(t, errors.Is(err, errCommit))
	// nothing reached the cache or the engine
	assert.Equal(t, 0, list.Len())
	device, err := s.GetDevice(bob, "BOBDEVICE")
	require.NoError(t, err)
	assert.Nil(t, device)
}

func TestCachedSessionsAfterCommit(t *testing.T) {
	s := openWithAccount(t)
	defer s.Close()
	info, ok := s.AccountInfo()
	require.True(t, ok)
	list, err := s.GetSessions("curve1")
	require.NoError(t, err)
	assert.Equal(t, 0, list.Len())

	session := olm.NewSession(info, "curve1", "session1", []byte("ratchet"))
	require.NoError(t, s.SaveChanges(&ChangeSet{Sessions: []*olm.Session{session}}))
	assert.Equal(t, 1, list.Len())
	assert.True(t, session == list.Get("session1"))

	// saving again replaces the cached session
	session2 := olm.NewSession(info, "curve1", "session1", []byte("ratchet2"))
	require.NoError(t, s.SaveChanges(&ChangeSet{Sessions: []*olm.Session{session2}}))
	assert.Equal(t, 1, list.Len())
	assert.True(t, session2 == list.Get("session1"))
	assert.Nil(t, list.Get("unknown"))
}

func TestGetSessionsAccountUnset(t *testing.T) {
	s := openStore(t, &memkv.Opener{})
	defer s.Close()
	_, err := s.GetSessions("curve1")
	assert.True(t, errors.Is(err, ErrAccountUnset))
	_, err = s.GetOutboundGroupSession("!room:example.org")
	assert.True(t, errors.Is(err, ErrAccountUnset))
}

func TestGetSessionsPrefix(t *testing.T) {
	mem := &memkv.Opener{}
	s := openStore(t, mem)
	require.NoError(t, s.SaveAccount(testAccount()))
	info, _ := s.AccountInfo()
	require.NoError(t, s.SaveChanges(&ChangeSet{Sessions: []*olm.Session{
		olm.NewSession(info, "abc", "s1", []byte("1")),
		olm.NewSession(info, "abcd", "s2", []byte("2")),
		olm.NewSession(info, "ab", "s3", []byte("3")),
	}}))
	require.NoError(t, s.Close())

	// a fresh store has an empty cache
	s = openStore(t, mem)
	defer s.Close()
	_, err := s.LoadAccount()
	require.NoError(t, err)
	list, err := s.GetSessions("abc")
	require.NoError(t, err)
	sessions := list.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "abc", sessions[0].SenderKey())
	assert.Equal(t, "s1", sessions[0].SessionID())

	// the same shared list is returned
	again, err := s.GetSessions("abc")
	require.NoError(t, err)
	assert.True(t, list == again)

	_, err = s.GetSessions("")
	assert.True(t, errors.Is(err, ErrKeyRange))
}

func TestGetSessionsSkipsBrokenRecords(t *testing.T) {
	s := openWithAccount(t)
	defer s.Close()
	info, _ := s.AccountInfo()
	require.NoError(t, s.SaveChanges(&ChangeSet{Sessions: []*olm.Session{
		olm.NewSession(info, "curve1", "good", []byte("1")),
	}}))
	err := s.engine.Update([]string{partitions.Session}, func(tx kv.Tx) error {
		return tx.Put(partitions.Session, []byte("curve1:broken"), []byte("garbage"))
	})
	require.NoError(t, err)
	list, err := s.GetSessions("curve1")
	require.NoError(t, err)
	require.Equal(t, 1, list.Len())
	assert.Equal(t, "good", list.Sessions()[0].SessionID())
}

func TestSharedSessionMutation(t *testing.T) {
	s := openWithAccount(t)
	defer s.Close()
	info, _ := s.AccountInfo()
	require.NoError(t, s.SaveChanges(&ChangeSet{Sessions: []*olm.Session{
		olm.NewSession(info, "curve1", "s1", []byte("0")),
	}}))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			list, err := s.GetSessions("curve1")
			if assert.NoError(t, err) {
				list.Get("s1").Advance([]byte{byte(i)})
			}
		}(i)
	}
	wg.Wait()
	l1, err := s.GetSessions("curve1")
	require.NoError(t, err)
	l2, err := s.GetSessions("curve1")
	require.NoError(t, err)
	assert.Equal(t, l1.Get("s1").State(), l2.Get("s1").State())
	assert.Len(t, l1.Get("s1").State(), 1)
}

var engines = []struct {
	name      string
	newOpener func(t *testing.T) kv.Opener
}{
	{"memkv", func(t *testing.T) kv.Opener { return &memkv.Opener{} }},
	{"boltkv", func(t *testing.T) kv.Opener {
		return &boltkv.Opener{Dir: t.TempDir(), Options: &boltkv.Options{NoSync: true}}
	}},
	{"sqlkv", func(t *testing.T) kv.Opener { return &sqlkv.Opener{Dir: t.TempDir()} }},
	{"pebblekv", func(t *testing.T) kv.Opener { return &pebblekv.Opener{Dir: t.TempDir()} }},
}

func TestReopen(t *testing.T) {
	for _, e := range engines {
		t.Run(e.name, func(t *testing.T) {
			opener := e.newOpener(t)
			s, err := OpenWithPassphrase(opener, "store", []byte("secret"),
				WithKDFIterations(testKDFIterations))
			require.NoError(t, err)
			account := testAccount()
			require.NoError(t, s.SaveAccount(account))
			session := olm.NewSession(account.Info(), "curve1", "session1", []byte("ratchet"))
			require.NoError(t, s.SaveChanges(&ChangeSet{Sessions: []*olm.Session{session}}))
			_, err = s.UpdateTrackedUser(bob, true)
			require.NoError(t, err)
			require.NoError(t, s.Close())

			s, err = OpenWithPassphrase(opener, "store", []byte("secret"))
			require.NoError(t, err)
			defer s.Close()
			loaded, err := s.LoadAccount()
			require.NoError(t, err)
			assert.Equal(t, account, loaded)
			list, err := s.GetSessions("curve1")
			require.NoError(t, err)
			sessions := list.Sessions()
			require.Len(t, sessions, 1)
			assert.Equal(t, "session1", sessions[0].SessionID())
			assert.Equal(t, []byte("ratchet"), sessions[0].State())
			assert.Equal(t, account.Info(), olm.AccountInfo{
				UserID:       sessions[0].UserID(),
				DeviceID:     sessions[0].DeviceID(),
				IdentityKeys: sessions[0].OurIdentityKeys(),
			})
			assert.Equal(t, []string{bob}, s.UsersForKeyQuery())
			assert.True(t, s.IsUserTracked(bob))
		})
	}
}

func TestOpenDefaultKey(t *testing.T) {
	for _, e := range engines {
		t.Run(e.name, func(t *testing.T) {
			opener := e.newOpener(t)
			s := openStore(t, opener)
			require.NoError(t, s.SaveAccount(testAccount()))
			require.NoError(t, s.Close())
			s = openStore(t, opener)
			defer s.Close()
			account, err := s.LoadAccount()
			require.NoError(t, err)
			assert.Equal(t, testAccount(), account)
			assert.Equal(t, "store", s.Name())
		})
	}
}

func TestLoadAccountEmpty(t *testing.T) {
	s := openStore(t, &memkv.Opener{})
	defer s.Close()
	account, err := s.LoadAccount()
	require.NoError(t, err)
	assert.Nil(t, account)
	_, ok := s.AccountInfo()
	assert.False(t, ok)
	identity, err := s.LoadIdentity()
	require.NoError(t, err)
	assert.Nil(t, identity)
	keys, err := s.LoadBackupKeys()
	require.NoError(t, err)
	assert.Equal(t, BackupKeys{}, keys)
}

func TestCompact(t *testing.T) {
	for _, e := range engines {
		t.Run(e.name, func(t *testing.T) {
			s := openStore(t, e.newOpener(t))
			defer s.Close()
			require.NoError(t, s.SaveChanges(&ChangeSet{Devices: DeviceChanges{New: testDevices(bob, "DEV1")}}))
			require.NoError(t, s.SaveChanges(&ChangeSet{Devices: DeviceChanges{Deleted: testDevices(bob, "DEV1")}}))
			compacted, err := s.Compact()
			require.NoError(t, err)
			_, ok := s.engine.(kv.Compacter)
			assert.Equal(t, ok, compacted)
			assert.Equal(t, e.name == "sqlkv" || e.name == "pebblekv", compacted)
		})
	}
}
