// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctlengine

import (
	"fmt"
	"io"
	"sort"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/structs"
	"github.com/mutecomm/cryptostore/cipher"
	"github.com/mutecomm/cryptostore/cryptostore"
	"github.com/mutecomm/cryptostore/encode/base64"
	"github.com/mutecomm/cryptostore/log"
	"github.com/mutecomm/cryptostore/util/bzero"
)

// storeInfo is the summary printed by the info command.
type storeInfo struct {
	Name             string
	Engine           string
	UserID           string
	DeviceID         string
	Curve25519       string
	Ed25519          string
	TrackedUsers     int
	UsersForKeyQuery int
	RoomKeys         int
	BackedUpRoomKeys int
	BackupVersion    string
	UnsentRequests   int
}

func (ce *CtlEngine) storeInfo() (*storeInfo, error) {
	info := &storeInfo{
		Name:             ce.store.Name(),
		Engine:           ce.config.Engine,
		TrackedUsers:     len(ce.store.TrackedUsers()),
		UsersForKeyQuery: len(ce.store.UsersForKeyQuery()),
	}
	if account, ok := ce.store.AccountInfo(); ok {
		info.UserID = account.UserID
		info.DeviceID = account.DeviceID
		info.Curve25519 = account.IdentityKeys.Curve25519
		info.Ed25519 = account.IdentityKeys.Ed25519
	}
	counts, err := ce.store.InboundGroupSessionCounts()
	if err != nil {
		return nil, err
	}
	info.RoomKeys = counts.Total
	info.BackedUpRoomKeys = counts.BackedUp
	backupKeys, err := ce.store.LoadBackupKeys()
	if err != nil {
		return nil, err
	}
	info.BackupVersion = backupKeys.BackupVersion
	requests, err := ce.store.GetUnsentSecretRequests()
	if err != nil {
		return nil, err
	}
	info.UnsentRequests = len(requests)
	return info, nil
}

func (ce *CtlEngine) info(w io.Writer) error {
	info, err := ce.storeInfo()
	if err != nil {
		return err
	}
	m := structs.Map(info)
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(w, "%s=%v\n", key, m[key])
	}
	return nil
}

func (ce *CtlEngine) tracked(w io.Writer) error {
	dirty := make(map[string]bool)
	for _, user := range ce.store.UsersForKeyQuery() {
		dirty[user] = true
	}
	for _, user := range ce.store.TrackedUsers() {
		if dirty[user] {
			fmt.Fprintf(w, "%s *\n", user)
		} else {
			fmt.Fprintln(w, user)
		}
	}
	return nil
}

func (ce *CtlEngine) track(w io.Writer, user string, dirty bool) error {
	alreadyTracked, err := ce.store.UpdateTrackedUser(user, dirty)
	if err != nil {
		return err
	}
	if alreadyTracked {
		fmt.Fprintf(w, "%s: updated\n", user)
	} else {
		fmt.Fprintf(w, "%s: tracked\n", user)
	}
	return nil
}

func (ce *CtlEngine) requests(w io.Writer) error {
	requests, err := ce.store.GetUnsentSecretRequests()
	if err != nil {
		return err
	}
	for _, r := range requests {
		key, err := r.Info.AsKey()
		if err != nil {
			log.Warnf("ctlengine: request %s: %s", r.RequestID, err)
			continue
		}
		fmt.Fprintf(w, "%s %s %s\n", r.RequestID, r.Recipient, key)
	}
	return nil
}

func (ce *CtlEngine) devices(w io.Writer, user string) error {
	devices, err := ce.store.GetUserDevices(user)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		d := devices[id]
		deleted := ""
		if d.Deleted {
			deleted = " (deleted)"
		}
		fmt.Fprintf(w, "%s %s %s%s\n", id, d.Curve25519Key(), d.Trust, deleted)
	}
	return nil
}

// storeDump is the metadata printed by the dump command. It must never
// contain key material.
type storeDump struct {
	Info             *storeInfo
	TrackedUsers     []string
	UsersForKeyQuery []string
	UnsentRequests   []string
	BackupCounts     cryptostore.RoomKeyCounts
}

func (ce *CtlEngine) dump(w io.Writer) error {
	info, err := ce.storeInfo()
	if err != nil {
		return err
	}
	d := storeDump{
		Info:             info,
		TrackedUsers:     ce.store.TrackedUsers(),
		UsersForKeyQuery: ce.store.UsersForKeyQuery(),
		BackupCounts: cryptostore.RoomKeyCounts{
			Total:    info.RoomKeys,
			BackedUp: info.BackedUpRoomKeys,
		},
	}
	requests, err := ce.store.GetUnsentSecretRequests()
	if err != nil {
		return err
	}
	for _, r := range requests {
		d.UnsentRequests = append(d.UnsentRequests, r.RequestID)
	}
	cfg := spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true}
	cfg.Fdump(w, d)
	return nil
}

func (ce *CtlEngine) vacuum(w io.Writer) error {
	compacted, err := ce.store.Compact()
	if err != nil {
		return err
	}
	if !compacted {
		fmt.Fprintf(w, "%s engine: nothing to compact\n", ce.config.Engine)
		return nil
	}
	fmt.Fprintf(w, "%s engine: compacted\n", ce.config.Engine)
	return nil
}

// genpass writes a random passphrase with 256 bits of entropy to w, suitable
// for a new passphrase protected store.
func genpass(w io.Writer, rand io.Reader) error {
	key := make([]byte, cipher.KeySize)
	defer bzero.Bytes(key)
	if _, err := io.ReadFull(rand, key); err != nil {
		return log.Error(err)
	}
	fmt.Fprintln(w, base64.Encode(key))
	return nil
}
