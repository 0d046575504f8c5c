// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cryptostore

import (
	"strings"

	"github.com/mutecomm/cryptostore/kv"
)

// schemaVersion is the current layout version of a store.
const schemaVersion = 1

type partitionNames struct {
	Core                   string
	Session                string
	InboundGroupSessions   string
	OutboundGroupSessions  string
	TrackedUsers           string
	OlmHashes              string
	Devices                string
	Identities             string
	OutgoingSecretRequests string
	UnsentSecretRequests   string
	SecretRequestsByInfo   string
}

// All returns the names of all partitions of a store.
func (p partitionNames) All() []string {
	return []string{
		p.Core,
		p.Session,
		p.InboundGroupSessions,
		p.OutboundGroupSessions,
		p.TrackedUsers,
		p.OlmHashes,
		p.Devices,
		p.Identities,
		p.OutgoingSecretRequests,
		p.UnsentSecretRequests,
		p.SecretRequestsByInfo,
	}
}

// gossip returns the three partitions of the secret request
// indexes, which are always used together.
func (p partitionNames) gossip() []string {
	return []string{
		p.OutgoingSecretRequests,
		p.UnsentSecretRequests,
		p.SecretRequestsByInfo,
	}
}

var partitions = partitionNames{
	Core:                   "core",
	Session:                "session",
	InboundGroupSessions:   "inbound_group_sessions",
	OutboundGroupSessions:  "outbound_group_sessions",
	TrackedUsers:           "tracked_users",
	OlmHashes:              "olm_hashes",
	Devices:                "devices",
	Identities:             "identities",
	OutgoingSecretRequests: "outgoing_secret_requests",
	UnsentSecretRequests:   "unsent_secret_requests",
	SecretRequestsByInfo:   "secret_requests_by_info",
}

// Keys in the core partition.
var (
	accountKey         = []byte("account")
	privateIdentityKey = []byte("private_identity")
	backupKeysKey      = []byte("backup_keys")
)

// Additional data bound to encrypted records.
const (
	deviceAD        = "device"
	identityAD      = "identity"
	secretRequestAD = "secret_request"
	backupKeysAD    = "backup_keys"
)

func upgradeSchema(oldVersion uint32, m kv.Migrator) error {
	if oldVersion < 1 {
		for _, name := range partitions.All() {
			if err := m.CreatePartition(name); err != nil {
				return err
			}
		}
	}
	return nil
}

const (
	keyDelimiter  = ":"
	keyTerminator = ";" // the character following keyDelimiter
)

// compositeKey joins parts with the key delimiter.
func compositeKey(parts ...string) []byte {
	return []byte(strings.Join(parts, keyDelimiter))
}

// prefixRange returns the range of all composite keys starting with the
// given parts followed by the key delimiter. Keys where the prefix is only a
// string prefix of the first component are not part of the range.
func prefixRange(op string, parts ...string) (kv.Range, error) {
	prefix := strings.Join(parts, keyDelimiter)
	if prefix == "" {
		return kv.Range{}, newError(ErrKeyRange, op, nil)
	}
	return kv.Range{
		Lower: []byte(prefix + keyDelimiter),
		Upper: []byte(prefix + keyTerminator),
	}, nil
}
