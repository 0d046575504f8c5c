// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cryptostore

import (
	"bytes"

	"github.com/mutecomm/cryptostore/gossip"
	"github.com/mutecomm/cryptostore/kv"
	"github.com/mutecomm/cryptostore/log"
)

// Outgoing secret requests are kept in three partitions:
//
//   outgoing_secret_requests  request ID -> request, sent out
//   unsent_secret_requests    request ID -> request, not sent yet
//   secret_requests_by_info   SecretInfo.AsKey() -> request ID
//
// A request is in exactly one of the first two, the third one always points
// to its ID.

type preparedRequest struct {
	id      []byte
	info    []byte
	value   []byte
	sentOut bool
}

func (s *Store) prepareRequest(op string, r *gossip.Request) (preparedRequest, error) {
	info, err := r.Info.AsKey()
	if err != nil {
		return preparedRequest{}, newError(ErrSerialization, op, err)
	}
	value, err := s.encrypt(op, secretRequestAD, r)
	if err != nil {
		return preparedRequest{}, err
	}
	return preparedRequest{
		id:      []byte(r.RequestID),
		info:    []byte(info),
		value:   value,
		sentOut: r.SentOut,
	}, nil
}

// putRequest stores r in the index matching its state and removes it from
// the other one.
func putRequest(tx kv.Tx, r preparedRequest) error {
	if err := tx.Put(partitions.SecretRequestsByInfo, r.info, r.id); err != nil {
		return err
	}
	from, to := partitions.OutgoingSecretRequests, partitions.UnsentSecretRequests
	if r.sentOut {
		from, to = to, from
	}
	if err := tx.Delete(from, r.id); err != nil {
		return err
	}
	return tx.Put(to, r.id, r.value)
}

// getRequest looks up a request by ID, sent requests first.
func (s *Store) getRequest(op string, tx kv.Tx, id []byte) (*gossip.Request, error) {
	value, err := get(tx, partitions.OutgoingSecretRequests, id)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value, err = get(tx, partitions.UnsentSecretRequests, id)
		if err != nil || value == nil {
			return nil, err
		}
	}
	var r gossip.Request
	if err := s.decrypt(op, secretRequestAD, value, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetOutgoingSecretRequest returns the request with the given ID or nil.
func (s *Store) GetOutgoingSecretRequest(requestID string) (*gossip.Request, error) {
	const op = "get outgoing secret request"
	var r *gossip.Request
	err := s.view(op, partitions.gossip(), func(tx kv.Tx) error {
		var err error
		r, err = s.getRequest(op, tx, []byte(requestID))
		return err
	})
	return r, err
}

// GetSecretRequestByDescriptor returns the request for the secret described by
// info or nil.
func (s *Store) GetSecretRequestByDescriptor(info gossip.SecretInfo) (*gossip.Request, error) {
	const op = "get secret request by descriptor"
	key, err := info.AsKey()
	if err != nil {
		return nil, newError(ErrSerialization, op, err)
	}
	var r *gossip.Request
	err = s.view(op, partitions.gossip(), func(tx kv.Tx) error {
		id, err := get(tx, partitions.SecretRequestsByInfo, []byte(key))
		if err != nil || id == nil {
			return err
		}
		r, err = s.getRequest(op, tx, id)
		return err
	})
	return r, err
}

// GetUnsentSecretRequests returns all requests which were not sent out yet.
// Records which cannot be decrypted are skipped.
func (s *Store) GetUnsentSecretRequests() ([]*gossip.Request, error) {
	const op = "get unsent secret requests"
	var requests []*gossip.Request
	err := s.view(op, []string{partitions.UnsentSecretRequests}, func(tx kv.Tx) error {
		return tx.Scan(partitions.UnsentSecretRequests, kv.Range{}, func(k, v []byte) error {
			var r gossip.Request
			if err := s.openRecord(secretRequestAD, v, &r); err != nil {
				log.Warnf("cryptostore: skip secret request '%s': %s", k, err)
				return nil
			}
			requests = append(requests, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// DeleteOutgoingSecretRequest removes the request with the given ID from all
// indexes. Deleting an unknown request is not an error.
func (s *Store) DeleteOutgoingSecretRequest(requestID string) error {
	const op = "delete outgoing secret request"
	id := []byte(requestID)
	return s.update(op, partitions.gossip(), func(tx kv.Tx) error {
		r, err := s.getRequest(op, tx, id)
		if err != nil {
			return err
		}
		if r != nil {
			info, err := r.Info.AsKey()
			if err != nil {
				return newError(ErrSerialization, op, err)
			}
			// the info may point to a newer request for the same secret
			current, err := get(tx, partitions.SecretRequestsByInfo, []byte(info))
			if err != nil {
				return err
			}
			if bytes.Equal(current, id) {
				if err := tx.Delete(partitions.SecretRequestsByInfo, []byte(info)); err != nil {
					return err
				}
			}
		}
		if err := tx.Delete(partitions.OutgoingSecretRequests, id); err != nil {
			return err
		}
		return tx.Delete(partitions.UnsentSecretRequests, id)
	})
}
