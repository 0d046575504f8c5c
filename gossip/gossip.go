// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gossip defines outgoing secret requests: requests to our other
// devices for a room key or a named secret this device is missing.
package gossip

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrEmptyInfo is returned if a SecretInfo names neither a room key nor a
// secret.
var ErrEmptyInfo = errors.New("gossip: secret info is empty")

// RequestedKeyInfo describes a requested room key.
type RequestedKeyInfo struct {
	Algorithm string `json:"algorithm"`
	RoomID    string `json:"room_id"`
	SenderKey string `json:"sender_key"`
	SessionID string `json:"session_id"`
}

// SecretInfo describes which secret a request is for. Exactly one of RoomKey
// and SecretName is set.
type SecretInfo struct {
	RoomKey    *RequestedKeyInfo `json:"room_key,omitempty"`
	SecretName string            `json:"secret_name,omitempty"`
}

// AsKey returns the canonical encoding of info. Two infos describing the
// same secret have the same key.
func (info SecretInfo) AsKey() (string, error) {
	switch {
	case info.RoomKey != nil:
		return strings.Join([]string{
			info.RoomKey.RoomID,
			info.RoomKey.SenderKey,
			info.RoomKey.Algorithm,
			info.RoomKey.SessionID,
		}, "|"), nil
	case info.SecretName != "":
		return info.SecretName, nil
	default:
		return "", ErrEmptyInfo
	}
}

// Request is an outgoing secret request.
type Request struct {
	// Recipient is the user the request is sent to, always our own user.
	Recipient string     `json:"request_recipient"`
	RequestID string     `json:"request_id"`
	Info      SecretInfo `json:"info"`
	// SentOut is set once the request was sent to the server.
	SentOut bool `json:"sent_out"`
}

// NewRequest returns a new unsent request for info with a random request ID.
func NewRequest(recipient string, info SecretInfo) *Request {
	return &Request{
		Recipient: recipient,
		RequestID: uuid.NewString(),
		Info:      info,
	}
}
