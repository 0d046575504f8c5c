// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package identities defines the device and cross-signing identity records
// the crypto store keeps for every tracked user.
package identities

import (
	"fmt"
)

// LocalTrust is the trust the local user put into a device.
type LocalTrust int

// Local trust states.
const (
	Unset LocalTrust = iota
	Verified
	BlackListed
	Ignored
)

var trustNames = []string{"unset", "verified", "blacklisted", "ignored"}

func (t LocalTrust) String() string {
	if t < 0 || int(t) >= len(trustNames) {
		return fmt.Sprintf("LocalTrust(%d)", int(t))
	}
	return trustNames[t]
}

// Device is a device of a user as published by the server.
type Device struct {
	UserID      string            `json:"user_id"`
	DeviceID    string            `json:"device_id"`
	Algorithms  []string          `json:"algorithms"`
	Keys        map[string]string `json:"keys"`
	DisplayName string            `json:"display_name,omitempty"`
	Deleted     bool              `json:"deleted"`
	Trust       LocalTrust        `json:"trust_state"`
}

// Key returns the key of the device for the given algorithm (e.g.
// "curve25519") or an empty string.
func (d *Device) Key(algorithm string) string {
	return d.Keys[algorithm+":"+d.DeviceID]
}

// Curve25519Key returns the curve25519 identity key of the device.
func (d *Device) Curve25519Key() string { return d.Key("curve25519") }

// Ed25519Key returns the ed25519 signing key of the device.
func (d *Device) Ed25519Key() string { return d.Key("ed25519") }

// IsVerified reports whether the device was verified locally.
func (d *Device) IsVerified() bool { return d.Trust == Verified }

// CrossSigningKey is a public cross-signing key of a user.
type CrossSigningKey struct {
	UserID     string                       `json:"user_id"`
	Usage      []string                     `json:"usage"`
	Keys       map[string]string            `json:"keys"`
	Signatures map[string]map[string]string `json:"signatures,omitempty"`
}

// UserIdentity is the public cross-signing identity of a user. Own is set for
// the identity of the account owner, which additionally has a user-signing
// key.
type UserIdentity struct {
	UserID         string           `json:"user_id"`
	Own            bool             `json:"own"`
	MasterKey      CrossSigningKey  `json:"master_key"`
	SelfSigningKey CrossSigningKey  `json:"self_signing_key"`
	UserSigningKey *CrossSigningKey `json:"user_signing_key,omitempty"`
	Verified       bool             `json:"verified"`
}
