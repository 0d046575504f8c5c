// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package base64 implements the unpadded base64 encoding used for keys,
// hashes and pickles in the crypto store.
package base64

import (
	"encoding/base64"
)

// base64Encoding defines the base64 encoding used by the messaging protocol.
var base64Encoding = base64.RawStdEncoding

// Encode returns the unpadded base64 encoding of src.
func Encode(src []byte) string {
	return base64Encoding.EncodeToString(src)
}
