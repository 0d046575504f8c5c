// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cryptostore

import (
	"errors"
	"fmt"

	"github.com/mutecomm/cryptostore/cipher"
	"github.com/mutecomm/cryptostore/log"
	"github.com/mutecomm/cryptostore/olm"
)

// Error kinds. Every error returned by a Store is an *Error, use errors.Is to
// test its kind.
var (
	// ErrStorageEngine is returned if the storage engine failed to open,
	// read, or commit a transaction.
	ErrStorageEngine = errors.New("cryptostore: storage engine error")
	// ErrSerialization is returned if a record does not decode to the
	// expected shape or could not be encoded.
	ErrSerialization = errors.New("cryptostore: serialization error")
	// ErrUnpickling is returned if a record could not be decrypted, because
	// of a wrong key, a wrong passphrase, or a corrupted ciphertext.
	ErrUnpickling = errors.New("cryptostore: unpickling error")
	// ErrAccountUnset is returned if an operation needs the account, but no
	// account was loaded or saved yet.
	ErrAccountUnset = errors.New("cryptostore: account unset")
	// ErrKeyRange is returned if no key range could be built for a prefix.
	ErrKeyRange = errors.New("cryptostore: invalid key range")
)

// Error is the error type returned by a Store.
type Error struct {
	Kind error  // one of the error kinds above
	Op   string // the failed operation
	Err  error  // the underlying error, if any
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Is reports whether target is the kind of e.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError logs and returns a new *Error.
func newError(kind error, op string, err error) error {
	return log.Error(&Error{Kind: kind, Op: op, Err: err})
}

// engineError returns err if it is already an *Error and wraps it as
// ErrStorageEngine otherwise.
func engineError(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return newError(ErrStorageEngine, op, err)
}

// pickleError maps a decryption or decoding failure onto the error kinds.
func pickleError(op string, err error) error {
	switch {
	case errors.Is(err, olm.ErrUnpickle), errors.Is(err, cipher.ErrAuthentication):
		return newError(ErrUnpickling, op, err)
	default:
		return newError(ErrSerialization, op, err)
	}
}
