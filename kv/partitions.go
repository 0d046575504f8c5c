// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kv

import (
	"fmt"
)

// PartitionSet is the set of partitions declared for a transaction.
type PartitionSet map[string]struct{}

// NewPartitionSet returns the set of the given partition names.
func NewPartitionSet(names []string) PartitionSet {
	set := make(PartitionSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// Check returns an error wrapping ErrUnknownPartition if name is not part of
// the set.
func (s PartitionSet) Check(name string) error {
	if _, ok := s[name]; !ok {
		return fmt.Errorf("%w: %q not declared for transaction", ErrUnknownPartition, name)
	}
	return nil
}

// CheckWrite validates a write of key into partition name.
func (s PartitionSet) CheckWrite(name string, key []byte) error {
	if err := s.Check(name); err != nil {
		return err
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return nil
}
