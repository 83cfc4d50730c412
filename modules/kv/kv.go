// Copyright 2022-2026 The COC Authors
// This file is part of the COC library.
//
// The COC library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The COC library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the COC library. If not, see <http://www.gnu.org/licenses/>.

// Package kv provides the ordered key-value store backing the chain
// index, the PoSe replay registry and the aggregator. Batches are atomic
// and durable on completion; iterators see a consistent snapshot.
//
// The only supported backend is leveldb. On open, detected corruption is
// surfaced as ErrCorrupted so the node can refuse to start; Repair wraps
// leveldb's recovery path.
package kv

import "io"

// =============================================================================
// Store Interfaces
// =============================================================================

// Reader provides read access to the store.
type Reader interface {
	// Get retrieves the value for key. Returns ErrKeyNotFound when absent.
	Get(key []byte) ([]byte, error)

	// Has reports whether key exists.
	Has(key []byte) (bool, error)
}

// Writer provides write access to the store.
type Writer interface {
	// Put stores value under key, replacing any previous value.
	Put(key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key []byte) error
}

// Batch is a set of writes applied atomically by Write.
type Batch interface {
	Writer

	// ValueSize returns the byte size accumulated in the batch.
	ValueSize() int

	// Write flushes the batch to durable storage atomically.
	Write() error

	// Reset discards the batch contents for reuse.
	Reset()
}

// Iterator walks an ordered key range. It must be released on every
// control-flow exit.
type Iterator interface {
	// Next moves to the next entry, returning false at the end.
	Next() bool

	// Key returns the current key. Only valid until the next call to Next.
	Key() []byte

	// Value returns the current value. Only valid until the next call to Next.
	Value() []byte

	// Error returns the iteration error, if any.
	Error() error

	// Release frees the iterator's snapshot.
	Release()
}

// Store is the full ordered key-value store contract.
type Store interface {
	Reader
	Writer
	io.Closer

	// NewBatch creates an empty atomic write batch.
	NewBatch() Batch

	// NewIterator walks keys beginning with prefix in ascending order over
	// a consistent snapshot.
	NewIterator(prefix []byte) Iterator

	// Stat returns backend statistics for health probes.
	Stat() (string, error)
}
