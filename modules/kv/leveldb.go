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

package kv

import (
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	ldbiterator "github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/chainofclaw/COC-sub002/log"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// LevelStore implements Store over goleveldb.
type LevelStore struct {
	db     *leveldb.DB
	path   string
	closed bool
	mu     sync.Mutex
}

// Open opens (creating if necessary) a leveldb store at path. Corruption
// that leveldb cannot transparently recover is surfaced as ErrCorrupted.
func Open(path string) (*LevelStore, error) {
	opts := &opt.Options{
		Filter:                 filter.NewBloomFilter(10),
		OpenFilesCacheCapacity: 64,
	}
	db, err := leveldb.OpenFile(path, opts)
	if ldberrors.IsCorrupted(err) {
		log.Error("Store corrupted on open", "path", path, "err", err)
		return nil, errors.Wrap(errors.ErrCorrupted, err.Error())
	}
	if err != nil {
		return nil, err
	}
	return &LevelStore{db: db, path: path}, nil
}

// Repair attempts leveldb recovery at path and reopens the store.
func Repair(path string) (*LevelStore, error) {
	db, err := leveldb.RecoverFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCorrupted, err.Error())
	}
	log.Warn("Store repaired", "path", path)
	return &LevelStore{db: db, path: path}, nil
}

// OpenMemory returns an in-memory store for tests.
func OpenMemory() *LevelStore {
	db, _ := leveldb.Open(storage.NewMemStorage(), nil)
	return &LevelStore{db: db, path: "(memory)"}
}

// Get implements Reader.
func (s *LevelStore) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, errors.ErrKeyNotFound
	}
	if ldberrors.IsCorrupted(err) {
		return nil, errors.Wrap(errors.ErrCorrupted, err.Error())
	}
	return v, err
}

// Has implements Reader.
func (s *LevelStore) Has(key []byte) (bool, error) {
	return s.db.Has(key, nil)
}

// Put implements Writer with synchronous durability.
func (s *LevelStore) Put(key, value []byte) error {
	return s.db.Put(key, value, &opt.WriteOptions{Sync: true})
}

// Delete implements Writer.
func (s *LevelStore) Delete(key []byte) error {
	return s.db.Delete(key, &opt.WriteOptions{Sync: true})
}

// NewBatch implements Store.
func (s *LevelStore) NewBatch() Batch {
	return &levelBatch{db: s.db, b: new(leveldb.Batch)}
}

// NewIterator implements Store. The iterator is backed by a leveldb
// snapshot and sees a consistent view regardless of concurrent writes.
func (s *LevelStore) NewIterator(prefix []byte) Iterator {
	return &levelIterator{it: s.db.NewIterator(util.BytesPrefix(prefix), nil)}
}

// Stat implements Store.
func (s *LevelStore) Stat() (string, error) {
	return s.db.GetProperty("leveldb.stats")
}

// Close implements io.Closer. Closing twice is a no-op.
func (s *LevelStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Path returns the on-disk location.
func (s *LevelStore) Path() string { return s.path }

type levelBatch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func (b *levelBatch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *levelBatch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size += len(key)
	return nil
}

func (b *levelBatch) ValueSize() int { return b.size }

func (b *levelBatch) Write() error {
	return b.db.Write(b.b, &opt.WriteOptions{Sync: true})
}

func (b *levelBatch) Reset() {
	b.b.Reset()
	b.size = 0
}

type levelIterator struct {
	it ldbiterator.Iterator
}

func (i *levelIterator) Next() bool    { return i.it.Next() }
func (i *levelIterator) Key() []byte   { return i.it.Key() }
func (i *levelIterator) Value() []byte { return i.it.Value() }
func (i *levelIterator) Error() error  { return i.it.Error() }
func (i *levelIterator) Release()      { i.it.Release() }
