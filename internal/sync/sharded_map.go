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

package sync

import (
	"sync"

	"github.com/chainofclaw/COC-sub002/common/types"
)

// ShardCount defines the number of shards for sharded maps. getShard
// indexes with a full byte and no modulo, so it must stay 256.
const ShardCount = 256

// ShardedAddressMap is a concurrent map sharded by address for reduced
// lock contention. The mempool stores per-sender queues in it so that
// nonce lookups and txpool_content reads do not contend with the pool
// write lock.
type ShardedAddressMap[V any] struct {
	shards [ShardCount]struct {
		sync.RWMutex
		data map[types.Address]V
	}
}

// NewShardedAddressMap creates a new sharded address map.
func NewShardedAddressMap[V any]() *ShardedAddressMap[V] {
	m := &ShardedAddressMap[V]{}
	for i := range m.shards {
		m.shards[i].data = make(map[types.Address]V)
	}
	return m
}

// getShard returns the shard index for an address.
func (m *ShardedAddressMap[V]) getShard(addr types.Address) uint8 {
	// First byte XOR last byte spreads both random addresses and
	// low-entropy test addresses across shards.
	return addr[0] ^ addr[types.AddressLength-1]
}

// Get retrieves a value by address.
func (m *ShardedAddressMap[V]) Get(addr types.Address) (V, bool) {
	shard := &m.shards[m.getShard(addr)]
	shard.RLock()
	v, ok := shard.data[addr]
	shard.RUnlock()
	return v, ok
}

// Set stores a value by address.
func (m *ShardedAddressMap[V]) Set(addr types.Address, value V) {
	shard := &m.shards[m.getShard(addr)]
	shard.Lock()
	shard.data[addr] = value
	shard.Unlock()
}

// Delete removes a value by address.
func (m *ShardedAddressMap[V]) Delete(addr types.Address) {
	shard := &m.shards[m.getShard(addr)]
	shard.Lock()
	delete(shard.data, addr)
	shard.Unlock()
}

// Has checks if an address exists.
func (m *ShardedAddressMap[V]) Has(addr types.Address) bool {
	shard := &m.shards[m.getShard(addr)]
	shard.RLock()
	_, ok := shard.data[addr]
	shard.RUnlock()
	return ok
}

// Len returns the total number of entries.
func (m *ShardedAddressMap[V]) Len() int {
	total := 0
	for i := range m.shards {
		m.shards[i].RLock()
		total += len(m.shards[i].data)
		m.shards[i].RUnlock()
	}
	return total
}

// Range iterates over all entries. The callback should not modify the map.
func (m *ShardedAddressMap[V]) Range(f func(addr types.Address, value V) bool) {
	for i := range m.shards {
		m.shards[i].RLock()
		for addr, value := range m.shards[i].data {
			if !f(addr, value) {
				m.shards[i].RUnlock()
				return
			}
		}
		m.shards[i].RUnlock()
	}
}

// Keys returns a snapshot of every key.
func (m *ShardedAddressMap[V]) Keys() []types.Address {
	out := make([]types.Address, 0)
	m.Range(func(addr types.Address, _ V) bool {
		out = append(out, addr)
		return true
	})
	return out
}
