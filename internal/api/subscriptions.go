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

package api

import (
	"encoding/json"
	"sync"

	"github.com/chainofclaw/COC-sub002/common/block"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/internal"
	"github.com/chainofclaw/COC-sub002/internal/api/filters"
	"github.com/chainofclaw/COC-sub002/modules/rawdb"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// SubscriptionHub adapts chain events onto the WebSocket subscription
// backend. Delivery order within one subscription matches commit order on
// the engine.
type SubscriptionHub struct {
	api *API

	startOnce sync.Once

	mu       sync.Mutex
	nextID   uint64
	heads    map[uint64]func(interface{})
	pending  map[uint64]func(interface{})
	logSinks map[uint64]logSink
}

type logSink struct {
	filter *rawdb.LogFilter
	notify func(interface{})
}

// NewSubscriptionHub creates the hub; event pumps start on first use.
func NewSubscriptionHub(api *API) *SubscriptionHub {
	return &SubscriptionHub{
		api:      api,
		heads:    make(map[uint64]func(interface{})),
		pending:  make(map[uint64]func(interface{})),
		logSinks: make(map[uint64]logSink),
	}
}

func (h *SubscriptionHub) start() {
	h.startOnce.Do(func() {
		events := make(chan internal.ChainEvent, 256)
		h.api.chain.SubscribeChainEvents(events)
		go func() {
			for ev := range events {
				h.deliver(ev)
			}
		}()
	})
}

func (h *SubscriptionHub) deliver(ev internal.ChainEvent) {
	h.mu.Lock()
	heads := make([]func(interface{}), 0, len(h.heads))
	for _, sink := range h.heads {
		heads = append(heads, sink)
	}
	sinks := make([]logSink, 0, len(h.logSinks))
	for _, s := range h.logSinks {
		sinks = append(sinks, s)
	}
	h.mu.Unlock()

	head := map[string]interface{}{
		"number":      EncodeUint64(ev.Block.Number),
		"hash":        ev.Block.Hash,
		"parentHash":  ev.Block.ParentHash,
		"miner":       ev.Block.Proposer,
		"timestamp":   EncodeUint64(ev.Block.TimestampMs / 1000),
		"timestampMs": EncodeUint64(ev.Block.TimestampMs),
		"baseFeePerGas": EncodeBig(ev.Block.BaseFee),
		"gasUsed":       EncodeUint64(ev.Block.GasUsed),
	}
	for _, sink := range heads {
		sink(head)
	}
	for _, rec := range ev.Receipts {
		for _, lg := range rec.Logs {
			for _, s := range sinks {
				if s.filter == nil || s.filter.Matches(lg) {
					s.notify(lg)
				}
			}
		}
	}
}

// NotifyPendingTx pushes a freshly admitted transaction hash to
// newPendingTransactions subscribers.
func (h *SubscriptionHub) NotifyPendingTx(hash types.Hash) {
	h.mu.Lock()
	sinks := make([]func(interface{}), 0, len(h.pending))
	for _, sink := range h.pending {
		sinks = append(sinks, sink)
	}
	h.mu.Unlock()
	for _, sink := range sinks {
		sink(hash.Hex())
	}
}

// Subscribe implements jsonrpc.SubscriptionBackend.
func (h *SubscriptionHub) Subscribe(subType string, params json.RawMessage, sink func(interface{})) (func(), error) {
	h.start()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID

	switch subType {
	case "newHeads":
		h.heads[id] = sink

	case "newPendingTransactions":
		h.pending[id] = sink

	case "logs":
		var crit filters.Criteria
		if len(params) > 0 {
			if err := json.Unmarshal(params, &crit); err != nil {
				return nil, errors.Wrap(err, "log filter params")
			}
		}
		addresses, err := crit.ParseAddresses()
		if err != nil {
			return nil, err
		}
		topics, err := crit.ParseTopics()
		if err != nil {
			return nil, err
		}
		h.logSinks[id] = logSink{
			filter: &rawdb.LogFilter{Addresses: addresses, Topics: topics, ToBlock: ^uint64(0)},
			notify: sink,
		}

	default:
		return nil, errors.Errorf("unknown subscription type %q", subType)
	}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.heads, id)
		delete(h.pending, id)
		delete(h.logSinks, id)
	}
	return cancel, nil
}

// filtersBackend adapts the chain engine to the filters package.
type filtersBackend struct {
	chain *internal.BlockChain
}

func (b *filtersBackend) Height() uint64          { return b.chain.Height() }
func (b *filtersBackend) FinalizedHeight() uint64 { return b.chain.FinalizedHeight() }
func (b *filtersBackend) GetBlockByNumber(n uint64) *block.Block {
	return b.chain.GetBlockByNumber(n)
}
func (b *filtersBackend) GetBlockByHash(h types.Hash) *block.Block {
	return b.chain.GetBlockByHash(h)
}
func (b *filtersBackend) GetReceipts(n uint64) block.Receipts {
	return b.chain.GetReceipts(n)
}
func (b *filtersBackend) PendingTxHashes() []types.Hash {
	entries := b.chain.Pool().GetAll()
	out := make([]types.Hash, len(entries))
	for i, e := range entries {
		out[i] = e.Hash
	}
	return out
}
