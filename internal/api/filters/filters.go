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

// Package filters implements polling filters (eth_newFilter family) and
// the filter-criteria parsing shared with the WebSocket log subscription.
package filters

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chainofclaw/COC-sub002/common/block"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/modules/rawdb"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// Criteria is the wire form of a log filter.
type Criteria struct {
	FromBlock string          `json:"fromBlock"`
	ToBlock   string          `json:"toBlock"`
	Address   json.RawMessage `json:"address"`
	Topics    []json.RawMessage `json:"topics"`
	BlockHash *string         `json:"blockHash"`
}

// ParseAddresses statically validates the address field: a single hex-40
// string or an OR-set of them.
func (c *Criteria) ParseAddresses() ([]types.Address, error) {
	if len(c.Address) == 0 || string(c.Address) == "null" {
		return nil, nil
	}
	var single string
	if err := json.Unmarshal(c.Address, &single); err == nil {
		if !types.IsHexAddress(single) {
			return nil, errors.Errorf("invalid address %q", single)
		}
		return []types.Address{types.HexToAddress(single)}, nil
	}
	var many []string
	if err := json.Unmarshal(c.Address, &many); err != nil {
		return nil, errors.New("address must be a string or array of strings")
	}
	out := make([]types.Address, 0, len(many))
	for _, s := range many {
		if !types.IsHexAddress(s) {
			return nil, errors.Errorf("invalid address %q", s)
		}
		out = append(out, types.HexToAddress(s))
	}
	return out, nil
}

// ParseTopics statically validates the topics array: at most 4 positions,
// each null, a hex-64 string, or an OR-set of hex-64 strings.
func (c *Criteria) ParseTopics() ([][]types.Hash, error) {
	if len(c.Topics) > rawdb.MaxFilterTopics {
		return nil, errors.Errorf("too many topic positions: %d > %d", len(c.Topics), rawdb.MaxFilterTopics)
	}
	out := make([][]types.Hash, len(c.Topics))
	for i, raw := range c.Topics {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var single string
		if err := json.Unmarshal(raw, &single); err == nil {
			if !types.IsHexHash(single) {
				return nil, errors.Errorf("invalid topic %q", single)
			}
			out[i] = []types.Hash{types.HexToHash(single)}
			continue
		}
		var many []string
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, errors.New("topic must be null, a string or an array of strings")
		}
		for _, s := range many {
			if !types.IsHexHash(s) {
				return nil, errors.Errorf("invalid topic %q", s)
			}
			out[i] = append(out[i], types.HexToHash(s))
		}
	}
	return out, nil
}

// Backend is the chain surface filters poll against.
type Backend interface {
	Height() uint64
	FinalizedHeight() uint64
	GetBlockByNumber(number uint64) *block.Block
	GetBlockByHash(hash types.Hash) *block.Block
	GetReceipts(number uint64) block.Receipts
	PendingTxHashes() []types.Hash
}

// filterKind discriminates polling filter types.
type filterKind int

const (
	kindLog filterKind = iota
	kindBlock
	kindPendingTx
)

type filterState struct {
	kind     filterKind
	query    *rawdb.LogFilter
	lastPoll time.Time

	lastBlock uint64
	seenTx    map[types.Hash]struct{}
}

// FilterAPI implements the eth polling-filter methods.
type FilterAPI struct {
	backend Backend
	timeout time.Duration

	mu      sync.Mutex
	filters map[string]*filterState
}

// NewFilterAPI creates the filter service; idle filters expire after
// timeout.
func NewFilterAPI(backend Backend, timeout time.Duration) *FilterAPI {
	api := &FilterAPI{
		backend: backend,
		timeout: timeout,
		filters: make(map[string]*filterState),
	}
	go api.expireLoop()
	return api
}

func (api *FilterAPI) expireLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		api.mu.Lock()
		cutoff := time.Now().Add(-api.timeout)
		for id, f := range api.filters {
			if f.lastPoll.Before(cutoff) {
				delete(api.filters, id)
			}
		}
		api.mu.Unlock()
	}
}

func (api *FilterAPI) install(f *filterState) string {
	id := "0x" + uuid.New().String()[:8] + uuid.New().String()[:8]
	f.lastPoll = time.Now()
	api.mu.Lock()
	api.filters[id] = f
	api.mu.Unlock()
	return id
}

// resolveRange resolves from/to tags against the current height.
func (api *FilterAPI) resolveRange(c *Criteria) (uint64, uint64, error) {
	height := api.backend.Height()
	resolve := func(tag string, dflt uint64) (uint64, error) {
		switch tag {
		case "", "latest", "pending":
			return dflt, nil
		case "earliest":
			return 1, nil
		case "finalized", "safe":
			return api.backend.FinalizedHeight(), nil
		default:
			var n uint64
			if err := json.Unmarshal([]byte(`"`+tag+`"`), &hexU64{&n}); err != nil {
				return 0, errors.Errorf("invalid block tag %q", tag)
			}
			return n, nil
		}
	}
	from, err := resolve(c.FromBlock, height)
	if err != nil {
		return 0, 0, err
	}
	to, err := resolve(c.ToBlock, height)
	if err != nil {
		return 0, 0, err
	}
	return from, to, nil
}

// hexU64 decodes a "0x..." quantity inside json.
type hexU64 struct{ v *uint64 }

func (h *hexU64) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if len(s) < 3 || (s[:2] != "0x" && s[:2] != "0X") {
		return errors.Errorf("not a hex quantity: %q", s)
	}
	var parsed uint64
	for _, c := range s[2:] {
		parsed <<= 4
		switch {
		case c >= '0' && c <= '9':
			parsed |= uint64(c - '0')
		case c >= 'a' && c <= 'f':
			parsed |= uint64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			parsed |= uint64(c-'A') + 10
		default:
			return errors.Errorf("not a hex quantity: %q", s)
		}
	}
	*h.v = parsed
	return nil
}

// buildQuery converts parsed criteria into a rawdb filter.
func (api *FilterAPI) buildQuery(c *Criteria) (*rawdb.LogFilter, error) {
	addresses, err := c.ParseAddresses()
	if err != nil {
		return nil, err
	}
	topics, err := c.ParseTopics()
	if err != nil {
		return nil, err
	}
	var from, to uint64
	if c.BlockHash != nil {
		if !types.IsHexHash(*c.BlockHash) {
			return nil, errors.Errorf("invalid block hash %q", *c.BlockHash)
		}
		blk := api.backend.GetBlockByHash(types.HexToHash(*c.BlockHash))
		if blk == nil {
			return nil, errors.New("unknown block")
		}
		from, to = blk.Number, blk.Number
	} else {
		from, to, err = api.resolveRange(c)
		if err != nil {
			return nil, err
		}
	}
	return &rawdb.LogFilter{FromBlock: from, ToBlock: to, Addresses: addresses, Topics: topics}, nil
}

// runQuery scans chain receipts in-range and post-filters.
func (api *FilterAPI) runQuery(q *rawdb.LogFilter) ([]*block.Log, error) {
	if q.ToBlock < q.FromBlock {
		return []*block.Log{}, nil
	}
	if q.ToBlock-q.FromBlock+1 > rawdb.MaxLogBlockRange {
		return nil, errors.ErrRangeTooWide
	}
	out := []*block.Log{}
	for n := q.FromBlock; n <= q.ToBlock && n <= api.backend.Height(); n++ {
		for _, rec := range api.backend.GetReceipts(n) {
			for _, lg := range rec.Logs {
				if q.Matches(lg) {
					out = append(out, lg)
					if len(out) > rawdb.MaxLogResults {
						return nil, errors.ErrTooManyResults
					}
				}
			}
		}
		if n == ^uint64(0) {
			break
		}
	}
	return out, nil
}

// GetLogs implements eth_getLogs.
func (api *FilterAPI) GetLogs(c Criteria) ([]*block.Log, error) {
	q, err := api.buildQuery(&c)
	if err != nil {
		return nil, err
	}
	return api.runQuery(q)
}

// NewFilter implements eth_newFilter.
func (api *FilterAPI) NewFilter(c Criteria) (string, error) {
	q, err := api.buildQuery(&c)
	if err != nil {
		return "", err
	}
	return api.install(&filterState{
		kind:      kindLog,
		query:     q,
		lastBlock: api.backend.Height(),
	}), nil
}

// NewBlockFilter implements eth_newBlockFilter.
func (api *FilterAPI) NewBlockFilter() string {
	return api.install(&filterState{kind: kindBlock, lastBlock: api.backend.Height()})
}

// NewPendingTransactionFilter implements eth_newPendingTransactionFilter.
func (api *FilterAPI) NewPendingTransactionFilter() string {
	seen := make(map[types.Hash]struct{})
	for _, h := range api.backend.PendingTxHashes() {
		seen[h] = struct{}{}
	}
	return api.install(&filterState{kind: kindPendingTx, seenTx: seen})
}

// UninstallFilter implements eth_uninstallFilter.
func (api *FilterAPI) UninstallFilter(id string) bool {
	api.mu.Lock()
	defer api.mu.Unlock()
	_, ok := api.filters[id]
	delete(api.filters, id)
	return ok
}

// GetFilterChanges implements eth_getFilterChanges.
func (api *FilterAPI) GetFilterChanges(id string) (interface{}, error) {
	api.mu.Lock()
	f, ok := api.filters[id]
	if ok {
		f.lastPoll = time.Now()
	}
	api.mu.Unlock()
	if !ok {
		return nil, errors.New("filter not found")
	}

	height := api.backend.Height()
	switch f.kind {
	case kindBlock:
		hashes := []types.Hash{}
		for n := f.lastBlock + 1; n <= height; n++ {
			if blk := api.backend.GetBlockByNumber(n); blk != nil {
				hashes = append(hashes, blk.Hash)
			}
		}
		f.lastBlock = height
		return hashes, nil

	case kindPendingTx:
		fresh := []types.Hash{}
		for _, h := range api.backend.PendingTxHashes() {
			if _, dup := f.seenTx[h]; !dup {
				f.seenTx[h] = struct{}{}
				fresh = append(fresh, h)
			}
		}
		return fresh, nil

	default:
		q := *f.query
		if f.lastBlock+1 > q.FromBlock {
			q.FromBlock = f.lastBlock + 1
		}
		q.ToBlock = height
		f.lastBlock = height
		return api.runQuery(&q)
	}
}

// GetFilterLogs implements eth_getFilterLogs: the full original range.
func (api *FilterAPI) GetFilterLogs(id string) ([]*block.Log, error) {
	api.mu.Lock()
	f, ok := api.filters[id]
	if ok {
		f.lastPoll = time.Now()
	}
	api.mu.Unlock()
	if !ok || f.kind != kindLog {
		return nil, errors.New("filter not found")
	}
	return api.runQuery(f.query)
}
