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

package rawdb

import (
	"encoding/json"

	"github.com/chainofclaw/COC-sub002/common/block"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/pkg/errors"

	"github.com/chainofclaw/COC-sub002/modules/kv"
)

// Query limits for log filtering.
const (
	// MaxLogBlockRange caps [fromBlock, toBlock] spans.
	MaxLogBlockRange uint64 = 10_000

	// MaxLogResults caps the returned log count.
	MaxLogResults = 10_000

	// MaxFilterTopics is the positional topic limit.
	MaxFilterTopics = 4
)

// LogFilter selects logs by block range, address set and positional
// topics. A nil topic position matches anything; a position with several
// hashes matches any of them (OR).
type LogFilter struct {
	FromBlock uint64
	ToBlock   uint64
	Addresses []types.Address
	Topics    [][]types.Hash
}

// Matches reports whether a single log passes the address and topic
// constraints (the block range is handled by iteration).
func (f *LogFilter) Matches(lg *block.Log) bool {
	if len(f.Addresses) > 0 {
		found := false
		for _, a := range f.Addresses {
			if a == lg.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, alternatives := range f.Topics {
		if len(alternatives) == 0 {
			continue // wildcard position
		}
		if i >= len(lg.Topics) {
			return false
		}
		found := false
		for _, t := range alternatives {
			if t == lg.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// GetLogs iterates the L/ range [FromBlock, ToBlock] inclusively and
// post-filters. The block range and result set are capped.
func GetLogs(store kv.Store, filter *LogFilter) ([]*block.Log, error) {
	if filter.ToBlock < filter.FromBlock {
		return []*block.Log{}, nil
	}
	if filter.ToBlock-filter.FromBlock+1 > MaxLogBlockRange {
		return nil, errors.ErrRangeTooWide
	}
	if len(filter.Topics) > MaxFilterTopics {
		return nil, errors.Errorf("filter has %d topic positions, max %d", len(filter.Topics), MaxFilterTopics)
	}

	var out []*block.Log
	for num := filter.FromBlock; num <= filter.ToBlock; num++ {
		it := store.NewIterator(LogBlockPrefix(num))
		for it.Next() {
			var lg block.Log
			if err := json.Unmarshal(it.Value(), &lg); err != nil {
				it.Release()
				return nil, errors.Wrap(err, "decode stored log")
			}
			if !filter.Matches(&lg) {
				continue
			}
			out = append(out, &lg)
			if len(out) > MaxLogResults {
				it.Release()
				return nil, errors.ErrTooManyResults
			}
		}
		err := it.Error()
		it.Release()
		if err != nil {
			return nil, err
		}
		if num == ^uint64(0) {
			break
		}
	}
	if out == nil {
		out = []*block.Log{}
	}
	return out, nil
}
