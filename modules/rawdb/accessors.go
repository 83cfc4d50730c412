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
	"github.com/chainofclaw/COC-sub002/modules/kv"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// TxLookupEntry is the value stored under T/<hash>.
type TxLookupEntry struct {
	RawTx       string         `json:"rawTx"`
	Receipt     *block.Receipt `json:"receipt"`
	BlockNumber uint64         `json:"blockNumber"`
}

// WriteBlock stores a block and all of its derived index entries in one
// atomic batch: the block body, per-tx lookups, address history and logs.
func WriteBlock(store kv.Store, blk *block.Block, receipts block.Receipts, senders []types.Address) error {
	batch := store.NewBatch()

	body, err := json.Marshal(blk)
	if err != nil {
		return err
	}
	if err := batch.Put(BlockKey(blk.Number), body); err != nil {
		return err
	}

	for i, rec := range receipts {
		entry := TxLookupEntry{RawTx: blk.Txs[i], Receipt: rec, BlockNumber: blk.Number}
		val, err := json.Marshal(&entry)
		if err != nil {
			return err
		}
		if err := batch.Put(TxLookupKey(rec.TxHash), val); err != nil {
			return err
		}
		if i < len(senders) {
			if err := batch.Put(AddressTxKey(senders[i], blk.Number, uint32(i)), rec.TxHash.Bytes()); err != nil {
				return err
			}
		}
		for _, lg := range rec.Logs {
			raw, err := json.Marshal(lg)
			if err != nil {
				return err
			}
			if err := batch.Put(LogKey(blk.Number, lg.TxIndex, lg.LogIndex), raw); err != nil {
				return err
			}
			// Receiving addresses show up in history too.
			if err := batch.Put(AddressTxKey(lg.Address, blk.Number, uint32(i)), rec.TxHash.Bytes()); err != nil {
				return err
			}
		}
	}

	return batch.Write()
}

// ReadBlock loads the block stored at number, or nil when absent.
func ReadBlock(store kv.Store, number uint64) (*block.Block, error) {
	raw, err := store.Get(BlockKey(number))
	if errors.Is(err, errors.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var blk block.Block
	if err := json.Unmarshal(raw, &blk); err != nil {
		return nil, errors.Wrap(err, "decode stored block")
	}
	return &blk, nil
}

// ReadTxLookup loads the lookup entry for a transaction hash, or nil.
func ReadTxLookup(store kv.Store, txHash types.Hash) (*TxLookupEntry, error) {
	raw, err := store.Get(TxLookupKey(txHash))
	if errors.Is(err, errors.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry TxLookupEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, errors.Wrap(err, "decode tx lookup")
	}
	return &entry, nil
}

// ReadAddressTxs returns up to limit tx hashes touching addr, in block
// order (reverse when requested). limit <= 0 means unbounded.
func ReadAddressTxs(store kv.Store, addr types.Address, reverse bool, limit int) ([]types.Hash, error) {
	it := store.NewIterator(AddressTxPrefix(addr))
	defer it.Release()

	var hashes []types.Hash
	seen := map[types.Hash]struct{}{}
	for it.Next() {
		h := types.BytesToHash(it.Value())
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		hashes = append(hashes, h)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	if reverse {
		for i, j := 0, len(hashes)-1; i < j; i, j = i+1, j-1 {
			hashes[i], hashes[j] = hashes[j], hashes[i]
		}
	}
	if limit > 0 && len(hashes) > limit {
		hashes = hashes[:limit]
	}
	return hashes, nil
}

// WriteSnapshotHead records the snapshot head number.
func WriteSnapshotHead(w kv.Writer, number uint64) error {
	return w.Put(HeadKey, EncodeBlockNumber(number))
}

// ReadSnapshotHead returns the snapshot head number, or 0 when unset.
func ReadSnapshotHead(store kv.Store) (uint64, error) {
	raw, err := store.Get(HeadKey)
	if errors.Is(err, errors.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return DecodeBlockNumber(raw), nil
}

// WriteSnapshotBlock mirrors a block into the X/ snapshot table.
func WriteSnapshotBlock(w kv.Writer, blk *block.Block) error {
	raw, err := json.Marshal(blk)
	if err != nil {
		return err
	}
	return w.Put(SnapshotBlockKey(blk.Number), raw)
}

// ReadSnapshotBlock loads one snapshot block, or nil.
func ReadSnapshotBlock(store kv.Store, number uint64) (*block.Block, error) {
	raw, err := store.Get(SnapshotBlockKey(number))
	if errors.Is(err, errors.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var blk block.Block
	if err := json.Unmarshal(raw, &blk); err != nil {
		return nil, err
	}
	return &blk, nil
}

// PrunerStats is the metadata blob stored under P/stats.
type PrunerStats struct {
	LastRunMs      uint64 `json:"lastRunMs"`
	EntriesScanned uint64 `json:"entriesScanned"`
	EntriesDeleted uint64 `json:"entriesDeleted"`
	Runs           uint64 `json:"runs"`
}

// WritePrunerStats stores pruner metadata.
func WritePrunerStats(w kv.Writer, stats *PrunerStats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return w.Put(PrunerStatsKey, raw)
}

// ReadPrunerStats loads pruner metadata; absent stats decode to zeroes.
func ReadPrunerStats(store kv.Store) (*PrunerStats, error) {
	raw, err := store.Get(PrunerStatsKey)
	if errors.Is(err, errors.ErrKeyNotFound) {
		return &PrunerStats{}, nil
	}
	if err != nil {
		return nil, err
	}
	var stats PrunerStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
