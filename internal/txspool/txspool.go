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

// Package txspool implements the pending transaction pool. Transactions
// are grouped per sender and ordered by nonce; block selection walks the
// head of every sender queue by effective gas price, so per-sender nonce
// monotonicity is preserved while the block maximizes fee revenue.
package txspool

import (
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/btree"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chainofclaw/COC-sub002/common/transaction"
	"github.com/chainofclaw/COC-sub002/common/types"
	gsync "github.com/chainofclaw/COC-sub002/internal/sync"
	"github.com/chainofclaw/COC-sub002/log"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

var pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "coc_txpool_pending",
	Help: "Number of transactions currently pending in the pool.",
})

func init() {
	prometheus.DefaultRegisterer.MustRegister(pendingGauge)
}

// Entry is one pooled transaction plus its decoded identity.
type Entry struct {
	Hash     types.Hash
	From     types.Address
	Nonce    uint64
	GasPrice *uint256.Int // fee cap; priority uses the base-fee-aware effective price
	GasLimit uint64
	RawTx    string
	Tx       *transaction.Transaction
}

// NonceReader resolves the current on-chain nonce of an address.
type NonceReader func(addr types.Address) uint64

// Stats is a point-in-time pool summary.
type Stats struct {
	Pending   int `json:"pending"`
	Senders   int `json:"senders"`
	Confirmed int `json:"confirmed"`
}

// TxsPool is the thread-safe mempool. Writers serialize on mu; the
// per-sender queues live in a sharded address map holding immutable
// nonce-ascending slices that writers replace wholesale, so nonce
// lookups and txpool_content reads never take the pool write lock.
type TxsPool struct {
	mu sync.RWMutex

	chainID     uint64
	minGasPrice *uint256.Int

	all      map[types.Hash]*Entry
	bySender *gsync.ShardedAddressMap[[]*Entry]

	// confirmed remembers hashes included in applied blocks so a
	// re-gossiped transaction is rejected as AlreadyConfirmed.
	confirmed mapset.Set[types.Hash]

	logger log.Logger
}

// NewTxsPool creates an empty pool bound to a chain id and fee floor.
func NewTxsPool(chainID uint64, minGasPrice *uint256.Int) *TxsPool {
	if minGasPrice == nil {
		minGasPrice = uint256.NewInt(0)
	}
	return &TxsPool{
		chainID:     chainID,
		minGasPrice: minGasPrice,
		all:         make(map[types.Hash]*Entry),
		bySender:    gsync.NewShardedAddressMap[[]*Entry](),
		confirmed:   mapset.NewSet[types.Hash](),
		logger:      log.New("module", "txspool"),
	}
}

// Add parses, verifies and admits a raw transaction.
func (p *TxsPool) Add(rawTx string, onchainNonce NonceReader) (*transaction.Transaction, error) {
	tx, err := transaction.Decode(rawTx)
	if err != nil {
		return nil, errors.ErrInvalidSignature
	}
	from, err := tx.Sender()
	if err != nil {
		return nil, errors.ErrInvalidSignature
	}
	if tx.ChainID() != p.chainID {
		return nil, errors.ErrChainIdMismatch
	}
	if tx.GasFeeCap().Cmp(p.minGasPrice) < 0 {
		return nil, errors.ErrFeeTooLow
	}
	hash := tx.Hash()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.confirmed.Contains(hash) {
		return nil, errors.ErrAlreadyConfirmed
	}
	if _, ok := p.all[hash]; ok {
		return nil, errors.ErrAlreadyPending
	}
	if tx.Nonce() < onchainNonce(from) {
		return nil, errors.ErrNonceTooLow
	}

	entry := &Entry{
		Hash:     hash,
		From:     from,
		Nonce:    tx.Nonce(),
		GasPrice: tx.GasFeeCap(),
		GasLimit: tx.GasLimit(),
		RawTx:    rawTx,
		Tx:       tx,
	}
	p.all[hash] = entry
	old, _ := p.bySender.Get(from)
	// Queues are replaced, never mutated in place: a concurrent reader
	// holds either the old or the new slice, both internally consistent.
	queue := append(make([]*Entry, 0, len(old)+1), old...)
	// Replace a same-nonce entry (fee bump) or insert in nonce order.
	replaced := false
	for i, e := range queue {
		if e.Nonce == tx.Nonce() {
			delete(p.all, e.Hash)
			queue[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		queue = append(queue, entry)
		sort.Slice(queue, func(i, j int) bool { return queue[i].Nonce < queue[j].Nonce })
	}
	p.bySender.Set(from, queue)
	pendingGauge.Set(float64(len(p.all)))

	p.logger.Debug("Transaction admitted", "hash", hash, "from", from, "nonce", tx.Nonce())
	return tx, nil
}

// candidate is a sender-queue head in the selection index.
type candidate struct {
	entry    *Entry
	price    *uint256.Int
	queuePos int
}

func candidateLess(a, b *candidate) bool {
	// Descending by price; hash breaks ties deterministically.
	if c := a.price.Cmp(b.price); c != 0 {
		return c > 0
	}
	for i := range a.entry.Hash {
		if a.entry.Hash[i] != b.entry.Hash[i] {
			return a.entry.Hash[i] < b.entry.Hash[i]
		}
	}
	return false
}

// PickForBlock selects up to maxCount transactions by effective gas price
// under nextBaseFee, honoring per-sender nonce contiguity: only the head
// of each sender's queue is eligible at a time, and a gap (head nonce !=
// on-chain nonce) parks the whole sender.
func (p *TxsPool) PickForBlock(maxCount int, onchainNonce NonceReader, minGasPrice, nextBaseFee *uint256.Int) []*transaction.Transaction {
	if minGasPrice == nil {
		minGasPrice = p.minGasPrice
	}

	// Selection works over a point-in-time snapshot of the sender queues;
	// the queues themselves are immutable slices.
	queues := make(map[types.Address][]*Entry)
	p.bySender.Range(func(addr types.Address, queue []*Entry) bool {
		queues[addr] = queue
		return true
	})

	index := btree.NewG[*candidate](8, candidateLess)
	nextNonce := make(map[types.Address]uint64)

	push := func(addr types.Address, pos int) {
		queue := queues[addr]
		if pos >= len(queue) {
			return
		}
		e := queue[pos]
		if e.Nonce != nextNonce[addr] {
			return // nonce gap; sender parked
		}
		price := e.Tx.EffectiveGasPrice(nextBaseFee)
		if price.Cmp(minGasPrice) < 0 {
			return
		}
		index.ReplaceOrInsert(&candidate{entry: e, price: price, queuePos: pos})
	}

	for addr, queue := range queues {
		nextNonce[addr] = onchainNonce(addr)
		// Skip already-mined prefixes without mutating pool state.
		pos := 0
		for pos < len(queue) && queue[pos].Nonce < nextNonce[addr] {
			pos++
		}
		push(addr, pos)
	}

	var picked []*transaction.Transaction
	for len(picked) < maxCount {
		best, ok := index.DeleteMin()
		if !ok {
			break
		}
		picked = append(picked, best.entry.Tx)
		addr := best.entry.From
		nextNonce[addr] = best.entry.Nonce + 1
		push(addr, best.queuePos+1)
	}
	return picked
}

// PendingNonce returns onchainNonce plus the contiguous queued run for addr.
func (p *TxsPool) PendingNonce(addr types.Address, onchainNonce uint64) uint64 {
	queue, _ := p.bySender.Get(addr)
	next := onchainNonce
	for _, e := range queue {
		if e.Nonce < next {
			continue
		}
		if e.Nonce != next {
			break
		}
		next++
	}
	return next
}

// Remove drops a transaction by hash; no-op when absent.
func (p *TxsPool) Remove(hash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(hash)
}

// MarkConfirmed drops a transaction and remembers it as included.
func (p *TxsPool) MarkConfirmed(hash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(hash)
	p.confirmed.Add(hash)
}

// IsConfirmed reports whether hash was already included.
func (p *TxsPool) IsConfirmed(hash types.Hash) bool {
	return p.confirmed.Contains(hash)
}

func (p *TxsPool) removeLocked(hash types.Hash) {
	e, ok := p.all[hash]
	if !ok {
		return
	}
	delete(p.all, hash)
	old, _ := p.bySender.Get(e.From)
	queue := make([]*Entry, 0, len(old))
	for _, q := range old {
		if q.Hash != hash {
			queue = append(queue, q)
		}
	}
	if len(queue) == 0 {
		p.bySender.Delete(e.From)
	} else {
		p.bySender.Set(e.From, queue)
	}
	pendingGauge.Set(float64(len(p.all)))
}

// PruneBelow drops every pooled transaction from addr with a nonce below
// floor (sender-nonce invalidation after a block applies).
func (p *TxsPool) PruneBelow(addr types.Address, floor uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	queue, _ := p.bySender.Get(addr)
	kept := make([]*Entry, 0, len(queue))
	for _, e := range queue {
		if e.Nonce < floor {
			delete(p.all, e.Hash)
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == 0 {
		p.bySender.Delete(addr)
	} else {
		p.bySender.Set(addr, kept)
	}
	pendingGauge.Set(float64(len(p.all)))
}

// GetStats returns a snapshot summary.
func (p *TxsPool) GetStats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{
		Pending:   len(p.all),
		Senders:   p.bySender.Len(),
		Confirmed: p.confirmed.Cardinality(),
	}
}

// GetAll returns every pooled entry, unordered.
func (p *TxsPool) GetAll() []*Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Entry, 0, len(p.all))
	for _, e := range p.all {
		out = append(out, e)
	}
	return out
}

// Get returns the pooled entry for hash, or nil.
func (p *TxsPool) Get(hash types.Hash) *Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.all[hash]
}

// Content groups pending entries by sender for txpool_content.
func (p *TxsPool) Content() map[types.Address][]*Entry {
	out := make(map[types.Address][]*Entry)
	p.bySender.Range(func(addr types.Address, queue []*Entry) bool {
		out[addr] = queue
		return true
	})
	return out
}
