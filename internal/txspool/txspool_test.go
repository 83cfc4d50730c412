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

package txspool

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/transaction"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

const testChainID = 1337

var recipient = types.HexToAddress("0x00000000000000000000000000000000000000ee")

type account struct {
	key  *btcec.PrivateKey
	addr types.Address
}

func newAccount(t *testing.T) *account {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	return &account{key: key, addr: crypto.PubkeyToAddress(key.PubKey())}
}

func (a *account) tx(t *testing.T, nonce uint64, feeCapGwei uint64) string {
	t.Helper()
	tx := transaction.NewTransaction(testChainID, nonce, 21000,
		uint256.NewInt(feeCapGwei*1_000_000_000), nil, nil, &recipient, nil)
	signed, err := transaction.SignTx(tx, func(d types.Hash) ([]byte, error) {
		return crypto.SignHash(d, a.key)
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	return signed.Raw()
}

func zeroNonce(types.Address) uint64 { return 0 }

// mustAdd admits a raw transaction or fails the test.
func mustAdd(t *testing.T, pool *TxsPool, raw string, nonce NonceReader) *transaction.Transaction {
	t.Helper()
	tx, err := pool.Add(raw, nonce)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	return tx
}

func TestAddValidations(t *testing.T) {
	pool := NewTxsPool(testChainID, uint256.NewInt(1))
	acct := newAccount(t)

	raw := acct.tx(t, 0, 2)
	mustAdd(t, pool, raw, zeroNonce)

	// Duplicate by hash.
	if _, err := pool.Add(raw, zeroNonce); !errors.Is(err, errors.ErrAlreadyPending) {
		t.Errorf("duplicate: got %v, want ErrAlreadyPending", err)
	}

	// Wrong chain id.
	foreign := transaction.NewTransaction(9999, 0, 21000, uint256.NewInt(2_000_000_000), nil, nil, &recipient, nil)
	signed, err := transaction.SignTx(foreign, func(d types.Hash) ([]byte, error) {
		return crypto.SignHash(d, acct.key)
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := pool.Add(signed.Raw(), zeroNonce); !errors.Is(err, errors.ErrChainIdMismatch) {
		t.Errorf("foreign chain: got %v, want ErrChainIdMismatch", err)
	}

	// Nonce below on-chain (a different fee, so not a duplicate by hash).
	if _, err := pool.Add(acct.tx(t, 0, 3), func(types.Address) uint64 { return 5 }); !errors.Is(err, errors.ErrNonceTooLow) {
		t.Errorf("stale nonce: got %v, want ErrNonceTooLow", err)
	}

	// Garbage payload.
	if _, err := pool.Add("0x00ff", zeroNonce); !errors.Is(err, errors.ErrInvalidSignature) {
		t.Errorf("garbage: got %v, want ErrInvalidSignature", err)
	}
}

func TestFeeFloor(t *testing.T) {
	pool := NewTxsPool(testChainID, uint256.NewInt(5_000_000_000))
	acct := newAccount(t)
	if _, err := pool.Add(acct.tx(t, 0, 2), zeroNonce); !errors.Is(err, errors.ErrFeeTooLow) {
		t.Errorf("got %v, want ErrFeeTooLow", err)
	}
}

func TestAlreadyConfirmed(t *testing.T) {
	pool := NewTxsPool(testChainID, uint256.NewInt(1))
	acct := newAccount(t)

	raw := acct.tx(t, 0, 2)
	tx := mustAdd(t, pool, raw, zeroNonce)
	pool.MarkConfirmed(tx.Hash())

	if _, err := pool.Add(raw, zeroNonce); !errors.Is(err, errors.ErrAlreadyConfirmed) {
		t.Errorf("got %v, want ErrAlreadyConfirmed", err)
	}
}

func TestPickRespectsPriorityAndNonceOrder(t *testing.T) {
	pool := NewTxsPool(testChainID, uint256.NewInt(1))
	cheap, rich := newAccount(t), newAccount(t)

	// rich pays 10 gwei, cheap pays 2; rich has two queued nonces.
	mustAdd(t, pool, cheap.tx(t, 0, 2), zeroNonce)
	mustAdd(t, pool, rich.tx(t, 0, 10), zeroNonce)
	mustAdd(t, pool, rich.tx(t, 1, 10), zeroNonce)

	picked := pool.PickForBlock(3, zeroNonce, nil, uint256.NewInt(1))
	if len(picked) != 3 {
		t.Fatalf("picked %d txs, want 3", len(picked))
	}
	from0, _ := picked[0].Sender()
	from1, _ := picked[1].Sender()
	from2, _ := picked[2].Sender()
	if from0 != rich.addr || from1 != rich.addr {
		t.Errorf("highest-fee sender should fill slots 0 and 1, got %s %s", from0, from1)
	}
	if picked[0].Nonce() != 0 || picked[1].Nonce() != 1 {
		t.Errorf("rich nonces out of order: %d then %d", picked[0].Nonce(), picked[1].Nonce())
	}
	if from2 != cheap.addr {
		t.Errorf("slot 2 = %s, want the cheap sender", from2)
	}
}

func TestPickParksNonceGaps(t *testing.T) {
	pool := NewTxsPool(testChainID, uint256.NewInt(1))
	acct := newAccount(t)

	// Only nonce 1 is queued; with on-chain nonce 0 the sender is parked.
	mustAdd(t, pool, acct.tx(t, 1, 5), zeroNonce)
	if picked := pool.PickForBlock(10, zeroNonce, nil, uint256.NewInt(1)); len(picked) != 0 {
		t.Fatalf("gapped sender yielded %d txs, want 0", len(picked))
	}

	// Filling the gap frees the queue.
	mustAdd(t, pool, acct.tx(t, 0, 5), zeroNonce)
	if picked := pool.PickForBlock(10, zeroNonce, nil, uint256.NewInt(1)); len(picked) != 2 {
		t.Fatalf("picked %d txs after filling the gap, want 2", len(picked))
	}
}

func TestPendingNonceIsContiguous(t *testing.T) {
	pool := NewTxsPool(testChainID, uint256.NewInt(1))
	acct := newAccount(t)

	if got := pool.PendingNonce(acct.addr, 0); got != 0 {
		t.Errorf("empty pool pending nonce = %d, want 0", got)
	}

	mustAdd(t, pool, acct.tx(t, 0, 2), zeroNonce)
	mustAdd(t, pool, acct.tx(t, 1, 2), zeroNonce)
	// Gap at 2; 3 is queued but not contiguous.
	mustAdd(t, pool, acct.tx(t, 3, 2), zeroNonce)

	if got := pool.PendingNonce(acct.addr, 0); got != 2 {
		t.Errorf("pending nonce = %d, want 2", got)
	}
}

func TestPruneBelow(t *testing.T) {
	pool := NewTxsPool(testChainID, uint256.NewInt(1))
	acct := newAccount(t)
	for nonce := uint64(0); nonce < 3; nonce++ {
		mustAdd(t, pool, acct.tx(t, nonce, 2), zeroNonce)
	}
	pool.PruneBelow(acct.addr, 2)
	if stats := pool.GetStats(); stats.Pending != 1 {
		t.Errorf("pending = %d after prune, want 1", stats.Pending)
	}
	if got := pool.PendingNonce(acct.addr, 2); got != 3 {
		t.Errorf("pending nonce = %d, want 3", got)
	}
}

func TestStatsAndContent(t *testing.T) {
	pool := NewTxsPool(testChainID, uint256.NewInt(1))
	acct := newAccount(t)
	mustAdd(t, pool, acct.tx(t, 0, 2), zeroNonce)

	stats := pool.GetStats()
	if stats.Pending != 1 || stats.Senders != 1 {
		t.Errorf("stats = %+v, want 1 pending from 1 sender", stats)
	}

	if content := pool.Content(); len(content[acct.addr]) != 1 {
		t.Errorf("content for sender has %d entries, want 1", len(content[acct.addr]))
	}
	if got := pool.GetAll(); len(got) != 1 {
		t.Errorf("GetAll returned %d entries, want 1", len(got))
	}
}
