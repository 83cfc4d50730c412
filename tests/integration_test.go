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

// Package tests holds cross-package integration scenarios: the full
// chain + PoSe + settlement pipeline driven end to end.
package tests

import (
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/transaction"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/conf"
	"github.com/chainofclaw/COC-sub002/internal"
	"github.com/chainofclaw/COC-sub002/internal/evm"
	"github.com/chainofclaw/COC-sub002/internal/pose"
	"github.com/chainofclaw/COC-sub002/internal/pose/aggregate"
	"github.com/chainofclaw/COC-sub002/internal/settlement"
	"github.com/chainofclaw/COC-sub002/internal/txspool"
	"github.com/chainofclaw/COC-sub002/modules/kv"
	"github.com/chainofclaw/COC-sub002/modules/rawdb"
	"github.com/chainofclaw/COC-sub002/params"
)

const chainID = 1337

// TestChainPersistsThroughStore drives tx -> block -> persistent index.
func TestChainPersistsThroughStore(t *testing.T) {
	store := kv.OpenMemory()
	defer store.Close()

	engine := evm.NewNativeEngine(chainID)
	pool := txspool.NewTxsPool(chainID, uint256.NewInt(1))
	validator := "0x1111111111111111111111111111111111111111"
	chain := internal.NewBlockChain(internal.ChainConfig{
		ChainID:       chainID,
		NodeID:        validator,
		Validators:    []string{validator},
		SignatureMode: conf.AuthModeOff,
		Store:         store,
	}, engine, pool)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	from := crypto.PubkeyToAddress(key.PubKey())
	engine.Prefund([]evm.Prefund{{Addr: from, Balance: new(uint256.Int).Mul(uint256.NewInt(params.GWei), uint256.NewInt(1_000_000_000))}})

	to := types.HexToAddress("0x00000000000000000000000000000000000000fe")
	tx := transaction.NewTransaction(chainID, 0, 21000,
		uint256.NewInt(2*params.GWei), uint256.NewInt(params.GWei),
		uint256.NewInt(5), &to, nil)
	signed, err := transaction.SignTx(tx, func(d types.Hash) ([]byte, error) {
		return crypto.SignHash(d, key)
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if _, err := chain.AddTransaction(signed.Raw()); err != nil {
		t.Fatalf("add transaction failed: %v", err)
	}
	if _, err := chain.ProposeNextBlock(); err != nil {
		t.Fatalf("propose failed: %v", err)
	}

	// Persistent block index.
	stored, err := rawdb.ReadBlock(store, 1)
	if err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}
	if stored == nil || stored.Hash != chain.Tip().Hash {
		t.Error("persisted block does not match the in-memory tip")
	}

	// Tx lookup.
	lookup, err := rawdb.ReadTxLookup(store, signed.Hash())
	if err != nil {
		t.Fatalf("ReadTxLookup failed: %v", err)
	}
	if lookup == nil || lookup.BlockNumber != 1 {
		t.Errorf("tx lookup = %+v, want block 1", lookup)
	}

	// Address history covers the sender.
	hashes, err := rawdb.ReadAddressTxs(store, from, false, 0)
	if err != nil {
		t.Fatalf("ReadAddressTxs failed: %v", err)
	}
	found := false
	for _, h := range hashes {
		if h == signed.Hash() {
			found = true
		}
	}
	if !found {
		t.Error("sender history misses the mined tx")
	}

	// Snapshot head advanced.
	head, err := rawdb.ReadSnapshotHead(store)
	if err != nil {
		t.Fatalf("ReadSnapshotHead failed: %v", err)
	}
	if head != 1 {
		t.Errorf("snapshot head = %d, want 1", head)
	}
}

// TestPoseSettlementEndToEnd runs challenge -> receipt -> batch ->
// dispute window -> finalize -> slash across real components.
func TestPoseSettlementEndToEnd(t *testing.T) {
	clock := pose.NewManualClock(500)
	challengerKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("challenger key: %v", err)
	}
	registry, err := pose.OpenReplayRegistry(filepath.Join(t.TempDir(), "nonces.log"), 10_000, 0, clock)
	if err != nil {
		t.Fatalf("registry open: %v", err)
	}
	defer registry.Close()

	engine := pose.NewEngine(pose.EngineConfig{
		MaxChallengesPerEpoch: 100,
		LatencyWindowMs:       10_000,
	}, clock, challengerKey, registry)

	aggregatorID := crypto.PubkeyToAddress(challengerKey.PubKey())
	contract := settlement.NewContract(aggregatorID, clock, nil)

	// Register two nodes: one responsive, one silent. Each has its own
	// operator, so both post the base bond.
	register := func() (types.Hash, func(*pose.Challenge) *pose.Receipt) {
		nodeKey, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("node key: %v", err)
		}
		pubkey := nodeKey.PubKey().SerializeUncompressed()
		nodeID := crypto.Keccak256Hash(pubkey)
		operator := crypto.PubkeyToAddress(nodeKey.PubKey())
		sig, err := crypto.Sign(settlement.OwnershipMessage(nodeID, operator), nodeKey)
		if err != nil {
			t.Fatalf("ownership sign: %v", err)
		}
		if err := contract.RegisterNode(operator, params.MinBond(), nodeID, pubkey, 1,
			types.Hash{}, crypto.Keccak256Hash(nodeID.Bytes()), types.Hash{}, sig); err != nil {
			t.Fatalf("register: %v", err)
		}

		answer := func(ch *pose.Challenge) *pose.Receipt {
			receipt := &pose.Receipt{
				ChallengeID:  ch.ChallengeID,
				NodeID:       ch.NodeID,
				ResponseAtMs: ch.IssuedAtMs + 50,
				ResponseBody: "ok",
			}
			canonical, err := receipt.CanonicalBytes()
			if err != nil {
				t.Fatalf("canonical bytes: %v", err)
			}
			sig, err := crypto.Sign(canonical, nodeKey)
			if err != nil {
				t.Fatalf("sign receipt: %v", err)
			}
			receipt.NodeSig = "0x" + hex.EncodeToString(sig)
			return receipt
		}
		return nodeID, answer
	}

	goodNode, answerGood := register()
	lazyNode, _ := register()

	epoch := clock.CurrentEpoch()
	for i := 0; i < 6; i++ {
		ch, err := engine.IssueChallenge(goodNode, pose.ServiceAvailability)
		if err != nil {
			t.Fatalf("issue (good) %d: %v", i, err)
		}
		if err := engine.SubmitReceipt(ch, answerGood(ch)); err != nil {
			t.Fatalf("submit (good) %d: %v", i, err)
		}

		if _, err := engine.IssueChallenge(lazyNode, pose.ServiceAvailability); err != nil {
			t.Fatalf("issue (lazy) %d: %v", i, err)
		}
	}

	// Aggregate and submit the epoch batch.
	agg := aggregate.NewAggregator(aggregatorID, engine, contract, 4)
	batchID, err := agg.SubmitEpoch(epoch)
	if err != nil {
		t.Fatalf("submit epoch: %v", err)
	}

	// An honest batch survives observation.
	observer := aggregate.NewObserver(aggregatorID, contract, 4)
	disputed, err := observer.Inspect(batchID, agg.Built(epoch).Leaves)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if disputed {
		t.Fatal("honest batch should not be disputed")
	}

	// Window elapses; relayer finalizes and dispatches liveness slashes.
	relayer := aggregate.NewRelayer(aggregatorID, engine, contract, clock)
	if err := relayer.TryFinalize(epoch); err == nil {
		t.Fatal("finalize before the window should fail")
	}
	clock.Advance(params.DisputeWindowEpochs + 1)
	if err := relayer.TryFinalize(epoch); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if !contract.EpochFinalized(epoch) {
		t.Error("epoch should be finalized")
	}
	if got := contract.EpochValidBatchCount(epoch); got != 1 {
		t.Errorf("valid batch count = %d, want 1", got)
	}
	if contract.EpochSettlementRoot(epoch) == (types.Hash{}) {
		t.Error("settlement root is zero")
	}

	dispatched, err := relayer.DispatchSlashes(epoch)
	if err != nil {
		t.Fatalf("dispatch slashes: %v", err)
	}
	if dispatched != 1 {
		t.Errorf("dispatched = %d, want 1", dispatched)
	}

	// The silent node lost 5%; the responsive node is untouched.
	expectedLazy := new(uint256.Int).Sub(params.MinBond(), new(uint256.Int).Div(params.MinBond(), uint256.NewInt(20)))
	if got := contract.GetNode(lazyNode).BondAmount; !got.Eq(expectedLazy) {
		t.Errorf("lazy bond = %s, want %s", got, expectedLazy)
	}
	if got := contract.GetNode(goodNode).BondAmount; !got.Eq(params.MinBond()) {
		t.Errorf("good bond = %s, want untouched %s", got, params.MinBond())
	}
}
