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

// Package settlement implements the PoSe settlement contract state
// machines: the node registry with bonded registration, the batch
// submit/dispute/finalize lifecycle, and reason-coded slashing with
// replay-protected evidence.
package settlement

import (
	"sync"

	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/log"
	"github.com/chainofclaw/COC-sub002/params"
)

// EpochSource resolves the contract's current epoch.
type EpochSource interface {
	CurrentEpoch() uint64
}

// Transferer moves bond value out of the contract (withdraws). A failed
// transfer surfaces as TransferFailed; state has already been zeroed by
// then per checks-effects-interactions, so the caller must treat the
// funds as burned unless it compensates externally.
type Transferer func(to types.Address, amount *uint256.Int) error

// NodeRecord is one registered node.
type NodeRecord struct {
	NodeID             types.Hash
	Operator           types.Address
	Pubkey             []byte
	ServiceFlags       uint8
	ServiceCommitment  types.Hash
	EndpointCommitment types.Hash
	BondAmount         *uint256.Int
	MetadataHash       types.Hash
	RegisteredAtEpoch  uint64
	UnlockEpoch        uint64
	Active             bool
	UnbondRequested    bool
}

// SampleProof is one audited leaf in a batch submission.
type SampleProof struct {
	Leaf        types.Hash   `json:"leaf"`
	MerkleProof []types.Hash `json:"merkleProof"`
	LeafIndex   uint32       `json:"leafIndex"`
}

// BatchRecord is one submitted receipt batch.
type BatchRecord struct {
	BatchID              types.Hash
	EpochID              uint64
	MerkleRoot           types.Hash
	SummaryHash          types.Hash
	Aggregator           types.Address
	SubmittedAtEpoch     uint64
	DisputeDeadlineEpoch uint64
	Finalized            bool
	Disputed             bool

	sampleLeaves map[types.Hash]struct{}
	sampleCount  uint32
}

// SlashEvidence justifies one slash.
type SlashEvidence struct {
	NodeID       types.Hash
	EvidenceHash types.Hash
	ReasonCode   uint8
	RawEvidence  []byte
}

// Contract is the in-process settlement ledger. One instance exists per
// network; callers model transaction senders explicitly.
type Contract struct {
	mu sync.Mutex

	owner    types.Address
	clock    EpochSource
	transfer Transferer
	logger   log.Logger

	nodes         map[types.Hash]*NodeRecord
	operatorCount map[types.Address]int
	endpointOwner map[types.Hash]types.Hash // endpointCommitment -> nodeId

	batches       map[types.Hash]*BatchRecord
	epochBatchIDs map[uint64][]types.Hash

	epochFinalized       map[uint64]bool
	epochSettlementRoot  map[uint64]types.Hash
	epochValidBatchCount map[uint64]uint32

	slashers      map[types.Address]bool
	usedSlashKeys map[types.Hash]struct{}
	usedDisputes  map[types.Hash]struct{}
}

// NewContract deploys a ledger owned by owner. transfer may be nil (bond
// withdrawals then always succeed).
func NewContract(owner types.Address, clock EpochSource, transfer Transferer) *Contract {
	return &Contract{
		owner:                owner,
		clock:                clock,
		transfer:             transfer,
		logger:               log.New("module", "settlement"),
		nodes:                make(map[types.Hash]*NodeRecord),
		operatorCount:        make(map[types.Address]int),
		endpointOwner:        make(map[types.Hash]types.Hash),
		batches:              make(map[types.Hash]*BatchRecord),
		epochBatchIDs:        make(map[uint64][]types.Hash),
		epochFinalized:       make(map[uint64]bool),
		epochSettlementRoot:  make(map[uint64]types.Hash),
		epochValidBatchCount: make(map[uint64]uint32),
		slashers:             map[types.Address]bool{owner: true},
		usedSlashKeys:        make(map[types.Hash]struct{}),
		usedDisputes:         make(map[types.Hash]struct{}),
	}
}

// SetSlasher grants or revokes the slasher role. Owner only.
func (c *Contract) SetSlasher(caller, addr types.Address, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != c.owner {
		return ErrNotOwner
	}
	if enabled {
		c.slashers[addr] = true
	} else {
		delete(c.slashers, addr)
	}
	return nil
}

// RequiredBond returns MIN_BOND * 2^operatorNodeCount for the operator's
// next registration.
func (c *Contract) RequiredBond(operator types.Address) *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requiredBondLocked(operator)
}

func (c *Contract) requiredBondLocked(operator types.Address) *uint256.Int {
	bond := params.MinBond()
	return bond.Lsh(bond, uint(c.operatorCount[operator]))
}

// OwnershipMessage is the canonical preimage proving control of a node
// key at registration.
func OwnershipMessage(nodeID types.Hash, operator types.Address) []byte {
	return []byte("pose:register:" + nodeID.Hex() + ":" + operator.Hex())
}

// GetNode returns a copy of the node record, or nil.
func (c *Contract) GetNode(nodeID types.Hash) *NodeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, ok := c.nodes[nodeID]
	if !ok {
		return nil
	}
	cpy := *node
	cpy.BondAmount = new(uint256.Int).Set(node.BondAmount)
	cpy.Pubkey = append([]byte{}, node.Pubkey...)
	return &cpy
}

// GetBatch returns a copy of the batch record, or nil.
func (c *Contract) GetBatch(batchID types.Hash) *BatchRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.batches[batchID]
	if !ok {
		return nil
	}
	cpy := *b
	cpy.sampleLeaves = nil
	return &cpy
}

// GetEpochBatchIds lists the batches submitted for epoch.
func (c *Contract) GetEpochBatchIds(epoch uint64) []types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Hash{}, c.epochBatchIDs[epoch]...)
}

// GetBatchSampleInfo returns the sampled-leaf count for a batch.
func (c *Contract) GetBatchSampleInfo(batchID types.Hash) (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.batches[batchID]
	if !ok {
		return 0, false
	}
	return b.sampleCount, true
}

// IsSampleLeaf reports whether leaf was part of a batch's sampled set.
func (c *Contract) IsSampleLeaf(batchID types.Hash, leaf types.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.batches[batchID]
	if !ok {
		return false
	}
	_, sampled := b.sampleLeaves[leaf]
	return sampled
}

// EpochFinalized reports the finalization flag.
func (c *Contract) EpochFinalized(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochFinalized[epoch]
}

// EpochSettlementRoot returns the rolling settlement root of a finalized
// epoch.
func (c *Contract) EpochSettlementRoot(epoch uint64) types.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochSettlementRoot[epoch]
}

// EpochValidBatchCount returns the number of batches folded into the
// epoch root.
func (c *Contract) EpochValidBatchCount(epoch uint64) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epochValidBatchCount[epoch]
}

// batchID derives the unique batch key.
func batchID(epochID uint64, root, summaryHash types.Hash, aggregator types.Address) types.Hash {
	return crypto.Keccak256Hash(crypto.Uint64BE(epochID), root.Bytes(), summaryHash.Bytes(), aggregator.Bytes())
}

// slashReplayKey derives the exact-once key for slash evidence.
func slashReplayKey(nodeID types.Hash, reasonCode uint8, evidenceHash types.Hash) types.Hash {
	return crypto.Keccak256Hash([]byte("slash-evidence"), nodeID.Bytes(), []byte{reasonCode}, evidenceHash.Bytes())
}
