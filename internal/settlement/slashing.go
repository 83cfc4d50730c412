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

package settlement

import (
	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/params"
)

// Slash burns a reason-coded share of a node's bond. The evidence hash
// must commit to the raw evidence, reason 0 is invalid, and the
// (node, reason, evidence) replay key is single-use. A fully slashed node
// goes inactive.
func (c *Contract) Slash(caller types.Address, nodeID types.Hash, evidence SlashEvidence) (*uint256.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.slashers[caller] {
		return nil, ErrNotSlasher
	}
	node, ok := c.nodes[nodeID]
	if !ok {
		return nil, ErrNodeNotFound
	}
	if evidence.ReasonCode == 0 {
		return nil, ErrInvalidSlashEvidence
	}
	if evidence.NodeID != nodeID {
		return nil, ErrInvalidSlashEvidence
	}
	if crypto.Keccak256Hash(evidence.RawEvidence) != evidence.EvidenceHash {
		return nil, ErrInvalidSlashEvidence
	}
	if node.BondAmount.IsZero() {
		return nil, ErrNodeNotSlashable
	}

	key := slashReplayKey(nodeID, evidence.ReasonCode, evidence.EvidenceHash)
	if _, used := c.usedSlashKeys[key]; used {
		return nil, ErrEvidenceAlreadyUsed
	}
	c.usedSlashKeys[key] = struct{}{}

	bps := params.SlashBasisPoints(evidence.ReasonCode)
	amount := new(uint256.Int).Mul(node.BondAmount, uint256.NewInt(bps))
	amount.Div(amount, uint256.NewInt(10_000))
	if amount.IsZero() {
		amount.SetOne()
	}
	if amount.Cmp(node.BondAmount) > 0 {
		amount.Set(node.BondAmount)
	}

	node.BondAmount.Sub(node.BondAmount, amount)
	if node.BondAmount.IsZero() {
		node.Active = false
	}

	c.logger.Warn("Node slashed",
		"node", nodeID.TerminalString(),
		"reason", evidence.ReasonCode,
		"bps", bps,
		"amount", amount.Dec(),
		"remaining", node.BondAmount.Dec(),
	)
	return amount, nil
}
