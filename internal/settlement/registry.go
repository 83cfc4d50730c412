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

// RegisterNode bonds a new node. value is the attached bond; sig proves
// control of the node key over OwnershipMessage(nodeId, operator).
//
// Lifecycle entry: register -> Active.
func (c *Contract) RegisterNode(operator types.Address, value *uint256.Int, nodeID types.Hash, pubkey []byte, serviceFlags uint8, serviceCommitment, endpointCommitment, metadataHash types.Hash, sig []byte) error {
	if nodeID.IsZero() || len(pubkey) == 0 {
		return ErrInvalidNodeId
	}
	if crypto.Keccak256Hash(pubkey) != nodeID {
		return ErrInvalidNodeId
	}

	// Ownership proof: the node key signs the registration binding.
	recovered, err := crypto.RecoverNodeID(OwnershipMessage(nodeID, operator), sig)
	if err != nil || recovered != nodeID {
		return ErrInvalidOwnershipProof
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.nodes[nodeID]; exists {
		return ErrNodeAlreadyRegistered
	}
	if c.operatorCount[operator] >= params.MaxNodesPerOperator {
		return ErrTooManyNodes
	}
	if owner, taken := c.endpointOwner[endpointCommitment]; taken && !owner.IsZero() {
		return ErrEndpointAlreadyRegistered
	}
	required := c.requiredBondLocked(operator)
	if value == nil || value.Cmp(required) < 0 {
		return ErrInsufficientBond
	}

	c.nodes[nodeID] = &NodeRecord{
		NodeID:             nodeID,
		Operator:           operator,
		Pubkey:             append([]byte{}, pubkey...),
		ServiceFlags:       serviceFlags,
		ServiceCommitment:  serviceCommitment,
		EndpointCommitment: endpointCommitment,
		BondAmount:         new(uint256.Int).Set(value),
		MetadataHash:       metadataHash,
		RegisteredAtEpoch:  c.clock.CurrentEpoch(),
		Active:             true,
	}
	c.operatorCount[operator]++
	c.endpointOwner[endpointCommitment] = nodeID

	c.logger.Info("Node registered", "node", nodeID.TerminalString(), "operator", operator, "bond", value.Dec())
	return nil
}

// UpdateCommitment mutates the service commitment. Operator only.
func (c *Contract) UpdateCommitment(caller types.Address, nodeID types.Hash, newCommitment types.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.nodes[nodeID]
	if !ok {
		return ErrNodeNotFound
	}
	if node.Operator != caller {
		return ErrNotNodeOperator
	}
	node.ServiceCommitment = newCommitment
	return nil
}

// RequestUnbond begins the exit: the node goes inactive, the endpoint
// commitment frees, the operator slot releases, and withdrawal unlocks
// after the delay.
func (c *Contract) RequestUnbond(caller types.Address, nodeID types.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.nodes[nodeID]
	if !ok {
		return ErrNodeNotFound
	}
	if node.Operator != caller {
		return ErrNotNodeOperator
	}
	if node.UnbondRequested {
		return ErrAlreadyUnbonding
	}

	node.Active = false
	node.UnbondRequested = true
	node.UnlockEpoch = c.clock.CurrentEpoch() + params.UnbondDelayEpochs
	delete(c.endpointOwner, node.EndpointCommitment)
	if c.operatorCount[node.Operator] > 0 {
		c.operatorCount[node.Operator]--
	}
	return nil
}

// Withdraw pays the bond out after the unlock epoch. The bond is zeroed
// and the unbond flag cleared before the external transfer
// (checks-effects-interactions).
func (c *Contract) Withdraw(caller types.Address, nodeID types.Hash) error {
	c.mu.Lock()
	node, ok := c.nodes[nodeID]
	if !ok {
		c.mu.Unlock()
		return ErrNodeNotFound
	}
	if node.Operator != caller {
		c.mu.Unlock()
		return ErrNotNodeOperator
	}
	if node.BondAmount.IsZero() {
		c.mu.Unlock()
		return ErrNoBondToWithdraw
	}
	if !node.UnbondRequested || node.UnlockEpoch > c.clock.CurrentEpoch() {
		c.mu.Unlock()
		return ErrUnlockNotReached
	}

	amount := new(uint256.Int).Set(node.BondAmount)
	node.BondAmount.Clear()
	node.UnbondRequested = false
	transfer := c.transfer
	c.mu.Unlock()

	if transfer != nil {
		if err := transfer(caller, amount); err != nil {
			return ErrTransferFailed
		}
	}
	c.logger.Info("Bond withdrawn", "node", nodeID.TerminalString(), "amount", amount.Dec())
	return nil
}
