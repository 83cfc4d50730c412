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

import "github.com/chainofclaw/COC-sub002/common/types"

// The governance contract lives outside this module; only its external
// interface is modeled here so callers can decode proposals and votes.

// ProposalState is the governance proposal lifecycle.
type ProposalState uint8

const (
	ProposalPending ProposalState = iota
	ProposalApproved
	ProposalRejected
	ProposalQueued
	ProposalExecuted
	ProposalCancelled
	ProposalExpired
)

// VoteChoice is a single governance vote.
type VoteChoice uint8

const (
	VoteFor VoteChoice = iota
	VoteAgainst
	VoteAbstain
)

// Proposal mirrors the governance contract's proposal record.
type Proposal struct {
	ID                uint64         `json:"id"`
	Kind              string         `json:"kind"`
	Title             string         `json:"title"`
	DescriptionHash   types.Hash     `json:"descriptionHash"`
	ExecutionTarget   *types.Address `json:"executionTarget,omitempty"`
	ExecutionCalldata []byte         `json:"executionCalldata,omitempty"`
	Proposer          types.Address  `json:"proposer"`
	CreatedAtBlock    uint64         `json:"createdAtBlock"`
	VotingDeadline    uint64         `json:"votingDeadline"`
	State             ProposalState  `json:"state"`
}

// GovernanceVote mirrors one registered voter's ballot; one per voter.
type GovernanceVote struct {
	ProposalID uint64        `json:"proposalId"`
	Voter      types.Address `json:"voter"`
	Choice     VoteChoice    `json:"choice"`
	CastAtMs   uint64        `json:"castAtMs"`
}
