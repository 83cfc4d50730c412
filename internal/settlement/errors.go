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

import "errors"

// Error taxonomy of the settlement state machines. Names match the
// on-chain revert identifiers one-to-one.
var (
	ErrInvalidNodeId             = errors.New("InvalidNodeId")
	ErrNodeAlreadyRegistered     = errors.New("NodeAlreadyRegistered")
	ErrNodeNotFound              = errors.New("NodeNotFound")
	ErrNotNodeOperator           = errors.New("NotNodeOperator")
	ErrInvalidBatch              = errors.New("InvalidBatch")
	ErrBatchAlreadySubmitted     = errors.New("BatchAlreadySubmitted")
	ErrBatchAlreadyDisputed      = errors.New("BatchAlreadyDisputed")
	ErrBatchAlreadyFinalized     = errors.New("BatchAlreadyFinalized")
	ErrInvalidEpoch              = errors.New("InvalidEpoch")
	ErrDisputeWindowClosed       = errors.New("DisputeWindowClosed")
	ErrDisputeWindowNotElapsed   = errors.New("DisputeWindowNotElapsed")
	ErrEpochAlreadyFinalized     = errors.New("EpochAlreadyFinalized")
	ErrNoFinalizableBatch        = errors.New("NoFinalizableBatch")
	ErrInvalidSlashEvidence      = errors.New("InvalidSlashEvidence")
	ErrEvidenceAlreadyUsed       = errors.New("EvidenceAlreadyUsed")
	ErrAlreadyUnbonding          = errors.New("AlreadyUnbonding")
	ErrUnlockNotReached          = errors.New("UnlockNotReached")
	ErrNoBondToWithdraw          = errors.New("NoBondToWithdraw")
	ErrTransferFailed            = errors.New("TransferFailed")
	ErrInsufficientBond          = errors.New("InsufficientBond")
	ErrTooManyNodes              = errors.New("TooManyNodes")
	ErrInvalidOwnershipProof     = errors.New("InvalidOwnershipProof")
	ErrEndpointAlreadyRegistered = errors.New("EndpointAlreadyRegistered")
	ErrNodeNotSlashable          = errors.New("NodeNotSlashable")
	ErrNotSlasher                = errors.New("NotSlasher")
	ErrNotOwner                  = errors.New("NotOwner")
)
