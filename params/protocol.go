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

// Package params holds the protocol constants shared by the chain engine,
// the PoSe pipeline and the settlement state machines.
package params

import "github.com/holiman/uint256"

// =============================================================================
// Chain constants
// =============================================================================

const (
	// BlockGasLimit is the fixed per-block gas limit.
	BlockGasLimit uint64 = 30_000_000

	// TxGas is the intrinsic gas of a plain value transfer.
	TxGas uint64 = 21_000

	// TxDataGas is the per-byte gas of transaction calldata.
	TxDataGas uint64 = 16

	// GWei is 10^9 wei.
	GWei uint64 = 1_000_000_000

	// DefaultFinalityDepth marks blocks irreversible once the tip is this
	// many blocks past them.
	DefaultFinalityDepth uint64 = 3

	// MaxBlockFutureDriftMs bounds how far a remote block timestamp may run
	// ahead of local wall-clock time.
	MaxBlockFutureDriftMs uint64 = 60_000

	// ProtocolVersion is reported by eth_protocolVersion.
	ProtocolVersion = 67
)

// =============================================================================
// Base-fee controller (EIP-1559 variant)
// =============================================================================

const (
	// BaseFeeTargetGas is the utilization target: 50% of BlockGasLimit.
	BaseFeeTargetGas uint64 = BlockGasLimit / 2

	// BaseFeeChangeDenominator bounds the per-block change to 1/8.
	BaseFeeChangeDenominator uint64 = 8
)

// MinBaseFee is the base-fee floor and the genesis base fee (1 gwei).
func MinBaseFee() *uint256.Int {
	return uint256.NewInt(GWei)
}

// =============================================================================
// PoSe & settlement
// =============================================================================

const (
	// EpochSeconds is the epoch quantum: epochId = floor(unixSeconds/3600).
	EpochSeconds uint64 = 3600

	// DisputeWindowEpochs is the number of epochs during which a submitted
	// batch may be challenged.
	DisputeWindowEpochs uint64 = 2

	// UnbondDelayEpochs is the delay between requestUnbond and withdraw
	// eligibility (7 days of hourly epochs).
	UnbondDelayEpochs uint64 = 7 * 24

	// MaxNodesPerOperator caps registrations per operator address.
	MaxNodesPerOperator = 5

	// MaxSampleProofs bounds the sample set attached to a batch submission.
	MaxSampleProofs = 65535

	// DefaultMaxChallengesPerEpoch is the per-node challenge quota.
	DefaultMaxChallengesPerEpoch = 60

	// PoseMaxClockSkewMs bounds the timestamp drift accepted on signed
	// PoSe HTTP envelopes.
	PoseMaxClockSkewMs uint64 = 120_000
)

// MinBond is the base bond for an operator's first node (0.1 ether);
// requiredBond doubles per already-registered node.
func MinBond() *uint256.Int {
	v := uint256.NewInt(GWei)
	return v.Mul(v, uint256.NewInt(100_000_000)) // 1e17 wei
}

// SlashBasisPoints maps slash reason codes to bond basis points. Reason
// codes above the table fall back to 10%.
func SlashBasisPoints(reasonCode uint8) uint64 {
	switch reasonCode {
	case 1:
		return 2000
	case 2:
		return 1500
	case 3:
		return 500
	case 4:
		return 3000
	default:
		return 1000
	}
}
