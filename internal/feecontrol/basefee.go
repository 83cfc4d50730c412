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

// Package feecontrol implements the dynamic base fee. The controller
// targets 50% utilization of the block gas limit and moves the fee by at
// most 1/8 per block, never below the 1 gwei floor.
package feecontrol

import (
	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/params"
)

// GenesisBaseFee is the base fee of block 1.
func GenesisBaseFee() *uint256.Int {
	return params.MinBaseFee()
}

// NextBaseFee derives a child block's base fee from its parent's base fee
// and gas usage.
func NextBaseFee(parentBaseFee *uint256.Int, parentGasUsed uint64) *uint256.Int {
	target := params.BaseFeeTargetGas
	denom := uint256.NewInt(params.BaseFeeChangeDenominator)
	targetU := uint256.NewInt(target)

	next := new(uint256.Int).Set(parentBaseFee)
	switch {
	case parentGasUsed == target:
		return next

	case parentGasUsed > target:
		// next = parent + max(1, parent * (used - target) / target / 8)
		delta := new(uint256.Int).Mul(parentBaseFee, uint256.NewInt(parentGasUsed-target))
		delta.Div(delta, targetU)
		delta.Div(delta, denom)
		if delta.IsZero() {
			delta.SetOne()
		}
		return next.Add(next, delta)

	default:
		// next = max(floor, parent - parent * (target - used) / target / 8)
		delta := new(uint256.Int).Mul(parentBaseFee, uint256.NewInt(target-parentGasUsed))
		delta.Div(delta, targetU)
		delta.Div(delta, denom)
		next.Sub(next, delta)
		floor := params.MinBaseFee()
		if next.Cmp(floor) < 0 {
			return floor
		}
		return next
	}
}
