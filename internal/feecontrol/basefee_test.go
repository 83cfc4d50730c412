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

package feecontrol

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/params"
)

func TestGenesisBaseFeeIsOneGwei(t *testing.T) {
	if !GenesisBaseFee().Eq(uint256.NewInt(params.GWei)) {
		t.Errorf("genesis base fee = %s, want 1 gwei", GenesisBaseFee())
	}
}

func TestStableAtTarget(t *testing.T) {
	fee := GenesisBaseFee()
	for i := 0; i < 10; i++ {
		next := NextBaseFee(fee, params.BaseFeeTargetGas)
		if !next.Eq(fee) {
			t.Fatalf("step %d: fee moved from %s to %s at target utilization", i, fee, next)
		}
		fee = next
	}
}

func TestFullBlocksRampAtNineEighths(t *testing.T) {
	fee := GenesisBaseFee()
	for i := 0; i < 10; i++ {
		next := NextBaseFee(fee, params.BlockGasLimit)
		// used - target == target, so delta == parent/8 exactly.
		expected := new(uint256.Int).Div(fee, uint256.NewInt(8))
		expected.Add(expected, fee)
		if !next.Eq(expected) {
			t.Fatalf("step %d: next = %s, want %s", i, next, expected)
		}
		if next.Cmp(fee) != 1 {
			t.Fatalf("step %d: fee must strictly increase, %s -> %s", i, fee, next)
		}
		fee = next
	}
}

func TestEmptyBlocksConvergeToFloor(t *testing.T) {
	// Start well above the floor and drain with empty blocks.
	fee := uint256.NewInt(100 * params.GWei)
	floor := params.MinBaseFee()
	prev := new(uint256.Int).Set(fee)
	for i := 0; i < 200; i++ {
		fee = NextBaseFee(fee, 0)
		if fee.Cmp(prev) > 0 {
			t.Fatalf("step %d: fee increased from %s to %s on an empty block", i, prev, fee)
		}
		if fee.Cmp(floor) < 0 {
			t.Fatalf("step %d: fee %s dropped below the floor %s", i, fee, floor)
		}
		prev.Set(fee)
	}
	if !fee.Eq(floor) {
		t.Errorf("fee should converge to the floor, got %s", fee)
	}
}

func TestMinimumUpwardStepIsOneWei(t *testing.T) {
	// A tiny parent fee with barely-above-target usage still moves.
	fee := uint256.NewInt(1)
	next := NextBaseFee(fee, params.BaseFeeTargetGas+1)
	if !next.Eq(uint256.NewInt(2)) {
		t.Errorf("next = %s, want 2", next)
	}
}

func TestBelowTargetScalesWithDeficit(t *testing.T) {
	fee := uint256.NewInt(80 * params.GWei)
	// Half the target used: delta = fee * (target/2) / target / 8 = fee/16.
	next := NextBaseFee(fee, params.BaseFeeTargetGas/2)
	expected := new(uint256.Int).Sub(fee, new(uint256.Int).Div(fee, uint256.NewInt(16)))
	if !next.Eq(expected) {
		t.Errorf("next = %s, want %s", next, expected)
	}
}
