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

// Package evm defines the execution-engine contract the chain engine
// programs against. The engine is logically single-threaded: writes are
// exclusive with all reads for their duration; the chain engine's apply
// lock provides that serialization.
package evm

import (
	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/common/block"
	"github.com/chainofclaw/COC-sub002/common/transaction"
	"github.com/chainofclaw/COC-sub002/common/types"
)

// Prefund seeds one account at genesis.
type Prefund struct {
	Addr    types.Address
	Balance *uint256.Int
}

// ExecResult is the outcome of one executed raw transaction.
type ExecResult struct {
	TxHash  types.Hash
	GasUsed uint64
	Success bool
}

// CallParams parameterizes a read-only call or gas estimate.
type CallParams struct {
	From  *types.Address
	To    types.Address
	Data  []byte
	Value *uint256.Int
	Gas   uint64
}

// CallResult is the outcome of a read-only call.
type CallResult struct {
	ReturnValue []byte
	GasUsed     uint64
}

// Engine is the narrow contract of the external execution engine.
type Engine interface {
	// Prefund credits the genesis balance set. Also recorded for
	// ResetExecution replay.
	Prefund(accounts []Prefund)

	// ExecuteRawTx runs one signed raw transaction in block context and
	// records its receipt.
	ExecuteRawTx(rawTx string, blockNumber uint64, txIndex uint32, blockHash types.Hash, baseFee *uint256.Int) (*ExecResult, error)

	// GetReceipt returns the receipt for an executed transaction, or nil.
	GetReceipt(txHash types.Hash) *block.Receipt

	// GetTransaction returns an executed transaction, or nil.
	GetTransaction(txHash types.Hash) *transaction.Transaction

	// State reads. Safe concurrently with each other, exclusive with
	// ExecuteRawTx.
	GetBalance(addr types.Address) *uint256.Int
	GetNonce(addr types.Address) uint64
	GetCode(addr types.Address) []byte
	GetStorageAt(addr types.Address, slot types.Hash) types.Hash

	// CallRaw executes a read-only call against current state.
	CallRaw(params CallParams) (*CallResult, error)

	// EstimateGas measures a call and returns a 10% margin over the
	// measured gas, floored at the intrinsic minimum.
	EstimateGas(params CallParams) (uint64, error)

	// ResetExecution rebuilds the state machine from the configured
	// prefund set, discarding all execution history.
	ResetExecution()
}
