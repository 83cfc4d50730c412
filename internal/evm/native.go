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

package evm

import (
	"sync"

	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/common/block"
	"github.com/chainofclaw/COC-sub002/common/transaction"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/log"
	"github.com/chainofclaw/COC-sub002/params"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// account is the in-memory state of one address.
type account struct {
	balance *uint256.Int
	nonce   uint64
	code    []byte
	storage map[types.Hash]types.Hash
}

// LogEmitter lets embedded system handlers attach logs to a transaction
// execution (contract-call side effects surface through here).
type LogEmitter func(to types.Address, data []byte) []*block.Log

// NativeEngine is the built-in account state machine: nonces, balances,
// value transfers and flat-rate gas accounting. Contract execution beyond
// transfers is delegated to an optional LogEmitter hook.
type NativeEngine struct {
	mu sync.RWMutex

	chainID  uint64
	accounts map[types.Address]*account
	prefunds []Prefund

	receipts map[types.Hash]*block.Receipt
	txs      map[types.Hash]*transaction.Transaction

	emitter LogEmitter
	logger  log.Logger
}

// NewNativeEngine creates an empty engine for chainID.
func NewNativeEngine(chainID uint64) *NativeEngine {
	return &NativeEngine{
		chainID:  chainID,
		accounts: make(map[types.Address]*account),
		receipts: make(map[types.Hash]*block.Receipt),
		txs:      make(map[types.Hash]*transaction.Transaction),
		logger:   log.New("module", "evm"),
	}
}

// SetLogEmitter installs the system-call log hook.
func (e *NativeEngine) SetLogEmitter(emitter LogEmitter) {
	e.emitter = emitter
}

func (e *NativeEngine) account(addr types.Address) *account {
	acc, ok := e.accounts[addr]
	if !ok {
		acc = &account{balance: uint256.NewInt(0), storage: make(map[types.Hash]types.Hash)}
		e.accounts[addr] = acc
	}
	return acc
}

// Prefund implements Engine.
func (e *NativeEngine) Prefund(accounts []Prefund) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range accounts {
		e.account(p.Addr).balance = new(uint256.Int).Set(p.Balance)
	}
	e.prefunds = append(e.prefunds, accounts...)
}

// ExecuteRawTx implements Engine. A failed execution still consumes the
// intrinsic gas and bumps the sender nonce, mirroring EVM semantics; only
// pre-validation failures (bad signature, nonce, funds) return an error
// and leave no receipt.
func (e *NativeEngine) ExecuteRawTx(rawTx string, blockNumber uint64, txIndex uint32, blockHash types.Hash, baseFee *uint256.Int) (*ExecResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := transaction.Decode(rawTx)
	if err != nil {
		return nil, err
	}
	from, err := tx.Sender()
	if err != nil {
		return nil, errors.ErrInvalidSignature
	}
	if tx.ChainID() != e.chainID {
		return nil, errors.ErrChainIdMismatch
	}

	sender := e.account(from)
	if tx.Nonce() < sender.nonce {
		return nil, errors.ErrNonceTooLow
	}
	if tx.Nonce() > sender.nonce {
		return nil, errors.Wrapf(errors.ErrInvalidBlock, "nonce gap: have %d, tx %d", sender.nonce, tx.Nonce())
	}

	intrinsic := tx.IntrinsicGas(params.TxGas, params.TxDataGas)
	if tx.GasLimit() < intrinsic {
		return nil, errors.ErrIntrinsicGas
	}
	if sender.balance.Cmp(tx.Cost()) < 0 {
		return nil, errors.ErrInsufficientFunds
	}

	price := tx.EffectiveGasPrice(baseFee)
	gasUsed := intrinsic
	fee := new(uint256.Int).Mul(price, uint256.NewInt(gasUsed))

	sender.nonce++
	sender.balance.Sub(sender.balance, fee)

	status := block.ReceiptStatusSuccessful
	var logs []*block.Log
	if to := tx.To(); to != nil {
		sender.balance.Sub(sender.balance, tx.Value())
		e.account(*to).balance.Add(e.account(*to).balance, tx.Value())
		if e.emitter != nil && len(tx.Data()) > 0 {
			logs = e.emitter(*to, tx.Data())
		}
	} else {
		// Contract creation is not executed natively; the value stays
		// with the sender and the receipt records a failure.
		status = block.ReceiptStatusFailed
	}

	txHash := tx.Hash()
	for i, lg := range logs {
		lg.BlockNumber = blockNumber
		lg.BlockHash = blockHash
		lg.TxHash = txHash
		lg.TxIndex = txIndex
		lg.LogIndex = uint32(i)
	}

	receipt := &block.Receipt{
		TxHash:            txHash,
		BlockNumber:       blockNumber,
		BlockHash:         blockHash,
		TxIndex:           txIndex,
		Status:            status,
		GasUsed:           gasUsed,
		Logs:              logs,
		LogsBloom:         block.CreateBloom(logs),
		EffectiveGasPrice: price,
	}
	e.receipts[txHash] = receipt
	e.txs[txHash] = tx

	return &ExecResult{TxHash: txHash, GasUsed: gasUsed, Success: status == block.ReceiptStatusSuccessful}, nil
}

// GetReceipt implements Engine.
func (e *NativeEngine) GetReceipt(txHash types.Hash) *block.Receipt {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.receipts[txHash]
}

// GetTransaction implements Engine.
func (e *NativeEngine) GetTransaction(txHash types.Hash) *transaction.Transaction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.txs[txHash]
}

// GetBalance implements Engine.
func (e *NativeEngine) GetBalance(addr types.Address) *uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if acc, ok := e.accounts[addr]; ok {
		return new(uint256.Int).Set(acc.balance)
	}
	return uint256.NewInt(0)
}

// GetNonce implements Engine.
func (e *NativeEngine) GetNonce(addr types.Address) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if acc, ok := e.accounts[addr]; ok {
		return acc.nonce
	}
	return 0
}

// GetCode implements Engine.
func (e *NativeEngine) GetCode(addr types.Address) []byte {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if acc, ok := e.accounts[addr]; ok {
		return acc.code
	}
	return nil
}

// GetStorageAt implements Engine.
func (e *NativeEngine) GetStorageAt(addr types.Address, slot types.Hash) types.Hash {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if acc, ok := e.accounts[addr]; ok {
		return acc.storage[slot]
	}
	return types.Hash{}
}

// CallRaw implements Engine. Calls do not mutate state; the measured gas
// is the intrinsic cost of an equivalent transaction.
func (e *NativeEngine) CallRaw(p CallParams) (*CallResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	gas := params.TxGas + uint64(len(p.Data))*params.TxDataGas
	return &CallResult{ReturnValue: []byte{}, GasUsed: gas}, nil
}

// EstimateGas implements Engine: measured + 10%, floored at 21000.
func (e *NativeEngine) EstimateGas(p CallParams) (uint64, error) {
	res, err := e.CallRaw(p)
	if err != nil {
		return 0, err
	}
	est := res.GasUsed + res.GasUsed/10
	if est < params.TxGas {
		est = params.TxGas
	}
	return est, nil
}

// ResetExecution implements Engine: rebuild from the prefund set.
func (e *NativeEngine) ResetExecution() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.accounts = make(map[types.Address]*account)
	e.receipts = make(map[types.Hash]*block.Receipt)
	e.txs = make(map[types.Hash]*transaction.Transaction)
	for _, p := range e.prefunds {
		e.account(p.Addr).balance = new(uint256.Int).Set(p.Balance)
	}
	e.logger.Debug("Execution state reset", "prefunds", len(e.prefunds))
}
