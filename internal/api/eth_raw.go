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

package api

import (
	"encoding/hex"

	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/common/block"
	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/transaction"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/internal/evm"
	"github.com/chainofclaw/COC-sub002/params"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// BlockChainAPI implements the chain-read half of the eth namespace.
type BlockChainAPI struct {
	api *API
}

// NewBlockChainAPI creates the chain-read service.
func NewBlockChainAPI(api *API) *BlockChainAPI {
	return &BlockChainAPI{api: api}
}

// ChainId returns the chain id as a hex quantity.
func (s *BlockChainAPI) ChainId() string {
	return EncodeUint64(s.api.chain.ChainID())
}

// BlockNumber returns the tip height.
func (s *BlockChainAPI) BlockNumber() string {
	return EncodeUint64(s.api.chain.Height())
}

// ProtocolVersion reports the wire protocol version.
func (s *BlockChainAPI) ProtocolVersion() string {
	return EncodeUint64(params.ProtocolVersion)
}

// Syncing always reports false: applies are synchronous with gossip.
func (s *BlockChainAPI) Syncing() bool {
	return false
}

// GetBalance returns the balance at the tag (history is not retained; any
// tag resolves to current state).
func (s *BlockChainAPI) GetBalance(addr string, tag string) (string, error) {
	if !types.IsHexAddress(addr) {
		return "", errors.Errorf("invalid address %q", addr)
	}
	return EncodeBig(s.api.chain.Engine().GetBalance(types.HexToAddress(addr))), nil
}

// GetTransactionCount returns the account nonce; the pending tag includes
// queued mempool transactions.
func (s *BlockChainAPI) GetTransactionCount(addr string, tag string) (string, error) {
	if !types.IsHexAddress(addr) {
		return "", errors.Errorf("invalid address %q", addr)
	}
	a := types.HexToAddress(addr)
	onchain := s.api.chain.OnchainNonce(a)
	if tag == "pending" {
		return EncodeUint64(s.api.chain.Pool().PendingNonce(a, onchain)), nil
	}
	return EncodeUint64(onchain), nil
}

// GetCode returns the code at addr.
func (s *BlockChainAPI) GetCode(addr string, tag string) (string, error) {
	if !types.IsHexAddress(addr) {
		return "", errors.Errorf("invalid address %q", addr)
	}
	return "0x" + hex.EncodeToString(s.api.chain.Engine().GetCode(types.HexToAddress(addr))), nil
}

// GetStorageAt returns the storage slot value.
func (s *BlockChainAPI) GetStorageAt(addr string, slot string, tag string) (string, error) {
	if !types.IsHexAddress(addr) {
		return "", errors.Errorf("invalid address %q", addr)
	}
	value := s.api.chain.Engine().GetStorageAt(types.HexToAddress(addr), types.HexToHash(slot))
	return value.Hex(), nil
}

// RPCBlock is the JSON-RPC block object.
type RPCBlock struct {
	Number           string      `json:"number"`
	Hash             types.Hash  `json:"hash"`
	ParentHash       types.Hash  `json:"parentHash"`
	Miner            string      `json:"miner"`
	Timestamp        string      `json:"timestamp"`
	TimestampMs      string      `json:"timestampMs"`
	Transactions     interface{} `json:"transactions"`
	BaseFeePerGas    string      `json:"baseFeePerGas"`
	GasUsed          string      `json:"gasUsed"`
	GasLimit         string      `json:"gasLimit"`
	CumulativeWeight string      `json:"cumulativeWeight"`
	Finalized        bool        `json:"finalized"`
}

func (s *BlockChainAPI) rpcBlock(blk *block.Block, fullTx bool) *RPCBlock {
	if blk == nil {
		return nil
	}
	out := &RPCBlock{
		Number:           EncodeUint64(blk.Number),
		Hash:             blk.Hash,
		ParentHash:       blk.ParentHash,
		Miner:            blk.Proposer,
		Timestamp:        EncodeUint64(blk.TimestampMs / 1000),
		TimestampMs:      EncodeUint64(blk.TimestampMs),
		BaseFeePerGas:    EncodeBig(blk.BaseFee),
		GasUsed:          EncodeUint64(blk.GasUsed),
		GasLimit:         EncodeUint64(params.BlockGasLimit),
		CumulativeWeight: EncodeUint64(blk.CumulativeWeight),
		Finalized:        blk.Finalized,
	}
	if fullTx {
		txs := make([]*RPCTransaction, 0, len(blk.Txs))
		for i, raw := range blk.Txs {
			if tx, err := transaction.Decode(raw); err == nil {
				txs = append(txs, newRPCTransaction(tx, blk, uint32(i)))
			}
		}
		out.Transactions = txs
	} else {
		hashes := make([]types.Hash, 0, len(blk.Txs))
		for _, raw := range blk.Txs {
			hashes = append(hashes, crypto.Keccak256Hash([]byte(raw)))
		}
		out.Transactions = hashes
	}
	return out
}

// GetBlockByNumber returns the block at a tag, or nil when unknown.
func (s *BlockChainAPI) GetBlockByNumber(tag string, fullTx bool) (*RPCBlock, error) {
	number, err := s.api.BlockNumberArg(tag)
	if err != nil {
		return nil, err
	}
	return s.rpcBlock(s.api.chain.GetBlockByNumber(number), fullTx), nil
}

// GetBlockByHash returns the block with hash, or nil when unknown.
func (s *BlockChainAPI) GetBlockByHash(hash string, fullTx bool) (*RPCBlock, error) {
	if !types.IsHexHash(hash) {
		return nil, errors.Errorf("invalid block hash %q", hash)
	}
	return s.rpcBlock(s.api.chain.GetBlockByHash(types.HexToHash(hash)), fullTx), nil
}

// GetBlockReceipts returns every receipt of a block. An unknown block
// yields null; a known block with no transactions yields an empty array.
func (s *BlockChainAPI) GetBlockReceipts(tag string) (interface{}, error) {
	number, err := s.api.BlockNumberArg(tag)
	if err != nil {
		return nil, err
	}
	if s.api.chain.GetBlockByNumber(number) == nil {
		return nil, nil
	}
	receipts := s.api.chain.GetReceipts(number)
	if receipts == nil {
		return []*block.Receipt{}, nil
	}
	return receipts, nil
}

// CallArgs parameterizes eth_call / eth_estimateGas.
type CallArgs struct {
	From  *string `json:"from"`
	To    *string `json:"to"`
	Gas   *string `json:"gas"`
	Value *string `json:"value"`
	Data  *string `json:"data"`
	Input *string `json:"input"`
}

func (args *CallArgs) toParams() (evm.CallParams, error) {
	var p evm.CallParams
	if args.To == nil {
		return p, errors.New("missing to address")
	}
	if !types.IsHexAddress(*args.To) {
		return p, errors.Errorf("invalid to address %q", *args.To)
	}
	p.To = types.HexToAddress(*args.To)
	if args.From != nil {
		from := types.HexToAddress(*args.From)
		p.From = &from
	}
	data := args.Data
	if data == nil {
		data = args.Input
	}
	if data != nil {
		p.Data = types.FromHex(*data)
	}
	if args.Value != nil {
		v, err := DecodeBig(*args.Value)
		if err != nil {
			return p, errors.Wrap(err, "value")
		}
		p.Value = v
	}
	if args.Gas != nil {
		g, err := DecodeUint64(*args.Gas)
		if err != nil {
			return p, errors.Wrap(err, "gas")
		}
		p.Gas = g
	}
	return p, nil
}

// Call executes a read-only call.
func (s *BlockChainAPI) Call(args CallArgs, tag string) (string, error) {
	p, err := args.toParams()
	if err != nil {
		return "", err
	}
	res, err := s.api.chain.Engine().CallRaw(p)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(res.ReturnValue), nil
}

// EstimateGas measures a call and returns the padded estimate.
func (s *BlockChainAPI) EstimateGas(args CallArgs) (string, error) {
	p, err := args.toParams()
	if err != nil {
		return "", err
	}
	gas, err := s.api.chain.Engine().EstimateGas(p)
	if err != nil {
		return "", err
	}
	return EncodeUint64(gas), nil
}

// AccessListResult is the eth_createAccessList response.
type AccessListResult struct {
	AccessList []interface{} `json:"accessList"`
	GasUsed    string        `json:"gasUsed"`
}

// CreateAccessList returns an empty access list plus the gas estimate: the
// native engine has no warm/cold distinction.
func (s *BlockChainAPI) CreateAccessList(args CallArgs, tag string) (*AccessListResult, error) {
	gas, err := s.EstimateGas(args)
	if err != nil {
		return nil, err
	}
	return &AccessListResult{AccessList: []interface{}{}, GasUsed: gas}, nil
}

// GasPrice suggests nextBaseFee plus the suggested tip.
func (s *BlockChainAPI) GasPrice() string {
	price := new(uint256.Int).Add(s.api.chain.NextBaseFee(), s.suggestTip())
	return EncodeBig(price)
}

// MaxPriorityFeePerGas suggests a tip from recent blocks.
func (s *BlockChainAPI) MaxPriorityFeePerGas() string {
	return EncodeBig(s.suggestTip())
}

// suggestTip is the median effective tip over the last 20 blocks, floored
// at 1 gwei.
func (s *BlockChainAPI) suggestTip() *uint256.Int {
	floor := uint256.NewInt(params.GWei)
	height := s.api.chain.Height()
	var tips []*uint256.Int
	start := uint64(1)
	if height > 20 {
		start = height - 19
	}
	for n := start; n <= height; n++ {
		blk := s.api.chain.GetBlockByNumber(n)
		if blk == nil {
			continue
		}
		for _, rec := range s.api.chain.GetReceipts(n) {
			if rec.EffectiveGasPrice == nil {
				continue
			}
			tip := new(uint256.Int).Set(rec.EffectiveGasPrice)
			if blk.BaseFee != nil && tip.Cmp(blk.BaseFee) > 0 {
				tip.Sub(tip, blk.BaseFee)
			}
			tips = append(tips, tip)
		}
	}
	if len(tips) == 0 {
		return floor
	}
	// Median by simple selection; the sample is tiny.
	for i := range tips {
		for j := i + 1; j < len(tips); j++ {
			if tips[j].Cmp(tips[i]) < 0 {
				tips[i], tips[j] = tips[j], tips[i]
			}
		}
	}
	med := tips[len(tips)/2]
	if med.Cmp(floor) < 0 {
		return floor
	}
	return med
}

// FeeHistoryResult is the eth_feeHistory response.
type FeeHistoryResult struct {
	OldestBlock   string     `json:"oldestBlock"`
	BaseFeePerGas []string   `json:"baseFeePerGas"`
	GasUsedRatio  []float64  `json:"gasUsedRatio"`
	Reward        [][]string `json:"reward,omitempty"`
}

// FeeHistory reports base fees and gas ratios for a recent block span.
func (s *BlockChainAPI) FeeHistory(blockCount string, newestTag string, percentiles []float64) (*FeeHistoryResult, error) {
	count, err := DecodeUint64(blockCount)
	if err != nil {
		return nil, errors.Wrap(err, "blockCount")
	}
	if count == 0 {
		count = 1
	}
	if count > 1024 {
		count = 1024
	}
	newest, err := s.api.BlockNumberArg(newestTag)
	if err != nil {
		return nil, err
	}
	if newest == 0 {
		return &FeeHistoryResult{OldestBlock: "0x0", BaseFeePerGas: []string{}, GasUsedRatio: []float64{}}, nil
	}
	oldest := uint64(1)
	if newest > count {
		oldest = newest - count + 1
	}
	res := &FeeHistoryResult{OldestBlock: EncodeUint64(oldest)}
	for n := oldest; n <= newest; n++ {
		blk := s.api.chain.GetBlockByNumber(n)
		if blk == nil {
			break
		}
		res.BaseFeePerGas = append(res.BaseFeePerGas, EncodeBig(blk.BaseFee))
		res.GasUsedRatio = append(res.GasUsedRatio, float64(blk.GasUsed)/float64(params.BlockGasLimit))
	}
	// The fee schedule of the block after newest.
	res.BaseFeePerGas = append(res.BaseFeePerGas, EncodeBig(s.api.chain.NextBaseFee()))
	return res, nil
}
