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
	"encoding/json"

	"github.com/chainofclaw/COC-sub002/common/block"
	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/transaction"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// TxBroadcaster pushes an admitted transaction to the gossip layer.
type TxBroadcaster func(rawTx string)

// TransactionAPI implements the transaction half of the eth namespace.
type TransactionAPI struct {
	api       *API
	broadcast TxBroadcaster
}

// NewTransactionAPI creates the transaction service. broadcast may be nil.
func NewTransactionAPI(api *API, broadcast TxBroadcaster) *TransactionAPI {
	return &TransactionAPI{api: api, broadcast: broadcast}
}

// RPCTransaction is the JSON-RPC transaction object.
type RPCTransaction struct {
	Hash                 types.Hash  `json:"hash"`
	From                 string      `json:"from"`
	To                   *string     `json:"to"`
	Nonce                string      `json:"nonce"`
	Gas                  string      `json:"gas"`
	MaxFeePerGas         string      `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string      `json:"maxPriorityFeePerGas"`
	Value                string      `json:"value"`
	Input                string      `json:"input"`
	ChainID              string      `json:"chainId"`
	BlockHash            *types.Hash `json:"blockHash"`
	BlockNumber          *string     `json:"blockNumber"`
	TransactionIndex     *string     `json:"transactionIndex"`
}

func newRPCTransaction(tx *transaction.Transaction, blk *block.Block, index uint32) *RPCTransaction {
	out := &RPCTransaction{
		Hash:                 tx.Hash(),
		Nonce:                EncodeUint64(tx.Nonce()),
		Gas:                  EncodeUint64(tx.GasLimit()),
		MaxFeePerGas:         EncodeBig(tx.GasFeeCap()),
		MaxPriorityFeePerGas: EncodeBig(tx.GasTipCap()),
		Value:                EncodeBig(tx.Value()),
		Input:                "0x" + hex.EncodeToString(tx.Data()),
		ChainID:              EncodeUint64(tx.ChainID()),
	}
	if from, err := tx.Sender(); err == nil {
		out.From = from.Hex()
	}
	if to := tx.To(); to != nil {
		s := to.Hex()
		out.To = &s
	}
	if blk != nil {
		num := EncodeUint64(blk.Number)
		idx := EncodeUint64(uint64(index))
		out.BlockHash = &blk.Hash
		out.BlockNumber = &num
		out.TransactionIndex = &idx
	}
	return out
}

// SendRawTransaction admits a signed raw transaction and gossips it.
func (s *TransactionAPI) SendRawTransaction(rawTx string) (string, error) {
	tx, err := s.api.chain.AddTransaction(rawTx)
	if err != nil {
		return "", err
	}
	if s.broadcast != nil {
		s.broadcast(rawTx)
	}
	return tx.Hash().Hex(), nil
}

// GetTransactionByHash looks a transaction up in the pool, then the chain.
func (s *TransactionAPI) GetTransactionByHash(hash string) (*RPCTransaction, error) {
	if !types.IsHexHash(hash) {
		return nil, errors.Errorf("invalid transaction hash %q", hash)
	}
	h := types.HexToHash(hash)
	if entry := s.api.chain.Pool().Get(h); entry != nil {
		return newRPCTransaction(entry.Tx, nil, 0), nil
	}
	rec := s.api.chain.Engine().GetReceipt(h)
	tx := s.api.chain.Engine().GetTransaction(h)
	if rec == nil || tx == nil {
		return nil, nil
	}
	blk := s.api.chain.GetBlockByNumber(rec.BlockNumber)
	return newRPCTransaction(tx, blk, rec.TxIndex), nil
}

// GetTransactionByBlockNumberAndIndex resolves by position.
func (s *TransactionAPI) GetTransactionByBlockNumberAndIndex(tag string, indexHex string) (*RPCTransaction, error) {
	number, err := s.api.BlockNumberArg(tag)
	if err != nil {
		return nil, err
	}
	return s.txByBlockAndIndex(s.api.chain.GetBlockByNumber(number), indexHex)
}

// GetTransactionByBlockHashAndIndex resolves by position.
func (s *TransactionAPI) GetTransactionByBlockHashAndIndex(hash string, indexHex string) (*RPCTransaction, error) {
	if !types.IsHexHash(hash) {
		return nil, errors.Errorf("invalid block hash %q", hash)
	}
	return s.txByBlockAndIndex(s.api.chain.GetBlockByHash(types.HexToHash(hash)), indexHex)
}

func (s *TransactionAPI) txByBlockAndIndex(blk *block.Block, indexHex string) (*RPCTransaction, error) {
	if blk == nil {
		return nil, nil
	}
	index, err := DecodeUint64(indexHex)
	if err != nil {
		return nil, errors.Wrap(err, "index")
	}
	if index >= uint64(len(blk.Txs)) {
		return nil, nil
	}
	tx, err := transaction.Decode(blk.Txs[index])
	if err != nil {
		return nil, err
	}
	return newRPCTransaction(tx, blk, uint32(index)), nil
}

// GetTransactionReceipt returns the receipt, or nil when unknown.
func (s *TransactionAPI) GetTransactionReceipt(hash string) (*block.Receipt, error) {
	if !types.IsHexHash(hash) {
		return nil, errors.Errorf("invalid transaction hash %q", hash)
	}
	return s.api.chain.Engine().GetReceipt(types.HexToHash(hash)), nil
}

// Accounts lists unlocked developer accounts.
func (s *TransactionAPI) Accounts() []string {
	addrs := s.api.Accounts()
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out
}

// Sign produces a prefixed-message signature from an unlocked account.
func (s *TransactionAPI) Sign(addr string, dataHex string) (string, error) {
	if !types.IsHexAddress(addr) {
		return "", errors.Errorf("invalid address %q", addr)
	}
	key := s.api.accountKey(types.HexToAddress(addr))
	if key == nil {
		return "", errors.New("unknown account")
	}
	sig, err := crypto.Sign(types.FromHex(dataHex), key)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// SignTypedData_v4 signs the canonical EIP-712 digest of the supplied
// typed data. The non-canonical raw-JSON variant is forbidden.
func (s *TransactionAPI) SignTypedData_v4(addr string, typedData json.RawMessage) (string, error) {
	if !types.IsHexAddress(addr) {
		return "", errors.Errorf("invalid address %q", addr)
	}
	key := s.api.accountKey(types.HexToAddress(addr))
	if key == nil {
		return "", errors.New("unknown account")
	}
	digest, err := TypedDataHash(typedData)
	if err != nil {
		return "", err
	}
	sig, err := crypto.SignHash(digest, key)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// SendTxArgs parameterizes eth_sendTransaction.
type SendTxArgs struct {
	From                 string  `json:"from"`
	To                   *string `json:"to"`
	Gas                  *string `json:"gas"`
	MaxFeePerGas         *string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *string `json:"maxPriorityFeePerGas"`
	GasPrice             *string `json:"gasPrice"`
	Value                *string `json:"value"`
	Data                 *string `json:"data"`
	Input                *string `json:"input"`
	Nonce                *string `json:"nonce"`
}

// SendTransaction signs with an unlocked account and submits.
func (s *TransactionAPI) SendTransaction(args SendTxArgs) (string, error) {
	if !types.IsHexAddress(args.From) {
		return "", errors.Errorf("invalid from address %q", args.From)
	}
	from := types.HexToAddress(args.From)
	key := s.api.accountKey(from)
	if key == nil {
		return "", errors.New("unknown account")
	}

	nonce := s.api.chain.Pool().PendingNonce(from, s.api.chain.OnchainNonce(from))
	if args.Nonce != nil {
		n, err := DecodeUint64(*args.Nonce)
		if err != nil {
			return "", errors.Wrap(err, "nonce")
		}
		nonce = n
	}
	gas := uint64(21000)
	if args.Gas != nil {
		g, err := DecodeUint64(*args.Gas)
		if err != nil {
			return "", errors.Wrap(err, "gas")
		}
		gas = g
	}
	feeCap := s.api.chain.NextBaseFee()
	if args.MaxFeePerGas != nil {
		fc, err := DecodeBig(*args.MaxFeePerGas)
		if err != nil {
			return "", errors.Wrap(err, "maxFeePerGas")
		}
		feeCap = fc
	} else if args.GasPrice != nil {
		fc, err := DecodeBig(*args.GasPrice)
		if err != nil {
			return "", errors.Wrap(err, "gasPrice")
		}
		feeCap = fc
	}
	tipCap := feeCap
	if args.MaxPriorityFeePerGas != nil {
		tc, err := DecodeBig(*args.MaxPriorityFeePerGas)
		if err != nil {
			return "", errors.Wrap(err, "maxPriorityFeePerGas")
		}
		tipCap = tc
	}
	value, err := DecodeBig("0x0")
	if err != nil {
		return "", err
	}
	if args.Value != nil {
		value, err = DecodeBig(*args.Value)
		if err != nil {
			return "", errors.Wrap(err, "value")
		}
	}
	var to *types.Address
	if args.To != nil {
		if !types.IsHexAddress(*args.To) {
			return "", errors.Errorf("invalid to address %q", *args.To)
		}
		addr := types.HexToAddress(*args.To)
		to = &addr
	}
	var data []byte
	if args.Data != nil {
		data = types.FromHex(*args.Data)
	} else if args.Input != nil {
		data = types.FromHex(*args.Input)
	}

	tx := transaction.NewTransaction(s.api.chain.ChainID(), nonce, gas, feeCap, tipCap, value, to, data)
	signed, err := transaction.SignTx(tx, func(digest types.Hash) ([]byte, error) {
		return crypto.SignHash(digest, key)
	})
	if err != nil {
		return "", err
	}
	return s.SendRawTransaction(signed.Raw())
}
