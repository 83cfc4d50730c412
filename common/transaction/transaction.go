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

// Package transaction models the signed transaction payload. Transactions
// carry EIP-1559 fee fields (with a legacy gas-price fallback) and an
// EIP-155 chain id bound into the signing digest. The raw wire form is a
// 0x-hex envelope of the canonical JSON encoding; all >53-bit numerics are
// decimal strings in JSON.
package transaction

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

// Transaction is a signed transfer/call payload.
type Transaction struct {
	chainID  uint64
	nonce    uint64
	gasLimit uint64
	// gasFeeCap is maxFeePerGas; gasTipCap is maxPriorityFeePerGas. A
	// legacy transaction sets both to its gas price.
	gasFeeCap *uint256.Int
	gasTipCap *uint256.Int
	to        *types.Address // nil means contract creation
	value     *uint256.Int
	data      []byte
	sig       []byte // 65 bytes [R || S || V]

	// caches
	hash *types.Hash
	from *types.Address
}

// txJSON is the canonical wire encoding.
type txJSON struct {
	ChainID  string `json:"chainId"`
	Nonce    string `json:"nonce"`
	GasLimit string `json:"gas"`
	FeeCap   string `json:"maxFeePerGas"`
	TipCap   string `json:"maxPriorityFeePerGas"`
	To       string `json:"to,omitempty"`
	Value    string `json:"value"`
	Data     string `json:"data"`
	Sig      string `json:"sig"`
}

// NewTransaction assembles an unsigned transaction.
func NewTransaction(chainID, nonce, gasLimit uint64, feeCap, tipCap, value *uint256.Int, to *types.Address, data []byte) *Transaction {
	if feeCap == nil {
		feeCap = uint256.NewInt(0)
	}
	if tipCap == nil {
		tipCap = new(uint256.Int).Set(feeCap)
	}
	if value == nil {
		value = uint256.NewInt(0)
	}
	return &Transaction{
		chainID:   chainID,
		nonce:     nonce,
		gasLimit:  gasLimit,
		gasFeeCap: feeCap,
		gasTipCap: tipCap,
		to:        to,
		value:     value,
		data:      data,
	}
}

// ChainID returns the chain the transaction was signed for.
func (tx *Transaction) ChainID() uint64 { return tx.chainID }

// Nonce returns the sender nonce.
func (tx *Transaction) Nonce() uint64 { return tx.nonce }

// GasLimit returns the gas limit.
func (tx *Transaction) GasLimit() uint64 { return tx.gasLimit }

// GasFeeCap returns maxFeePerGas.
func (tx *Transaction) GasFeeCap() *uint256.Int { return new(uint256.Int).Set(tx.gasFeeCap) }

// GasTipCap returns maxPriorityFeePerGas.
func (tx *Transaction) GasTipCap() *uint256.Int { return new(uint256.Int).Set(tx.gasTipCap) }

// To returns the recipient, or nil for contract creation.
func (tx *Transaction) To() *types.Address {
	if tx.to == nil {
		return nil
	}
	cpy := *tx.to
	return &cpy
}

// Value returns the transferred amount.
func (tx *Transaction) Value() *uint256.Int { return new(uint256.Int).Set(tx.value) }

// Data returns the call payload.
func (tx *Transaction) Data() []byte { return tx.data }

// Signature returns the raw 65-byte signature, or nil if unsigned.
func (tx *Transaction) Signature() []byte { return tx.sig }

// EffectiveGasPrice resolves the per-gas price actually paid under the
// given base fee: min(feeCap, baseFee + tipCap).
func (tx *Transaction) EffectiveGasPrice(baseFee *uint256.Int) *uint256.Int {
	if baseFee == nil {
		return tx.GasFeeCap()
	}
	price := new(uint256.Int).Add(baseFee, tx.gasTipCap)
	if price.Cmp(tx.gasFeeCap) > 0 {
		price.Set(tx.gasFeeCap)
	}
	return price
}

// EffectiveTip is EffectiveGasPrice minus baseFee, floored at zero.
func (tx *Transaction) EffectiveTip(baseFee *uint256.Int) *uint256.Int {
	price := tx.EffectiveGasPrice(baseFee)
	if baseFee == nil {
		return price
	}
	if price.Cmp(baseFee) < 0 {
		return uint256.NewInt(0)
	}
	return price.Sub(price, baseFee)
}

// SigningHash is the digest bound by the sender signature. The chain id is
// part of the preimage (EIP-155 style replay protection).
func (tx *Transaction) SigningHash() types.Hash {
	var toBytes []byte
	if tx.to != nil {
		toBytes = tx.to.Bytes()
	}
	return crypto.Keccak256Hash(
		[]byte("tx:"),
		crypto.Uint64BE(tx.chainID),
		crypto.Uint64BE(tx.nonce),
		crypto.Uint64BE(tx.gasLimit),
		tx.gasFeeCap.PaddedBytes(32),
		tx.gasTipCap.PaddedBytes(32),
		toBytes,
		tx.value.PaddedBytes(32),
		crypto.Keccak256(tx.data),
	)
}

// WithSignature returns a copy of tx carrying sig.
func (tx *Transaction) WithSignature(sig []byte) (*Transaction, error) {
	if len(sig) != types.SignatureLength {
		return nil, crypto.ErrInvalidSignatureLen
	}
	cpy := *tx
	cpy.sig = append([]byte{}, sig...)
	cpy.hash = nil
	cpy.from = nil
	return &cpy, nil
}

// Sender recovers and caches the signing address.
func (tx *Transaction) Sender() (types.Address, error) {
	if tx.from != nil {
		return *tx.from, nil
	}
	if len(tx.sig) != types.SignatureLength {
		return types.Address{}, errors.ErrInvalidSignature
	}
	addr, err := crypto.RecoverAddressFromHash(tx.SigningHash(), tx.sig)
	if err != nil {
		return types.Address{}, errors.ErrInvalidSignature
	}
	tx.from = &addr
	return addr, nil
}

// Hash returns the transaction hash: keccak256 of the raw encoding.
func (tx *Transaction) Hash() types.Hash {
	if tx.hash != nil {
		return *tx.hash
	}
	h := crypto.Keccak256Hash([]byte(tx.Raw()))
	tx.hash = &h
	return h
}

// Cost returns gasLimit·feeCap + value, the balance required up front.
func (tx *Transaction) Cost() *uint256.Int {
	cost := new(uint256.Int).Mul(uint256.NewInt(tx.gasLimit), tx.gasFeeCap)
	return cost.Add(cost, tx.value)
}

// Raw returns the 0x-hex wire envelope of the canonical JSON encoding.
func (tx *Transaction) Raw() string {
	enc := txJSON{
		ChainID:  uint256.NewInt(tx.chainID).Dec(),
		Nonce:    uint256.NewInt(tx.nonce).Dec(),
		GasLimit: uint256.NewInt(tx.gasLimit).Dec(),
		FeeCap:   tx.gasFeeCap.Dec(),
		TipCap:   tx.gasTipCap.Dec(),
		Value:    tx.value.Dec(),
		Data:     "0x" + hex.EncodeToString(tx.data),
		Sig:      "0x" + hex.EncodeToString(tx.sig),
	}
	if tx.to != nil {
		enc.To = tx.to.Hex()
	}
	raw, _ := json.Marshal(enc)
	return "0x" + hex.EncodeToString(raw)
}

// Decode parses a raw wire envelope back into a Transaction.
func Decode(raw string) (*Transaction, error) {
	body, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X"))
	if err != nil {
		return nil, errors.Wrap(err, "raw transaction is not hex")
	}
	var enc txJSON
	if err := json.Unmarshal(body, &enc); err != nil {
		return nil, errors.Wrap(err, "raw transaction payload invalid")
	}

	parseU64 := func(s string) (uint64, error) {
		v, err := uint256.FromDecimal(s)
		if err != nil {
			return 0, err
		}
		if !v.IsUint64() {
			return 0, errors.New("numeric field overflows uint64")
		}
		return v.Uint64(), nil
	}

	chainID, err := parseU64(enc.ChainID)
	if err != nil {
		return nil, errors.Wrap(err, "chainId")
	}
	nonce, err := parseU64(enc.Nonce)
	if err != nil {
		return nil, errors.Wrap(err, "nonce")
	}
	gasLimit, err := parseU64(enc.GasLimit)
	if err != nil {
		return nil, errors.Wrap(err, "gas")
	}
	feeCap, err := uint256.FromDecimal(enc.FeeCap)
	if err != nil {
		return nil, errors.Wrap(err, "maxFeePerGas")
	}
	tipCap, err := uint256.FromDecimal(enc.TipCap)
	if err != nil {
		return nil, errors.Wrap(err, "maxPriorityFeePerGas")
	}
	value, err := uint256.FromDecimal(enc.Value)
	if err != nil {
		return nil, errors.Wrap(err, "value")
	}
	data := types.FromHex(enc.Data)
	sig := types.FromHex(enc.Sig)

	var to *types.Address
	if enc.To != "" {
		if !types.IsHexAddress(enc.To) {
			return nil, errors.Errorf("invalid to address %q", enc.To)
		}
		addr := types.HexToAddress(enc.To)
		to = &addr
	}

	tx := NewTransaction(chainID, nonce, gasLimit, feeCap, tipCap, value, to, data)
	if len(sig) > 0 {
		return tx.WithSignature(sig)
	}
	return tx, nil
}

// SignTx signs tx with the given private key helper and returns the signed copy.
func SignTx(tx *Transaction, sign func(digest types.Hash) ([]byte, error)) (*Transaction, error) {
	sig, err := sign(tx.SigningHash())
	if err != nil {
		return nil, err
	}
	return tx.WithSignature(sig)
}

// IntrinsicGas is the gas consumed before execution: flat cost plus
// calldata cost.
func (tx *Transaction) IntrinsicGas(flat, perByte uint64) uint64 {
	return flat + uint64(len(tx.data))*perByte
}
