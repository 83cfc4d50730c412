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

package block

import (
	"encoding/hex"
	"encoding/json"

	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
)

// Receipt status codes.
const (
	ReceiptStatusFailed     uint64 = 0
	ReceiptStatusSuccessful uint64 = 1
)

// Log is an event emitted during transaction execution.
type Log struct {
	Address     types.Address `json:"address"`
	Topics      []types.Hash  `json:"topics"`
	Data        []byte        `json:"-"`
	BlockNumber uint64        `json:"blockNumber"`
	TxHash      types.Hash    `json:"transactionHash"`
	TxIndex     uint32        `json:"transactionIndex"`
	LogIndex    uint32        `json:"logIndex"`
	BlockHash   types.Hash    `json:"blockHash"`
}

type logJSON struct {
	Address     types.Address `json:"address"`
	Topics      []types.Hash  `json:"topics"`
	Data        string        `json:"data"`
	BlockNumber uint64        `json:"blockNumber"`
	TxHash      types.Hash    `json:"transactionHash"`
	TxIndex     uint32        `json:"transactionIndex"`
	LogIndex    uint32        `json:"logIndex"`
	BlockHash   types.Hash    `json:"blockHash"`
}

// MarshalJSON implements json.Marshaler.
func (l *Log) MarshalJSON() ([]byte, error) {
	topics := l.Topics
	if topics == nil {
		topics = []types.Hash{}
	}
	return json.Marshal(&logJSON{
		Address:     l.Address,
		Topics:      topics,
		Data:        "0x" + hex.EncodeToString(l.Data),
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		TxIndex:     l.TxIndex,
		LogIndex:    l.LogIndex,
		BlockHash:   l.BlockHash,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Log) UnmarshalJSON(input []byte) error {
	var dec logJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	l.Address = dec.Address
	l.Topics = dec.Topics
	l.Data = types.FromHex(dec.Data)
	l.BlockNumber = dec.BlockNumber
	l.TxHash = dec.TxHash
	l.TxIndex = dec.TxIndex
	l.LogIndex = dec.LogIndex
	l.BlockHash = dec.BlockHash
	return nil
}

// Receipt records the outcome of one executed transaction.
type Receipt struct {
	TxHash            types.Hash   `json:"transactionHash"`
	BlockNumber       uint64       `json:"blockNumber"`
	BlockHash         types.Hash   `json:"blockHash"`
	TxIndex           uint32       `json:"transactionIndex"`
	Status            uint64       `json:"status"`
	GasUsed           uint64       `json:"gasUsed"`
	CumulativeGasUsed uint64       `json:"cumulativeGasUsed"`
	Logs              []*Log       `json:"logs"`
	LogsBloom         []byte       `json:"-"`
	EffectiveGasPrice *uint256.Int `json:"-"`
	ContractAddress   *types.Address `json:"contractAddress,omitempty"`
}

type receiptJSON struct {
	TxHash            types.Hash     `json:"transactionHash"`
	BlockNumber       uint64         `json:"blockNumber"`
	BlockHash         types.Hash     `json:"blockHash"`
	TxIndex           uint32         `json:"transactionIndex"`
	Status            uint64         `json:"status"`
	GasUsed           uint64         `json:"gasUsed"`
	CumulativeGasUsed uint64         `json:"cumulativeGasUsed"`
	Logs              []*Log         `json:"logs"`
	LogsBloom         string         `json:"logsBloom"`
	EffectiveGasPrice string         `json:"effectiveGasPrice"`
	ContractAddress   *types.Address `json:"contractAddress,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r *Receipt) MarshalJSON() ([]byte, error) {
	price := r.EffectiveGasPrice
	if price == nil {
		price = uint256.NewInt(0)
	}
	logs := r.Logs
	if logs == nil {
		logs = []*Log{}
	}
	return json.Marshal(&receiptJSON{
		TxHash:            r.TxHash,
		BlockNumber:       r.BlockNumber,
		BlockHash:         r.BlockHash,
		TxIndex:           r.TxIndex,
		Status:            r.Status,
		GasUsed:           r.GasUsed,
		CumulativeGasUsed: r.CumulativeGasUsed,
		Logs:              logs,
		LogsBloom:         "0x" + hex.EncodeToString(r.LogsBloom),
		EffectiveGasPrice: price.Dec(),
		ContractAddress:   r.ContractAddress,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Receipt) UnmarshalJSON(input []byte) error {
	var dec receiptJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	price, err := uint256.FromDecimal(dec.EffectiveGasPrice)
	if err != nil {
		return err
	}
	r.TxHash = dec.TxHash
	r.BlockNumber = dec.BlockNumber
	r.BlockHash = dec.BlockHash
	r.TxIndex = dec.TxIndex
	r.Status = dec.Status
	r.GasUsed = dec.GasUsed
	r.CumulativeGasUsed = dec.CumulativeGasUsed
	r.Logs = dec.Logs
	r.LogsBloom = types.FromHex(dec.LogsBloom)
	r.EffectiveGasPrice = price
	r.ContractAddress = dec.ContractAddress
	return nil
}

// Receipts is a list of receipts.
type Receipts []*Receipt

// CreateBloom builds the 256-byte bloom over the receipt's log addresses
// and topics, with the classic three 11-bit probes per item.
func CreateBloom(logs []*Log) []byte {
	bloom := make([]byte, 256)
	add := func(b []byte) {
		h := crypto.Keccak256(b)
		for i := 0; i < 6; i += 2 {
			bit := (uint(h[i])<<8 | uint(h[i+1])) & 2047
			bloom[256-1-bit/8] |= 1 << (bit % 8)
		}
	}
	for _, l := range logs {
		add(l.Address.Bytes())
		for _, t := range l.Topics {
			add(t.Bytes())
		}
	}
	return bloom
}
