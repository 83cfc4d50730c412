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

package transaction

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
)

func signedTx(t *testing.T) (*Transaction, types.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	from := crypto.PubkeyToAddress(key.PubKey())

	to := types.HexToAddress("0x00000000000000000000000000000000000000aa")
	tx := NewTransaction(1337, 0, 21000,
		uint256.NewInt(2_000_000_000), uint256.NewInt(1_000_000_000),
		uint256.NewInt(1_000), &to, nil)
	signed, err := SignTx(tx, func(digest types.Hash) ([]byte, error) {
		return crypto.SignHash(digest, key)
	})
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	return signed, from
}

func TestSenderRecovery(t *testing.T) {
	tx, from := signedTx(t)
	got, err := tx.Sender()
	if err != nil {
		t.Fatalf("Sender failed: %v", err)
	}
	if got != from {
		t.Errorf("sender = %s, want %s", got, from)
	}
}

func TestRawRoundTrip(t *testing.T) {
	tx, from := signedTx(t)
	raw := tx.Raw()

	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Hash() != tx.Hash() {
		t.Errorf("hash = %s, want %s", decoded.Hash(), tx.Hash())
	}
	if decoded.Nonce() != tx.Nonce() {
		t.Errorf("nonce = %d, want %d", decoded.Nonce(), tx.Nonce())
	}
	if decoded.GasLimit() != tx.GasLimit() {
		t.Errorf("gas limit = %d, want %d", decoded.GasLimit(), tx.GasLimit())
	}
	if !decoded.Value().Eq(tx.Value()) {
		t.Errorf("value = %s, want %s", decoded.Value(), tx.Value())
	}
	if !decoded.GasFeeCap().Eq(tx.GasFeeCap()) {
		t.Errorf("fee cap = %s, want %s", decoded.GasFeeCap(), tx.GasFeeCap())
	}
	if *decoded.To() != *tx.To() {
		t.Errorf("to = %s, want %s", decoded.To(), tx.To())
	}

	got, err := decoded.Sender()
	if err != nil {
		t.Fatalf("sender after decode failed: %v", err)
	}
	if got != from {
		t.Errorf("sender = %s, want %s", got, from)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode("0xzz"); err == nil {
		t.Error("non-hex input should fail to decode")
	}
	if _, err := Decode("0xdeadbeef"); err == nil {
		t.Error("truncated envelope should fail to decode")
	}
}

func TestTamperedSignatureDoesNotRecoverSender(t *testing.T) {
	tx, from := signedTx(t)
	raw := tx.Raw()
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	sig := append([]byte{}, decoded.Signature()...)
	sig[3] ^= 0xFF
	tampered, err := decoded.WithSignature(sig)
	if err != nil {
		t.Fatalf("WithSignature failed: %v", err)
	}
	got, err := tampered.Sender()
	if err == nil && got == from {
		t.Error("tampered signature must not recover the original sender")
	}
}

func TestEffectiveGasPrice(t *testing.T) {
	to := types.HexToAddress("0x00000000000000000000000000000000000000bb")
	tx := NewTransaction(1, 0, 21000,
		uint256.NewInt(100), uint256.NewInt(10), nil, &to, nil)

	// baseFee + tip below cap.
	if got := tx.EffectiveGasPrice(uint256.NewInt(50)); !got.Eq(uint256.NewInt(60)) {
		t.Errorf("effective price at base 50 = %s, want 60", got)
	}
	// capped at maxFeePerGas.
	if got := tx.EffectiveGasPrice(uint256.NewInt(95)); !got.Eq(uint256.NewInt(100)) {
		t.Errorf("effective price at base 95 = %s, want 100", got)
	}
	// nil base fee falls back to the cap.
	if got := tx.EffectiveGasPrice(nil); !got.Eq(uint256.NewInt(100)) {
		t.Errorf("effective price with nil base = %s, want 100", got)
	}

	// tip = price - baseFee, floored at zero.
	if got := tx.EffectiveTip(uint256.NewInt(50)); !got.Eq(uint256.NewInt(10)) {
		t.Errorf("tip at base 50 = %s, want 10", got)
	}
	if got := tx.EffectiveTip(uint256.NewInt(95)); !got.Eq(uint256.NewInt(5)) {
		t.Errorf("tip at base 95 = %s, want 5", got)
	}
}

func TestIntrinsicGas(t *testing.T) {
	to := types.HexToAddress("0x00000000000000000000000000000000000000cc")
	tx := NewTransaction(1, 0, 50_000, uint256.NewInt(1), nil, nil, &to, []byte{1, 2, 3})
	if got := tx.IntrinsicGas(21000, 16); got != 21000+3*16 {
		t.Errorf("intrinsic gas = %d, want %d", got, 21000+3*16)
	}
}

func TestChainIDBoundIntoSigningHash(t *testing.T) {
	to := types.HexToAddress("0x00000000000000000000000000000000000000dd")
	a := NewTransaction(1, 0, 21000, uint256.NewInt(1), nil, nil, &to, nil)
	b := NewTransaction(2, 0, 21000, uint256.NewInt(1), nil, nil, &to, nil)
	if a.SigningHash() == b.SigningHash() {
		t.Error("signing hash must bind the chain id")
	}
}
