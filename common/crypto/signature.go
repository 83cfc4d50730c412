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

package crypto

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/chainofclaw/COC-sub002/common/types"
)

// Signatures are 65 bytes in the Ethereum [R || S || V] layout with V in
// {0, 1}. Node-signed inputs are prefixed with the Ethereum Signed Message
// convention before hashing, so third-party wallets produce compatible
// signatures.

var (
	// ErrInvalidSignatureLen is returned when a signature is not 65 bytes.
	ErrInvalidSignatureLen = errors.New("signature must be 65 bytes long")

	// ErrInvalidRecoveryID is returned when the V byte is out of range.
	ErrInvalidRecoveryID = errors.New("invalid signature recovery id")
)

const signedMessagePrefix = "\x19Ethereum Signed Message:\n"

// PrefixedHash returns keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func PrefixedHash(msg []byte) types.Hash {
	return Keccak256Hash([]byte(fmt.Sprintf("%s%d", signedMessagePrefix, len(msg))), msg)
}

// GenerateKey creates a fresh secp256k1 private key.
func GenerateKey() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey()
}

// PrivateKeyFromBytes parses a 32-byte scalar into a private key.
func PrivateKeyFromBytes(b []byte) (*btcec.PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(b))
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return priv, nil
}

// PubkeyToAddress derives the account address from an uncompressed public
// key: the last 20 bytes of keccak256(pubkey[1:]).
func PubkeyToAddress(pub *btcec.PublicKey) types.Address {
	raw := pub.SerializeUncompressed()
	return types.BytesToAddress(Keccak256(raw[1:])[12:])
}

// Sign produces a recoverable signature over the prefixed hash of msg.
func Sign(msg []byte, priv *btcec.PrivateKey) ([]byte, error) {
	return SignHash(PrefixedHash(msg), priv)
}

// SignHash produces a recoverable signature over a 32-byte digest.
func SignHash(digest types.Hash, priv *btcec.PrivateKey) ([]byte, error) {
	compact, err := btcecdsa.SignCompact(priv, digest.Bytes(), false)
	if err != nil {
		return nil, err
	}
	// btcec emits [V+27 || R || S]; convert to Ethereum's [R || S || V].
	sig := make([]byte, types.SignatureLength)
	copy(sig, compact[1:])
	sig[64] = compact[0] - 27
	return sig, nil
}

// RecoverAddress recovers the signing address from a prefixed-message
// signature.
func RecoverAddress(msg []byte, sig []byte) (types.Address, error) {
	return RecoverAddressFromHash(PrefixedHash(msg), sig)
}

// RecoverAddressFromHash recovers the signing address from a signature over
// a raw 32-byte digest.
func RecoverAddressFromHash(digest types.Hash, sig []byte) (types.Address, error) {
	if len(sig) != types.SignatureLength {
		return types.Address{}, ErrInvalidSignatureLen
	}
	v := sig[64]
	if v >= 4 {
		// Accept the legacy 27/28 encoding too.
		if v != 27 && v != 28 {
			return types.Address{}, ErrInvalidRecoveryID
		}
		v -= 27
	}
	compact := make([]byte, types.SignatureLength)
	compact[0] = v + 27
	copy(compact[1:], sig[:64])
	pub, _, err := btcecdsa.RecoverCompact(compact, digest.Bytes())
	if err != nil {
		return types.Address{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return PubkeyToAddress(pub), nil
}

// NodeIDFromPubkey derives the PoSe node id: keccak256 of the
// uncompressed public key bytes.
func NodeIDFromPubkey(pub *btcec.PublicKey) types.Hash {
	return Keccak256Hash(pub.SerializeUncompressed())
}

// RecoverNodeID recovers the PoSe node id that signed msg.
func RecoverNodeID(msg []byte, sig []byte) (types.Hash, error) {
	if len(sig) != types.SignatureLength {
		return types.Hash{}, ErrInvalidSignatureLen
	}
	v := sig[64]
	if v >= 4 {
		if v != 27 && v != 28 {
			return types.Hash{}, ErrInvalidRecoveryID
		}
		v -= 27
	}
	compact := make([]byte, types.SignatureLength)
	compact[0] = v + 27
	copy(compact[1:], sig[:64])
	pub, _, err := btcecdsa.RecoverCompact(compact, PrefixedHash(msg).Bytes())
	if err != nil {
		return types.Hash{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return NodeIDFromPubkey(pub), nil
}

// VerifyNodeSig reports whether sig over msg recovers claimed.
func VerifyNodeSig(msg []byte, sig []byte, claimed types.Address) bool {
	addr, err := RecoverAddress(msg, sig)
	if err != nil {
		return false
	}
	return addr == claimed
}

// =============================================================================
// Canonical message builders
// =============================================================================
//
// Each signed artifact in the protocol has exactly one byte layout. The
// builders below are the single source of those layouts; signer and
// verifier must both go through them.

// BlockMessage is the canonical preimage for a block proposer signature:
// "block:" || hex(blockHash).
func BlockMessage(blockHash types.Hash) []byte {
	return []byte("block:" + blockHash.Hex())
}

// HandshakeMessage is the canonical preimage for a wire handshake:
// "wire:handshake:" || chainId || ":" || nodeId || ":" || nonce.
func HandshakeMessage(chainID uint64, nodeID string, nonce string) []byte {
	return []byte(fmt.Sprintf("wire:handshake:%d:%s:%s", chainID, nodeID, nonce))
}

// PoseHTTPMessage is the canonical preimage for a PoSe HTTP auth envelope:
// "pose:http:" || path || ":" || senderId || ":" || tsMillis || ":" || nonce
// || ":" || hex(payloadHash).
func PoseHTTPMessage(path string, senderID string, tsMillis uint64, nonce string, payloadHash types.Hash) []byte {
	return []byte(fmt.Sprintf("pose:http:%s:%s:%d:%s:%s", path, senderID, tsMillis, nonce, payloadHash.Hex()))
}
