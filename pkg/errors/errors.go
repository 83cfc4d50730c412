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

// Package errors defines common error types used throughout the COC
// codebase. This package provides a centralized location for error
// definitions to ensure consistency and avoid duplication across modules.
package errors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// =====================
// Block & Chain Errors
// =====================

var (
	// ErrInvalidBlock is returned when a block fails validation.
	ErrInvalidBlock = errors.New("invalid block")

	// ErrInvalidHash is returned when a block's recomputed hash does not
	// match its declared hash.
	ErrInvalidHash = errors.New("invalid block hash")

	// ErrInvalidProposer is returned when a block's proposer is not the
	// expected round-robin validator for its height.
	ErrInvalidProposer = errors.New("invalid proposer")

	// ErrInvalidLink is returned when a block does not extend the tip.
	ErrInvalidLink = errors.New("block does not link to current tip")

	// ErrInvalidTimestamp is returned when a block timestamp is not
	// monotonic or runs too far into the future.
	ErrInvalidTimestamp = errors.New("invalid block timestamp")

	// ErrInvalidWeight is returned when cumulativeWeight breaks the
	// uniform parent+1 recurrence.
	ErrInvalidWeight = errors.New("invalid cumulative weight")

	// ErrMissingSignature is returned when signature enforcement requires
	// a proposer signature and the block carries none.
	ErrMissingSignature = errors.New("missing proposer signature")

	// ErrInvalidBlockSignature is returned when a proposer signature does
	// not recover the proposer.
	ErrInvalidBlockSignature = errors.New("invalid proposer signature")

	// ErrGasLimitExceeded is returned when a block's measured gas exceeds
	// the block gas limit.
	ErrGasLimitExceeded = errors.New("block gas limit exceeded")

	// ErrGasUsedMismatch is returned when a remote block declares a
	// gasUsed that differs from the measured total.
	ErrGasUsedMismatch = errors.New("declared gas used mismatch")

	// ErrReentrantApply is returned when applyBlock is re-entered while an
	// apply is already in flight. This is a bug invariant, not a
	// recoverable condition.
	ErrReentrantApply = errors.New("reentrant block apply")

	// ErrNoGenesis is returned when there is no genesis block.
	ErrNoGenesis = errors.New("genesis not found in chain")
)

// =====================
// Transaction / Mempool Errors
// =====================

var (
	// ErrInvalidSignature is returned when a transaction signature does
	// not verify.
	ErrInvalidSignature = errors.New("invalid transaction signature")

	// ErrChainIdMismatch is returned when a transaction was signed for a
	// different chain.
	ErrChainIdMismatch = errors.New("chain id mismatch")

	// ErrAlreadyPending is returned when a transaction hash is already in
	// the mempool.
	ErrAlreadyPending = errors.New("transaction already pending")

	// ErrAlreadyConfirmed is returned when a transaction was already
	// included in an applied block.
	ErrAlreadyConfirmed = errors.New("transaction already confirmed")

	// ErrNonceTooLow is returned if the nonce of a transaction is lower
	// than the one present in the local chain.
	ErrNonceTooLow = errors.New("nonce too low")

	// ErrFeeTooLow is returned when a transaction's gas price is below the
	// configured floor.
	ErrFeeTooLow = errors.New("gas price below minimum")

	// ErrIntrinsicGas is returned if the transaction is specified to use
	// less gas than required to start the invocation.
	ErrIntrinsicGas = errors.New("intrinsic gas too low")

	// ErrInsufficientFunds is returned if the total cost of executing a
	// transaction is higher than the balance of the user's account.
	ErrInsufficientFunds = errors.New("insufficient funds for gas * price + value")
)

// =====================
// Storage Errors
// =====================

var (
	// ErrKeyNotFound is returned when a key is not found in the database.
	ErrKeyNotFound = errors.New("db: key not found")

	// ErrCorrupted is returned when the store detects on-disk corruption
	// that repair could not resolve. The node must refuse to start.
	ErrCorrupted = errors.New("db: corrupted store")

	// ErrClosed is returned on operations against a closed store.
	ErrClosed = errors.New("db: closed")
)

// =====================
// Wire / P2P Errors
// =====================

var (
	// ErrBadMagic is returned when a frame does not start with the
	// protocol magic.
	ErrBadMagic = errors.New("wire: bad frame magic")

	// ErrFrameTooLarge is returned when a frame declares a payload above
	// the protocol cap.
	ErrFrameTooLarge = errors.New("wire: frame payload too large")

	// ErrBufferOverflow is returned when the streaming decoder's internal
	// buffer exceeds its hard cap; the decoder resets.
	ErrBufferOverflow = errors.New("wire: decode buffer overflow")

	// ErrChainMismatch is returned when a handshake carries a foreign
	// chain id.
	ErrChainMismatch = errors.New("wire: chain id mismatch")

	// ErrHandshakeAuth is returned when a handshake signature does not
	// recover the claimed node id.
	ErrHandshakeAuth = errors.New("wire: handshake authentication failed")

	// ErrTooManyPeers is returned when admission control rejects a
	// connection.
	ErrTooManyPeers = errors.New("wire: too many peers")
)

// =====================
// PoSe Errors
// =====================

var (
	// ErrQuotaExhausted is returned when a node's per-epoch challenge
	// quota is spent.
	ErrQuotaExhausted = errors.New("pose: challenge quota exhausted")

	// ErrUnknownChallenge is returned when a receipt references no issued
	// challenge.
	ErrUnknownChallenge = errors.New("pose: unknown challenge")

	// ErrReceiptReplay is returned when a receipt's replay key was already
	// recorded.
	ErrReceiptReplay = errors.New("pose: receipt replay")

	// ErrReceiptSignature is returned when a receipt signature does not
	// recover the probed node.
	ErrReceiptSignature = errors.New("pose: receipt signature invalid")

	// ErrLatencyWindow is returned when a receipt arrives outside the
	// configured latency window.
	ErrLatencyWindow = errors.New("pose: response outside latency window")

	// ErrClockSkew is returned when an auth envelope timestamp drifts
	// beyond the allowed skew.
	ErrClockSkew = errors.New("pose: clock skew too large")

	// ErrNonceReplay is returned when an auth envelope nonce was seen
	// before.
	ErrNonceReplay = errors.New("pose: nonce replay")

	// ErrNotAuthorized is returned when a challenger is neither
	// allowlisted nor approved by the authorizer.
	ErrNotAuthorized = errors.New("pose: challenger not authorized")
)

// =====================
// RPC Errors
// =====================

var (
	// ErrRateLimited is returned when a client exceeds its request budget.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUnauthorized is returned on bearer-token or JWT auth failure.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRequestTooLarge is returned when a request body exceeds the cap.
	ErrRequestTooLarge = errors.New("request body too large")

	// ErrRangeTooWide is returned when a log filter spans more blocks than
	// allowed.
	ErrRangeTooWide = errors.New("block range too wide")

	// ErrTooManyResults is returned when a query would exceed the result
	// cap.
	ErrTooManyResults = errors.New("query returned too many results")
)

// =====================
// Helper Functions
// =====================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return pkgerrors.WithMessage(err, message)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.WithMessagef(err, format, args...)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}

// Errorf formats according to a format specifier and returns the string as a value that satisfies error.
func Errorf(format string, a ...interface{}) error {
	return fmt.Errorf(format, a...)
}
