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

package pose

import (
	"context"
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/common/types"
	"github.com/chainofclaw/COC-sub002/conf"
	"github.com/chainofclaw/COC-sub002/internal/pose/canonjson"
	"github.com/chainofclaw/COC-sub002/log"
	"github.com/chainofclaw/COC-sub002/params"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

var authViolations = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "coc_pose_auth_violations_total",
	Help: "PoSe HTTP envelope auth violations (rejected or monitored).",
})

func init() {
	prometheus.DefaultRegisterer.MustRegister(authViolations)
}

// AuthEnvelope is the _auth block carried by authenticated PoSe POSTs.
type AuthEnvelope struct {
	SenderID    string `json:"senderId"`
	TimestampMs uint64 `json:"timestampMs"`
	Nonce       string `json:"nonce"`
	Signature   string `json:"signature"`
}

// ChallengerAuthorizer asynchronously approves challengers that are not on
// the static allowlist.
type ChallengerAuthorizer func(ctx context.Context, senderID string) (bool, error)

// InboundAuth verifies _auth envelopes on PoSe POST bodies.
type InboundAuth struct {
	mode       conf.AuthMode
	allowlist  map[string]struct{}
	authorizer ChallengerAuthorizer
	nonces     *ReplayRegistry
	clock      EpochClock
	logger     log.Logger
}

// NewInboundAuth builds the envelope verifier. nonces tracks envelope
// replay; authorizer may be nil.
func NewInboundAuth(mode conf.AuthMode, allowlist []string, authorizer ChallengerAuthorizer, nonces *ReplayRegistry, clock EpochClock) *InboundAuth {
	set := make(map[string]struct{}, len(allowlist))
	for _, id := range allowlist {
		set[id] = struct{}{}
	}
	if clock == nil {
		clock = WallClock{}
	}
	return &InboundAuth{
		mode:       mode,
		allowlist:  set,
		authorizer: authorizer,
		nonces:     nonces,
		clock:      clock,
		logger:     log.New("module", "pose-auth"),
	}
}

// Mode returns the enforcement mode.
func (a *InboundAuth) Mode() conf.AuthMode { return a.mode }

// Verify strips the _auth envelope from body, reconstructs the canonical
// pose:http message over the remaining payload and checks the signature,
// clock skew, nonce freshness and challenger authorization. It returns
// the stripped payload and the sender id.
//
// In monitor mode a violation is logged and counted but the request
// proceeds; enforce mode returns the error (mapped to 401/403 upstream).
func (a *InboundAuth) Verify(ctx context.Context, path string, body []byte) (payload []byte, senderID string, err error) {
	if a.mode == conf.AuthModeOff {
		return body, "", nil
	}

	var envelope struct {
		Auth *AuthEnvelope `json:"_auth"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body, "", a.violation(errors.Wrap(err, "unparseable body"))
	}
	if envelope.Auth == nil {
		return body, "", a.violation(errors.Wrap(errors.ErrNotAuthorized, "missing _auth envelope"))
	}
	auth := envelope.Auth

	// Strip _auth, canonicalize the rest and hash it.
	var tree map[string]json.RawMessage
	if err := json.Unmarshal(body, &tree); err != nil {
		return body, "", a.violation(err)
	}
	delete(tree, "_auth")
	stripped, err := json.Marshal(tree)
	if err != nil {
		return body, "", a.violation(err)
	}
	canonical, err := canonjson.Canonicalize(stripped)
	if err != nil {
		return body, "", a.violation(err)
	}
	payloadHash := crypto.Keccak256Hash(canonical)

	// Clock skew.
	now := a.clock.NowMs()
	skew := uint64(0)
	if now > auth.TimestampMs {
		skew = now - auth.TimestampMs
	} else {
		skew = auth.TimestampMs - now
	}
	if skew > params.PoseMaxClockSkewMs {
		return stripped, auth.SenderID, a.violation(errors.ErrClockSkew)
	}

	// Signature over the canonical pose:http message.
	msg := crypto.PoseHTTPMessage(path, auth.SenderID, auth.TimestampMs, auth.Nonce, payloadHash)
	if !types.IsHexAddress(auth.SenderID) {
		return stripped, auth.SenderID, a.violation(errors.Wrap(errors.ErrNotAuthorized, "senderId is not an address"))
	}
	if !crypto.VerifyNodeSig(msg, types.FromHex(auth.Signature), types.HexToAddress(auth.SenderID)) {
		return stripped, auth.SenderID, a.violation(errors.Wrap(errors.ErrNotAuthorized, "envelope signature invalid"))
	}

	// Nonce replay.
	nonceKey := crypto.Keccak256Hash([]byte("pose-http-nonce"), []byte(auth.SenderID), []byte(auth.Nonce))
	fresh, err := a.nonces.Record(nonceKey)
	if err != nil {
		return stripped, auth.SenderID, err
	}
	if !fresh {
		return stripped, auth.SenderID, a.violation(errors.ErrNonceReplay)
	}

	// Challenger identity: allowlisted or approved asynchronously.
	if _, ok := a.allowlist[auth.SenderID]; !ok {
		if a.authorizer == nil {
			return stripped, auth.SenderID, a.violation(errors.ErrNotAuthorized)
		}
		allowed, err := a.authorizer(ctx, auth.SenderID)
		if err != nil {
			return stripped, auth.SenderID, err
		}
		if !allowed {
			return stripped, auth.SenderID, a.violation(errors.ErrNotAuthorized)
		}
	}

	return stripped, auth.SenderID, nil
}

// violation records the failure; monitor mode swallows it.
func (a *InboundAuth) violation(err error) error {
	authViolations.Inc()
	if a.mode == conf.AuthModeMonitor {
		a.logger.Warn("PoSe auth violation (monitor mode, request forwarded)", "err", err)
		return nil
	}
	return err
}
