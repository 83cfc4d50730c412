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
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/chainofclaw/COC-sub002/common/crypto"
	"github.com/chainofclaw/COC-sub002/conf"
	"github.com/chainofclaw/COC-sub002/internal/pose/canonjson"
	"github.com/chainofclaw/COC-sub002/pkg/errors"
)

type authRig struct {
	auth   *InboundAuth
	clock  *ManualClock
	key    *btcec.PrivateKey
	sender string
}

func newAuthRig(t *testing.T, mode conf.AuthMode, allowlisted bool) *authRig {
	t.Helper()
	clock := NewManualClock(100)
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	sender := crypto.PubkeyToAddress(key.PubKey()).Hex()

	var allowlist []string
	if allowlisted {
		allowlist = []string{sender}
	}
	nonces, err := OpenReplayRegistry(filepath.Join(t.TempDir(), "auth.log"), 1000, 0, clock)
	if err != nil {
		t.Fatalf("registry open failed: %v", err)
	}
	t.Cleanup(func() { nonces.Close() })

	return &authRig{
		auth:   NewInboundAuth(mode, allowlist, nil, nonces, clock),
		clock:  clock,
		key:    key,
		sender: sender,
	}
}

// sealedBody builds a POST body with a valid _auth envelope.
func (r *authRig) sealedBody(t *testing.T, path string, payload map[string]interface{}, nonce string) []byte {
	t.Helper()
	stripped, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	canonical, err := canonjson.Canonicalize(stripped)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	payloadHash := crypto.Keccak256Hash(canonical)

	ts := r.clock.NowMs()
	msg := crypto.PoseHTTPMessage(path, r.sender, ts, nonce, payloadHash)
	sig, err := crypto.Sign(msg, r.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	full := map[string]interface{}{}
	for k, v := range payload {
		full[k] = v
	}
	full["_auth"] = &AuthEnvelope{
		SenderID:    r.sender,
		TimestampMs: ts,
		Nonce:       nonce,
		Signature:   "0x" + hex.EncodeToString(sig),
	}
	body, err := json.Marshal(full)
	if err != nil {
		t.Fatalf("marshal sealed body: %v", err)
	}
	return body
}

func TestAuthOffPassesThrough(t *testing.T) {
	rig := newAuthRig(t, conf.AuthModeOff, false)
	body := []byte(`{"nodeId":"0xabc"}`)
	payload, sender, err := rig.auth.Verify(context.Background(), "/pose/challenge", body)
	if err != nil {
		t.Fatalf("off mode should pass: %v", err)
	}
	if sender != "" {
		t.Errorf("sender = %q, want empty", sender)
	}
	if string(payload) != string(body) {
		t.Error("off mode should pass the body through unchanged")
	}
}

func TestEnforceAcceptsValidEnvelope(t *testing.T) {
	rig := newAuthRig(t, conf.AuthModeEnforce, true)
	body := rig.sealedBody(t, "/pose/challenge", map[string]interface{}{"nodeId": "0xabc"}, "n-1")

	payload, sender, err := rig.auth.Verify(context.Background(), "/pose/challenge", body)
	if err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}
	if sender != rig.sender {
		t.Errorf("sender = %s, want %s", sender, rig.sender)
	}
	if strings.Contains(string(payload), "_auth") {
		t.Error("stripped payload still carries _auth")
	}
	if !strings.Contains(string(payload), "nodeId") {
		t.Error("stripped payload lost its fields")
	}
}

func TestEnforceRejectsMissingEnvelope(t *testing.T) {
	rig := newAuthRig(t, conf.AuthModeEnforce, true)
	_, _, err := rig.auth.Verify(context.Background(), "/pose/challenge", []byte(`{"nodeId":"0xabc"}`))
	if !errors.Is(err, errors.ErrNotAuthorized) {
		t.Errorf("got %v, want ErrNotAuthorized", err)
	}
}

func TestEnforceRejectsClockSkew(t *testing.T) {
	rig := newAuthRig(t, conf.AuthModeEnforce, true)
	body := rig.sealedBody(t, "/pose/challenge", map[string]interface{}{"nodeId": "0xabc"}, "n-skew")
	rig.clock.SetNowMs(rig.clock.NowMs() + 300_000)

	_, _, err := rig.auth.Verify(context.Background(), "/pose/challenge", body)
	if !errors.Is(err, errors.ErrClockSkew) {
		t.Errorf("got %v, want ErrClockSkew", err)
	}
}

func TestEnforceRejectsNonceReplay(t *testing.T) {
	rig := newAuthRig(t, conf.AuthModeEnforce, true)
	body := rig.sealedBody(t, "/pose/challenge", map[string]interface{}{"nodeId": "0xabc"}, "n-replay")

	if _, _, err := rig.auth.Verify(context.Background(), "/pose/challenge", body); err != nil {
		t.Fatalf("first verify failed: %v", err)
	}
	_, _, err := rig.auth.Verify(context.Background(), "/pose/challenge", body)
	if !errors.Is(err, errors.ErrNonceReplay) {
		t.Errorf("got %v, want ErrNonceReplay", err)
	}
}

func TestEnforceRejectsWrongPath(t *testing.T) {
	rig := newAuthRig(t, conf.AuthModeEnforce, true)
	body := rig.sealedBody(t, "/pose/challenge", map[string]interface{}{"nodeId": "0xabc"}, "n-path")
	_, _, err := rig.auth.Verify(context.Background(), "/pose/receipt", body)
	if !errors.Is(err, errors.ErrNotAuthorized) {
		t.Errorf("got %v, want ErrNotAuthorized", err)
	}
}

func TestEnforceRejectsUnlistedChallenger(t *testing.T) {
	rig := newAuthRig(t, conf.AuthModeEnforce, false)
	body := rig.sealedBody(t, "/pose/challenge", map[string]interface{}{"nodeId": "0xabc"}, "n-unlisted")
	_, _, err := rig.auth.Verify(context.Background(), "/pose/challenge", body)
	if !errors.Is(err, errors.ErrNotAuthorized) {
		t.Errorf("got %v, want ErrNotAuthorized", err)
	}
}

func TestAsyncAuthorizerApproves(t *testing.T) {
	clock := NewManualClock(100)
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	sender := crypto.PubkeyToAddress(key.PubKey()).Hex()
	nonces, err := OpenReplayRegistry(filepath.Join(t.TempDir(), "auth.log"), 1000, 0, clock)
	if err != nil {
		t.Fatalf("registry open failed: %v", err)
	}
	defer nonces.Close()

	asked := ""
	auth := NewInboundAuth(conf.AuthModeEnforce, nil, func(_ context.Context, id string) (bool, error) {
		asked = id
		return true, nil
	}, nonces, clock)
	rig := &authRig{auth: auth, clock: clock, key: key, sender: sender}

	body := rig.sealedBody(t, "/pose/challenge", map[string]interface{}{"nodeId": "0xabc"}, "n-async")
	_, got, err := auth.Verify(context.Background(), "/pose/challenge", body)
	if err != nil {
		t.Fatalf("authorizer-approved request failed: %v", err)
	}
	if got != sender {
		t.Errorf("sender = %s, want %s", got, sender)
	}
	if asked != sender {
		t.Errorf("authorizer was asked about %s, want %s", asked, sender)
	}
}

func TestMonitorModeForwardsViolations(t *testing.T) {
	rig := newAuthRig(t, conf.AuthModeMonitor, true)
	payload, _, err := rig.auth.Verify(context.Background(), "/pose/challenge", []byte(`{"nodeId":"0xabc"}`))
	if err != nil {
		t.Fatalf("monitor mode should forward: %v", err)
	}
	if !strings.Contains(string(payload), "nodeId") {
		t.Error("monitor mode should forward the payload")
	}
}
