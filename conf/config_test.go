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

package conf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	cfg := Default()
	cfg.ChainCfg.Validators = []string{"0x1111111111111111111111111111111111111111"}
	return cfg
}

// validationIssues unwraps the typed issue list or fails the test.
func validationIssues(t *testing.T, err error) []Issue {
	t.Helper()
	if err == nil {
		t.Fatal("expected a validation error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	return verr.Issues
}

func TestDefaultWithValidatorsValidates(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("default config with validators should validate: %v", err)
	}
}

func TestValidateReportsEveryIssueAtOnce(t *testing.T) {
	cfg := validConfig()
	cfg.NodeCfg.ChainID = 0
	cfg.ChainCfg.Validators = nil
	cfg.ChainCfg.BlockTimeMs = 10
	cfg.StorageCfg.Backend = "rocksdb"

	issues := validationIssues(t, cfg.Validate())
	if len(issues) != 4 {
		t.Fatalf("got %d issues, want 4: %v", len(issues), issues)
	}

	fields := map[string]bool{}
	for _, issue := range issues {
		fields[issue.Field] = true
	}
	for _, f := range []string{"node.chain_id", "chain.validators", "chain.block_time_ms", "storage.backend"} {
		if !fields[f] {
			t.Errorf("missing issue for %s", f)
		}
	}
}

func TestValidateEnumMembership(t *testing.T) {
	cfg := validConfig()
	cfg.ChainCfg.SignatureEnforcement = "loose"
	cfg.P2PCfg.InboundAuthMode = "maybe"
	cfg.PoseCfg.InboundAuthMode = "sometimes"

	issues := validationIssues(t, cfg.Validate())
	if len(issues) != 3 {
		t.Errorf("got %d issues, want 3: %v", len(issues), issues)
	}
}

func TestValidatePortRanges(t *testing.T) {
	cfg := validConfig()
	cfg.RPCCfg.RPCPort = 0
	issues := validationIssues(t, cfg.Validate())
	if issues[0].Field != "rpc.rpc_port" {
		t.Errorf("first issue field = %s, want rpc.rpc_port", issues[0].Field)
	}
}

func TestValidatePruningRetention(t *testing.T) {
	cfg := validConfig()
	cfg.StorageCfg.EnablePruning = true
	cfg.StorageCfg.NonceRetentionDays = 0
	if cfg.Validate() == nil {
		t.Error("zero retention with pruning on should not validate")
	}

	cfg.StorageCfg.NonceRetentionDays = 3
	if err := cfg.Validate(); err != nil {
		t.Errorf("retention 3 should validate: %v", err)
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coc.yaml")
	if err := os.WriteFile(path, []byte(`
node:
  chain_id: 777
chain:
  validators:
    - "0x2222222222222222222222222222222222222222"
  block_time_ms: 500
`), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.NodeCfg.ChainID != 777 {
		t.Errorf("chain id = %d, want 777", cfg.NodeCfg.ChainID)
	}
	if cfg.ChainCfg.BlockTimeMs != 500 {
		t.Errorf("block time = %d, want 500", cfg.ChainCfg.BlockTimeMs)
	}
	if len(cfg.ChainCfg.Validators) != 1 {
		t.Errorf("validators = %v, want one entry", cfg.ChainCfg.Validators)
	}
	// Untouched sections keep their defaults.
	if cfg.RPCCfg.RPCPort != 8545 {
		t.Errorf("rpc port = %d, want default 8545", cfg.RPCCfg.RPCPort)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("merged config should validate: %v", err)
	}
}
