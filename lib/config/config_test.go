// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "substrate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsDisabled(t *testing.T) {
	cfg := Default()
	if cfg.World.Default != "disabled" {
		t.Errorf("world.default = %q, want disabled", cfg.World.Default)
	}
	if len(cfg.World.SystemBinds) == 0 {
		t.Error("default system binds are empty")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
world:
  default: enabled
  socket_path: /run/substrate/agent.sock
  system_binds: [/usr, /etc]
  deps_dir: /var/cache/substrate/deps
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.World.Default != "enabled" {
		t.Errorf("world.default = %q, want enabled", cfg.World.Default)
	}
	if got, want := cfg.World.SocketPath, "/run/substrate/agent.sock"; got != want {
		t.Errorf("socket_path = %q, want %q", got, want)
	}
	if len(cfg.World.SystemBinds) != 2 {
		t.Errorf("system_binds = %v, want the two listed entries", cfg.World.SystemBinds)
	}
}

func TestLoadFileRejectsBadDefault(t *testing.T) {
	path := writeConfig(t, "world:\n  default: sometimes\n")
	_, err := LoadFile(path)
	if err == nil || !strings.Contains(err.Error(), "world.default") {
		t.Fatalf("expected world.default error, got: %v", err)
	}
}

func TestSocketPathEnvOverride(t *testing.T) {
	t.Setenv("SUBSTRATE_WORLD_SOCKET", "/tmp/override.sock")
	cfg := Default()
	cfg.World.SocketPath = "/from/config.sock"
	if got := cfg.SocketPath(); got != "/tmp/override.sock" {
		t.Errorf("SocketPath() = %q, want env override", got)
	}
}

func TestLoadWithoutEnvUsesDefaults(t *testing.T) {
	t.Setenv("SUBSTRATE_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.World.Default != "disabled" {
		t.Errorf("world.default = %q, want disabled", cfg.World.Default)
	}
}
