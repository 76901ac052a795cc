// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Substrate components.
//
// Configuration is loaded from a single file specified by:
//   - SUBSTRATE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. A missing config file is
// not an error: every field has a working default, and most installations
// never write a config file at all. When a file is given it is the single
// source of truth; environment variables do not override its values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for Substrate.
type Config struct {
	// World configures the isolation backend and routing defaults.
	World WorldConfig `yaml:"world"`
}

// WorldConfig configures world execution.
type WorldConfig struct {
	// Default controls whether commands route through the world when
	// neither the --world/--no-world flags nor SUBSTRATE_WORLD say
	// otherwise. Values: "enabled", "disabled".
	// Default: disabled
	Default string `yaml:"default"`

	// SocketPath is the Unix socket of an out-of-process world agent.
	// Empty means in-process execution on the host-native backend.
	// Overridden by SUBSTRATE_WORLD_SOCKET.
	SocketPath string `yaml:"socket_path"`

	// PolicyFile is the global policy document consulted when the
	// project has no .substrate-policy.yaml of its own.
	PolicyFile string `yaml:"policy_file"`

	// SystemBinds are host directories bind-mounted read-only into a
	// full cage so standard toolchains keep working. Entries that do
	// not exist on the host are skipped.
	SystemBinds []string `yaml:"system_binds"`

	// DepsDir is an optional directory bind-mounted read-write into a
	// full cage for package caches and build dependencies.
	DepsDir string `yaml:"deps_dir"`

	// OverlayRoot is where writable-workspace overlay upper/work
	// directories are created. Default: a per-user runtime directory.
	OverlayRoot string `yaml:"overlay_root"`
}

// DefaultSystemBinds covers merged-usr, split-usr, and Nix-style
// distributions. Absent paths are skipped at mount time.
var DefaultSystemBinds = []string{
	"/usr", "/bin", "/sbin", "/lib", "/lib32", "/lib64", "/etc", "/nix",
}

// Default returns the default configuration. Unlike most fields, the
// world default is deliberately "disabled": routing through the world
// must be an explicit choice by flag, environment, or config file.
func Default() *Config {
	return &Config{
		World: WorldConfig{
			Default:     "disabled",
			SystemBinds: append([]string(nil), DefaultSystemBinds...),
			OverlayRoot: defaultOverlayRoot(),
		},
	}
}

// Load loads configuration from the SUBSTRATE_CONFIG environment
// variable. If the variable is unset the defaults are returned; if it
// names a file that cannot be read or parsed, that is an error.
func Load() (*Config, error) {
	path := os.Getenv("SUBSTRATE_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	switch cfg.World.Default {
	case "enabled", "disabled":
	default:
		return nil, fmt.Errorf("config %s: world.default must be \"enabled\" or \"disabled\", got %q",
			path, cfg.World.Default)
	}
	return cfg, nil
}

// SocketPath resolves the world agent socket: SUBSTRATE_WORLD_SOCKET
// wins over the config file. Empty means no agent socket.
func (c *Config) SocketPath() string {
	if s := os.Getenv("SUBSTRATE_WORLD_SOCKET"); s != "" {
		return s
	}
	return c.World.SocketPath
}

// defaultOverlayRoot picks a per-user writable directory for overlay
// state: XDG_RUNTIME_DIR when set, /run/user/$uid when it exists, and
// a uid-scoped /tmp directory otherwise.
func defaultOverlayRoot() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "substrate", "overlays")
	}
	uid := os.Getuid()
	runUser := fmt.Sprintf("/run/user/%d", uid)
	if info, err := os.Stat(runUser); err == nil && info.IsDir() {
		return filepath.Join(runUser, "substrate", "overlays")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("substrate-%d-overlays", uid))
}
