// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy defines the world_fs policy document: what a command
// may touch on the filesystem and whether it must run inside a world.
//
// Policies are strict. Unknown keys, type mismatches, and missing
// required sub-fields are hard load errors, never warnings, and
// invariant violations are never coerced into a valid policy. A policy
// that cannot be loaded exactly as written does not exist.
package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// WorkspaceFile is the per-project policy document, looked up at the
// project root. When present it wins over any global policy file.
const WorkspaceFile = ".substrate-policy.yaml"

// Mode controls write access to the project tree.
type Mode string

const (
	// ModeWritable allows writes within the project view.
	ModeWritable Mode = "writable"
	// ModeReadOnly denies all writes to the project except
	// write_allowlist entries. Requires world execution.
	ModeReadOnly Mode = "read_only"
)

// Isolation selects how much of the host filesystem a world hides.
type Isolation string

const (
	// IsolationProject isolates the project tree only: a private
	// mount namespace remaps the project path, the rest of the host
	// view is unchanged. Accepted spelling in documents: "project"
	// or the legacy alias "workspace".
	IsolationProject Isolation = "project"
	// IsolationFull builds a minimal root and pivots into it; the
	// host filesystem is not reachable at all. Requires world
	// execution.
	IsolationFull Isolation = "full"
)

// WorldFS is the filesystem section of a policy.
type WorldFS struct {
	// Mode is required when the world_fs block is present.
	Mode Mode
	// Isolation is required when the world_fs block is present.
	Isolation Isolation
	// RequireWorld forces world execution regardless of routing
	// flags. Implied true is never assumed: read_only and full both
	// demand it be written explicitly.
	RequireWorld bool
	// ReadAllowlist lists paths readable beyond the default view.
	// Consumed by the Landlock rule set inside a full cage.
	ReadAllowlist []string
	// WriteAllowlist lists project-relative paths that stay writable
	// when the project is otherwise read-only. Entries outside the
	// project root are rejected at load time.
	WriteAllowlist []string
}

// Policy is an immutable, validated policy document. Fields outside
// world_fs are carried for the broker and are opaque to this module.
type Policy struct {
	ID          string
	Name        string
	WorldFS     WorldFS
	NetAllowed  []string
	CmdAllowed  []string
	CmdDenied   []string
	CmdIsolated []string
	Limits      map[string]string
	Metadata    map[string]string

	// hasWorldFS records whether the document carried a world_fs
	// block; Default() policies do not.
	hasWorldFS bool
}

// rawPolicy is the strict YAML shape. Enum fields decode as strings so
// validation can name the offending value.
type rawPolicy struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	WorldFS     *rawWorldFS       `yaml:"world_fs"`
	NetAllowed  []string          `yaml:"net_allowed"`
	CmdAllowed  []string          `yaml:"cmd_allowed"`
	CmdDenied   []string          `yaml:"cmd_denied"`
	CmdIsolated []string          `yaml:"cmd_isolated"`
	Limits      map[string]string `yaml:"limits"`
	Metadata    map[string]string `yaml:"metadata"`
}

type rawWorldFS struct {
	Mode           *string  `yaml:"mode"`
	Isolation      *string  `yaml:"isolation"`
	RequireWorld   *bool    `yaml:"require_world"`
	ReadAllowlist  []string `yaml:"read_allowlist"`
	WriteAllowlist []string `yaml:"write_allowlist"`
}

// Default returns the permissive policy used when no policy document
// exists: writable project isolation, world never required.
func Default() *Policy {
	return &Policy{
		Name: "default",
		WorldFS: WorldFS{
			Mode:      ModeWritable,
			Isolation: IsolationProject,
		},
	}
}

// Parse decodes and validates a policy document. It is a pure
// function of its input: no file access, no environment, no defaults
// filled in for required fields.
func Parse(data []byte) (*Policy, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var raw rawPolicy
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing policy: %w", err)
	}

	p := &Policy{
		ID:          raw.ID,
		Name:        raw.Name,
		NetAllowed:  raw.NetAllowed,
		CmdAllowed:  raw.CmdAllowed,
		CmdDenied:   raw.CmdDenied,
		CmdIsolated: raw.CmdIsolated,
		Limits:      raw.Limits,
		Metadata:    raw.Metadata,
	}

	if raw.WorldFS == nil {
		p.WorldFS = Default().WorldFS
		return p, nil
	}
	p.hasWorldFS = true

	fs, err := validateWorldFS(raw.WorldFS)
	if err != nil {
		return nil, err
	}
	p.WorldFS = *fs
	return p, nil
}

func validateWorldFS(raw *rawWorldFS) (*WorldFS, error) {
	if raw.Mode == nil {
		return nil, errors.New("world_fs.mode is required when world_fs is present")
	}
	if raw.Isolation == nil {
		return nil, errors.New("world_fs.isolation is required when world_fs is present")
	}

	out := &WorldFS{
		ReadAllowlist:  raw.ReadAllowlist,
		WriteAllowlist: raw.WriteAllowlist,
	}

	switch Mode(*raw.Mode) {
	case ModeWritable, ModeReadOnly:
		out.Mode = Mode(*raw.Mode)
	default:
		return nil, fmt.Errorf("world_fs.mode: unknown value %q (expected writable or read_only)", *raw.Mode)
	}

	switch *raw.Isolation {
	case string(IsolationProject), "workspace":
		out.Isolation = IsolationProject
	case string(IsolationFull):
		out.Isolation = IsolationFull
	default:
		return nil, fmt.Errorf("world_fs.isolation: unknown value %q (expected project or full)", *raw.Isolation)
	}

	if raw.RequireWorld != nil {
		out.RequireWorld = *raw.RequireWorld
	}

	// Hard invariants. A policy that asks for enforcement but allows
	// host execution is a lie; reject it rather than repair it.
	if out.Mode == ModeReadOnly && !out.RequireWorld {
		return nil, errors.New("world_fs.mode=read_only requires world_fs.require_world=true")
	}
	if out.Isolation == IsolationFull && !out.RequireWorld {
		return nil, errors.New("world_fs.isolation=full requires world_fs.require_world=true")
	}

	return out, nil
}

// Load reads and parses a policy file.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

// LoadEffective resolves the policy governing projectRoot: the
// project's own .substrate-policy.yaml when present, the global file
// otherwise, the permissive default when neither exists. The returned
// policy's write allowlist has been validated against projectRoot.
func LoadEffective(projectRoot, globalPath string) (*Policy, error) {
	p, err := loadFirst(filepath.Join(projectRoot, WorkspaceFile), globalPath)
	if err != nil {
		return nil, err
	}
	if err := p.ValidateAllowlists(projectRoot); err != nil {
		return nil, err
	}
	return p, nil
}

func loadFirst(paths ...string) (*Policy, error) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		p, err := Load(path)
		if err == nil {
			return p, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return nil, err
	}
	return Default(), nil
}

// ValidateAllowlists rejects write_allowlist entries that resolve
// outside the project root. Entries may be project-relative or
// absolute; either way the cleaned result must stay under projectRoot.
func (p *Policy) ValidateAllowlists(projectRoot string) error {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}
	for _, entry := range p.WorldFS.WriteAllowlist {
		resolved := entry
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(root, resolved)
		}
		resolved = filepath.Clean(resolved)
		if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return fmt.Errorf("world_fs.write_allowlist: entry %q resolves outside the project root %s", entry, root)
		}
	}
	return nil
}

// ResolveWriteAllowlist returns the allowlist as absolute paths under
// projectRoot, in document order. Callers must have validated first.
func (p *Policy) ResolveWriteAllowlist(projectRoot string) []string {
	out := make([]string, 0, len(p.WorldFS.WriteAllowlist))
	for _, entry := range p.WorldFS.WriteAllowlist {
		if filepath.IsAbs(entry) {
			out = append(out, filepath.Clean(entry))
			continue
		}
		out = append(out, filepath.Join(projectRoot, entry))
	}
	return out
}

// RequiresWorld reports whether this policy demands world execution
// independent of routing preference: an explicit require_world, a
// read-only mode, or full isolation.
func (p *Policy) RequiresWorld() bool {
	return p.WorldFS.RequireWorld ||
		p.WorldFS.Mode == ModeReadOnly ||
		p.WorldFS.Isolation == IsolationFull
}

// MatchesIsolated reports whether argv0 matches a cmd_isolated
// pattern. Patterns are shell globs matched against both the full
// argv0 and its basename, so "git" and "/usr/bin/git*" both work.
func (p *Policy) MatchesIsolated(argv0 string) bool {
	base := filepath.Base(argv0)
	for _, pattern := range p.CmdIsolated {
		if ok, _ := path.Match(pattern, argv0); ok {
			return true
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// HasWorldFS reports whether the source document carried an explicit
// world_fs block.
func (p *Policy) HasWorldFS() bool { return p.hasWorldFS }
