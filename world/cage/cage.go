// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package cage builds and enters filesystem isolation for world
// execution on Linux.
//
// Two levels exist. Workspace isolation remaps only the project tree
// inside a private mount namespace: a writable project gets an
// overlay mounted onto its literal host path, a read-only project
// gets bind-remounted read-only onto itself. Full isolation builds a
// minimal root from read-only system binds plus the project and
// pivots into it, so nothing outside the cage is reachable at all.
//
// Construction is all-or-nothing. Mount steps run through an arena
// that unwinds everything already mounted, in reverse order, the
// moment any step fails; a partially built cage is never handed to a
// command. Isolation that cannot be built fails closed.
//
// The cage is entered by re-executing /proc/self/exe in fresh mount
// (and, unprivileged, user) namespaces. The child receives its Spec
// through an environment variable, performs the mount sequence, and
// execs the target command.
package cage

// Level is the isolation level a cage enforces.
type Level string

const (
	// LevelWorkspace isolates the project tree only.
	LevelWorkspace Level = "workspace"
	// LevelFull pivots into a minimal root.
	LevelFull Level = "full"
)

// Spec describes one cage. It is built per execution, serialized to
// the namespace child as JSON, and discarded when the command exits.
type Spec struct {
	// Level selects workspace or full isolation.
	Level Level `json:"level"`

	// ProjectDir is the absolute host path of the project root. The
	// project appears at this same path inside the cage, so absolute
	// and relative accesses converge on one view.
	ProjectDir string `json:"project_dir"`

	// ReadOnlyProject denies writes to the project except through
	// WriteAllowlist entries.
	ReadOnlyProject bool `json:"read_only_project"`

	// OverlayUpper and OverlayWork back a writable workspace overlay.
	// Both must be pre-created by the parent on the same filesystem,
	// outside the project tree. Empty for read-only projects and for
	// full cages.
	OverlayUpper string `json:"overlay_upper,omitempty"`
	OverlayWork  string `json:"overlay_work,omitempty"`

	// CageRoot is the staging directory that becomes the new root of
	// a full cage. Pre-created by the parent. Empty for workspace
	// isolation.
	CageRoot string `json:"cage_root,omitempty"`

	// SystemBinds are host directories bound read-only into a full
	// cage. Entries missing on the host are skipped.
	SystemBinds []string `json:"system_binds,omitempty"`

	// WriteAllowlist entries (absolute, already validated to sit
	// under ProjectDir) stay writable inside the cage.
	WriteAllowlist []string `json:"write_allowlist,omitempty"`

	// DepsDir is an optional read-write bind for package caches.
	DepsDir string `json:"deps_dir,omitempty"`

	// LandlockReads and LandlockWrites feed the additive Landlock
	// rule set applied after the pivot. Only used by full cages.
	LandlockReads  []string `json:"landlock_reads,omitempty"`
	LandlockWrites []string `json:"landlock_writes,omitempty"`

	// Cwd is the working directory for the target command.
	Cwd string `json:"cwd"`

	// Argv is the target command. Argv[0] is resolved against PATH
	// inside the cage.
	Argv []string `json:"argv"`

	// Env is the complete environment for the target command.
	Env []string `json:"env"`
}
