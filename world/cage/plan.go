// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package cage

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Action is one kind of mount-plan step.
type Action string

const (
	// ActionMkdir creates the target directory (and parents).
	ActionMkdir Action = "mkdir"
	// ActionMount performs a mount(2) with the step's fields.
	ActionMount Action = "mount"
	// ActionRemountRO remounts an existing bind read-only. Separate
	// from ActionMount because bind flags cannot be combined with
	// MS_RDONLY in one call; the kernel requires the two-step dance.
	ActionRemountRO Action = "remount-ro"
	// ActionPivotRoot pivots into Target, parking the old root at
	// Target/old_root.
	ActionPivotRoot Action = "pivot-root"
	// ActionUmountDetach lazily detaches Target.
	ActionUmountDetach Action = "umount-detach"
)

// Step is one entry in a mount plan. Plans are pure data so ordering
// rules can be tested without privileges.
type Step struct {
	Action Action
	Source string
	Target string
	FSType string
	Flags  uintptr
	Data   string
	// Optional steps are skipped, not failed, when the source path
	// does not exist on the host.
	Optional bool
}

func (s Step) String() string {
	switch s.Action {
	case ActionMount:
		return fmt.Sprintf("mount %s %s -> %s", s.FSType, s.Source, s.Target)
	case ActionRemountRO:
		return fmt.Sprintf("remount-ro %s", s.Target)
	default:
		return fmt.Sprintf("%s %s", s.Action, s.Target)
	}
}

// privatize is the first step of every plan: no mount performed in
// the cage may propagate back to the host.
func privatize() Step {
	return Step{Action: ActionMount, Target: "/", Flags: unix.MS_REC | unix.MS_PRIVATE}
}

func bind(source, target string, optional bool) Step {
	return Step{
		Action:   ActionMount,
		Source:   source,
		Target:   target,
		Flags:    unix.MS_BIND | unix.MS_REC,
		Optional: optional,
	}
}

func remountRO(target string) Step {
	return Step{
		Action: ActionRemountRO,
		Target: target,
		Flags:  unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY,
	}
}

// WorkspacePlan builds the mount sequence for workspace isolation:
// the project path is remapped, nothing else changes.
func WorkspacePlan(spec *Spec) ([]Step, error) {
	if spec.ProjectDir == "" || !filepath.IsAbs(spec.ProjectDir) {
		return nil, fmt.Errorf("workspace plan: project dir %q is not absolute", spec.ProjectDir)
	}

	steps := []Step{privatize()}

	if spec.ReadOnlyProject {
		steps = append(steps,
			bind(spec.ProjectDir, spec.ProjectDir, false),
			remountRO(spec.ProjectDir),
		)
		// Allowlisted subtrees are re-bound writable on top of the
		// read-only project view.
		for _, path := range spec.WriteAllowlist {
			steps = append(steps, bind(path, path, false))
		}
		return steps, nil
	}

	if spec.OverlayUpper == "" || spec.OverlayWork == "" {
		return nil, fmt.Errorf("workspace plan: writable isolation needs overlay upper and work dirs")
	}
	steps = append(steps, Step{
		Action: ActionMount,
		Source: "overlay",
		Target: spec.ProjectDir,
		FSType: "overlay",
		Data: fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s",
			spec.ProjectDir, spec.OverlayUpper, spec.OverlayWork),
	})
	return steps, nil
}

// FullPlan builds the mount sequence for a full cage. The order is
// load-bearing:
//
//  1. tmpfs on the cage root, then the cage /tmp ahead of the
//     project bind, so a project that itself lives under /tmp is
//     bound into the cage after /tmp is shadowed and stays reachable.
//  2. read-only system binds, fresh /proc, read-only /dev.
//  3. the project at its literal host path, then allowlist and deps
//     binds on top.
//  4. pivot_root and detach of the old root, last.
func FullPlan(spec *Spec) ([]Step, error) {
	if spec.CageRoot == "" || !filepath.IsAbs(spec.CageRoot) {
		return nil, fmt.Errorf("full plan: cage root %q is not absolute", spec.CageRoot)
	}
	if spec.ProjectDir == "" || !filepath.IsAbs(spec.ProjectDir) {
		return nil, fmt.Errorf("full plan: project dir %q is not absolute", spec.ProjectDir)
	}
	root := spec.CageRoot
	inCage := func(hostPath string) string { return filepath.Join(root, hostPath) }

	steps := []Step{
		privatize(),
		{Action: ActionMount, Source: "tmpfs", Target: root, FSType: "tmpfs", Data: "mode=0755"},
		{Action: ActionMkdir, Target: inCage("/tmp")},
		{Action: ActionMount, Source: "tmpfs", Target: inCage("/tmp"), FSType: "tmpfs", Data: "mode=1777"},
	}

	for _, dir := range spec.SystemBinds {
		if !filepath.IsAbs(dir) {
			return nil, fmt.Errorf("full plan: system bind %q is not absolute", dir)
		}
		steps = append(steps,
			Step{Action: ActionMkdir, Target: inCage(dir), Optional: true, Source: dir},
			bind(dir, inCage(dir), true),
			Step{Action: ActionRemountRO, Target: inCage(dir), Flags: unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY, Optional: true, Source: dir},
		)
	}

	steps = append(steps,
		Step{Action: ActionMkdir, Target: inCage("/proc")},
		Step{Action: ActionMount, Source: "proc", Target: inCage("/proc"), FSType: "proc"},
		Step{Action: ActionMkdir, Target: inCage("/dev")},
		bind("/dev", inCage("/dev"), false),
		remountRO(inCage("/dev")),
	)

	// The project is bound read-only in every full cage, whatever the
	// policy's mode: a read-write bind here would hand the caged
	// command the real host project. Writes go through the allowlist
	// binds alone.
	steps = append(steps,
		Step{Action: ActionMkdir, Target: inCage(spec.ProjectDir)},
		bind(spec.ProjectDir, inCage(spec.ProjectDir), false),
		remountRO(inCage(spec.ProjectDir)),
	)
	for _, path := range spec.WriteAllowlist {
		steps = append(steps,
			Step{Action: ActionMkdir, Target: inCage(path)},
			bind(path, inCage(path), false),
		)
	}
	if spec.DepsDir != "" {
		steps = append(steps,
			Step{Action: ActionMkdir, Target: inCage(spec.DepsDir)},
			bind(spec.DepsDir, inCage(spec.DepsDir), false),
		)
	}

	steps = append(steps,
		Step{Action: ActionMkdir, Target: filepath.Join(root, "old_root")},
		Step{Action: ActionPivotRoot, Target: root},
		Step{Action: ActionUmountDetach, Target: "/old_root"},
	)
	return steps, nil
}

// Plan dispatches on the spec's level.
func Plan(spec *Spec) ([]Step, error) {
	switch spec.Level {
	case LevelWorkspace:
		return WorkspacePlan(spec)
	case LevelFull:
		return FullPlan(spec)
	default:
		return nil, fmt.Errorf("unknown isolation level %q", spec.Level)
	}
}
