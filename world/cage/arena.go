// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package cage

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mounter abstracts the mount syscalls so arena ordering and unwind
// behavior are testable without privileges.
type mounter interface {
	Mount(source, target, fstype string, flags uintptr, data string) error
	Unmount(target string, flags int) error
	PivotRoot(newRoot, putOld string) error
	MkdirAll(path string) error
	Exists(path string) bool
	Chdir(path string) error
}

// sysMounter is the real thing.
type sysMounter struct{}

func (sysMounter) Mount(source, target, fstype string, flags uintptr, data string) error {
	return unix.Mount(source, target, fstype, flags, data)
}

func (sysMounter) Unmount(target string, flags int) error {
	return unix.Unmount(target, flags)
}

func (sysMounter) PivotRoot(newRoot, putOld string) error {
	return unix.PivotRoot(newRoot, putOld)
}

func (sysMounter) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (sysMounter) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func (sysMounter) Chdir(path string) error {
	return os.Chdir(path)
}

// arena executes a mount plan and guarantees that a failure anywhere
// detaches every mount already made, in reverse order, before the
// error is returned. A command never sees a half-built cage.
type arena struct {
	sys     mounter
	mounted []string
}

func newArena(sys mounter) *arena {
	if sys == nil {
		sys = sysMounter{}
	}
	return &arena{sys: sys}
}

// Execute runs the plan. After a successful pivot step there is
// nothing left to unwind: the old root is gone and the cage is the
// process's world.
func (a *arena) Execute(steps []Step) error {
	for _, step := range steps {
		if step.Optional && step.Source != "" && !a.sys.Exists(step.Source) {
			continue
		}
		if err := a.execute(step); err != nil {
			a.unwind()
			return fmt.Errorf("cage construction: %s: %w", step, err)
		}
	}
	return nil
}

func (a *arena) execute(step Step) error {
	switch step.Action {
	case ActionMkdir:
		return a.sys.MkdirAll(step.Target)
	case ActionMount:
		if err := a.sys.Mount(step.Source, step.Target, step.FSType, step.Flags, step.Data); err != nil {
			return err
		}
		// Privatizing "/" changes propagation on existing mounts;
		// there is nothing to unwind for it.
		if step.Flags&unix.MS_PRIVATE == 0 {
			a.mounted = append(a.mounted, step.Target)
		}
		return nil
	case ActionRemountRO:
		return a.sys.Mount("", step.Target, "", step.Flags, "")
	case ActionPivotRoot:
		// The working directory must not pin the old tree across the
		// pivot.
		if err := a.sys.Chdir(step.Target); err != nil {
			return err
		}
		if err := a.sys.PivotRoot(step.Target, step.Target+"/old_root"); err != nil {
			return err
		}
		if err := a.sys.Chdir("/"); err != nil {
			return err
		}
		// Point of no return: host paths no longer resolve.
		a.mounted = nil
		return nil
	case ActionUmountDetach:
		return a.sys.Unmount(step.Target, unix.MNT_DETACH)
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

// unwind detaches recorded mounts newest-first. Detach failures are
// ignored: the namespace is about to die with the process anyway,
// unwinding is for the error path before exec.
func (a *arena) unwind() {
	for i := len(a.mounted) - 1; i >= 0; i-- {
		_ = a.sys.Unmount(a.mounted[i], unix.MNT_DETACH)
	}
	a.mounted = nil
}
