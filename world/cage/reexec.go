// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package cage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ChildArg is the hidden first argument that turns the substrate
// binary into the namespace child. Dispatched in main before any CLI
// parsing.
const ChildArg = "__substrate-cage-child"

// ProbeArg is the hidden argument for capability probe children.
const ProbeArg = "__substrate-cage-probe"

// specEnv carries the JSON-encoded Spec from parent to child.
const specEnv = "SUBSTRATE_CAGE_SPEC"

// Command prepares the namespace child for spec. The caller wires
// stdio, starts, and waits; cleanup must run after the child exits
// and removes the session directories backing the cage.
//
// The child is created in a fresh mount namespace. Without euid 0 a
// user namespace is stacked underneath with the current user mapped
// to root, which is what grants mount(2) inside.
func Command(spec *Spec, sessionRoot string) (*exec.Cmd, func(), error) {
	sess, err := newSession(sessionRoot)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = sess.Close() }

	prepared := *spec
	switch spec.Level {
	case LevelWorkspace:
		if !spec.ReadOnlyProject {
			if err := validateOverlayPath(spec.ProjectDir); err != nil {
				cleanup()
				return nil, nil, err
			}
			upper, work, err := sess.OverlayDirs()
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			prepared.OverlayUpper, prepared.OverlayWork = upper, work
		}
	case LevelFull:
		root, err := sess.CageRoot()
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		prepared.CageRoot = root
	default:
		cleanup()
		return nil, nil, fmt.Errorf("unknown isolation level %q", spec.Level)
	}

	encoded, err := json.Marshal(&prepared)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("encoding cage spec: %w", err)
	}

	cmd := exec.Command("/proc/self/exe", ChildArg)
	cmd.Env = append(append([]string{}, prepared.Env...), specEnv+"="+string(encoded))
	cmd.SysProcAttr = namespaceAttr()
	return cmd, cleanup, nil
}

// namespaceAttr builds the clone flags and, for unprivileged callers,
// the uid/gid mappings for the child's user namespace.
func namespaceAttr() *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS,
	}
	if os.Geteuid() != 0 {
		attr.Cloneflags |= syscall.CLONE_NEWUSER
		attr.UidMappings = []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getuid(), Size: 1},
		}
		attr.GidMappings = []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getgid(), Size: 1},
		}
		attr.GidMappingsEnableSetgroups = false
	}
	return attr
}

// Available reports whether a cage of the given level can be built
// right now, by running a throwaway probe child that performs the
// namespace and mount operations against scratch directories. The
// probe is bounded by timeout; a hung probe means unavailable.
func Available(level Level, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// The scratch directory is created and removed here: the probe
	// child pivots away or dies and can never clean up after itself.
	scratch, err := os.MkdirTemp("", "substrate-probe-*")
	if err != nil {
		return fmt.Errorf("%s isolation probe: %w", level, err)
	}
	defer os.RemoveAll(scratch)

	cmd := exec.CommandContext(ctx, "/proc/self/exe", ProbeArg, string(level), scratch)
	cmd.Env = []string{"PATH=/usr/bin:/bin"}
	cmd.SysProcAttr = namespaceAttr()
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("%s isolation probe: %s", level, detail)
	}
	return nil
}

// ProbeMain is the probe child's entry point: build the minimal
// version of the requested isolation against the scratch directory
// the parent created, report by exit code. It runs inside the
// namespaces set up by Available.
func ProbeMain(level Level, scratch string) int {
	if err := probe(level, scratch); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func probe(level Level, scratch string) error {
	a := newArena(nil)
	if scratch == "" || !filepath.IsAbs(scratch) {
		return fmt.Errorf("probe scratch %q is not absolute", scratch)
	}

	switch level {
	case LevelWorkspace:
		return a.Execute([]Step{
			privatize(),
			bind(scratch, scratch, false),
			remountRO(scratch),
		})
	case LevelFull:
		spec := &Spec{
			Level:      LevelFull,
			CageRoot:   scratch,
			ProjectDir: scratch,
		}
		steps, err := FullPlan(spec)
		if err != nil {
			return err
		}
		return a.Execute(steps)
	default:
		return fmt.Errorf("unknown isolation level %q", level)
	}
}
