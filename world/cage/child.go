// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package cage

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/substrate-foundation/substrate/world/landlock"
)

// Exit codes used by the child. 3 is the fail-closed contract for a
// cage that cannot be built; 127 matches the shell convention for a
// command that cannot be executed.
const (
	exitFailClosed = 3
	exitExecFailed = 127
)

// ChildMain is the namespace child's entry point, dispatched from
// main when the hidden ChildArg is present. It builds the cage
// described in the environment, applies Landlock when the cage is a
// full one, and replaces itself with the target command. The returned
// code is only used on failure; on success this never returns.
func ChildMain() int {
	spec, err := specFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "substrate: %v\n", err)
		return exitFailClosed
	}
	if err := enter(spec); err != nil {
		fmt.Fprintf(os.Stderr, "substrate: %v\n", err)
		return exitFailClosed
	}

	path, err := lookPath(spec.Argv[0], spec.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "substrate: %v\n", err)
		return exitExecFailed
	}
	if err := unix.Exec(path, spec.Argv, spec.Env); err != nil {
		fmt.Fprintf(os.Stderr, "substrate: exec %s: %v\n", path, err)
		return exitExecFailed
	}
	return 0
}

func specFromEnv() (*Spec, error) {
	encoded := os.Getenv(specEnv)
	if encoded == "" {
		return nil, fmt.Errorf("cage child started without %s", specEnv)
	}
	os.Unsetenv(specEnv)

	var spec Spec
	if err := json.Unmarshal([]byte(encoded), &spec); err != nil {
		return nil, fmt.Errorf("decoding cage spec: %w", err)
	}
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("cage spec carries no command")
	}
	return &spec, nil
}

// enter builds the cage around the calling process.
func enter(spec *Spec) error {
	steps, err := Plan(spec)
	if err != nil {
		return err
	}
	if err := newArena(nil).Execute(steps); err != nil {
		return err
	}

	if spec.Level == LevelFull {
		// Additive hardening only: a kernel without Landlock leaves
		// the mount cage as the enforcement boundary.
		report := landlock.Apply(landlock.Rules{
			ReadPaths:  landlockReads(spec),
			WritePaths: landlockWrites(spec),
		})
		if report.Attempted && !report.Applied {
			fmt.Fprintf(os.Stderr, "substrate: landlock not applied: %s\n", report.Reason)
		}
	}

	cwd := spec.Cwd
	if cwd == "" {
		cwd = spec.ProjectDir
	}
	if err := os.Chdir(cwd); err != nil {
		return fmt.Errorf("entering working directory: %w", err)
	}
	return nil
}

// landlockReads is the full read surface of the cage: the system
// binds, the project, and any explicit read allowlist.
func landlockReads(spec *Spec) []string {
	reads := append([]string{}, spec.SystemBinds...)
	reads = append(reads, "/proc", "/dev", spec.ProjectDir)
	reads = append(reads, spec.LandlockReads...)
	return reads
}

// landlockWrites mirrors the full cage's mount-level write surface:
// the project bind is read-only regardless of policy mode, so writes
// are /tmp, the allowlist, and the deps dir.
func landlockWrites(spec *Spec) []string {
	writes := []string{"/tmp"}
	writes = append(writes, spec.WriteAllowlist...)
	if spec.DepsDir != "" {
		writes = append(writes, spec.DepsDir)
	}
	writes = append(writes, spec.LandlockWrites...)
	return writes
}

// lookPath resolves argv[0] against the PATH carried in the target
// environment rather than the child's own.
func lookPath(name string, env []string) (string, error) {
	if strings.Contains(name, "/") {
		return name, nil
	}
	for _, entry := range env {
		if value, ok := strings.CutPrefix(entry, "PATH="); ok {
			for _, dir := range strings.Split(value, ":") {
				if dir == "" {
					continue
				}
				candidate := dir + "/" + name
				if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
					return candidate, nil
				}
			}
			return "", fmt.Errorf("%s: not found in cage PATH", name)
		}
	}
	return exec.LookPath(name)
}
