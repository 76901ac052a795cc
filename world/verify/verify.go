// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify proves, end to end, that world isolation actually
// enforces. It builds throwaway fixture projects, runs real commands
// through the backend, and asserts the denials and allowances the
// policy model promises. The real project is never touched.
//
// Check IDs are stable: automation keys on them.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/substrate-foundation/substrate/world/backend"
	"github.com/substrate-foundation/substrate/world/cage"
)

// Stable check identifiers.
const (
	CheckWorldBackend          = "world_backend"
	CheckReadOnlyRelativeWrite = "read_only_relative_write"
	CheckReadOnlyAbsoluteWrite = "read_only_absolute_write"
	CheckFullCageHostIsolation = "full_cage_host_isolation"
)

// Status of one check. Skip is reserved for privilege or platform
// gaps; an enforcement hole is always a fail.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Check is one verification result.
type Check struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Detail      string   `json:"detail,omitempty"`
	Artifacts   []string `json:"artifacts,omitempty"`
}

// Summary aggregates the run.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	// EnforcementChecksRan counts checks that exercised a real cage.
	// A run in which none did proves nothing and is not OK.
	EnforcementChecksRan int `json:"enforcement_checks_ran"`
}

// Report is the complete verification outcome.
type Report struct {
	Checks  []Check `json:"checks"`
	Summary Summary `json:"summary"`
	OK      bool    `json:"ok"`
}

// ExitCode is 0 for a verified world and 4 otherwise.
func (r *Report) ExitCode() int {
	if r.OK {
		return 0
	}
	return 4
}

// Options configures a verification run.
type Options struct {
	// Backend enforces the cages. Required.
	Backend backend.Backend
	// SystemBinds for full-cage fixtures.
	SystemBinds []string
	// Root is where fixture directories are created; empty means
	// the system temp directory.
	Root string
	// KeepTemp leaves the fixture tree (and per-check output logs)
	// in place for inspection.
	KeepTemp bool
	// Logger receives per-check progress at debug level. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Run executes all checks and finalizes the report.
func Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("verify: no backend")
	}

	root := opts.Root
	if root == "" {
		root = os.TempDir()
	}
	fixture, err := os.MkdirTemp(root, "substrate-verify-*")
	if err != nil {
		return nil, fmt.Errorf("verify: creating fixture dir: %w", err)
	}
	if opts.KeepTemp {
		fmt.Fprintf(os.Stderr, "verify: keeping fixtures at %s\n", fixture)
	} else {
		defer os.RemoveAll(fixture)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	run := &runner{
		opts:    opts,
		fixture: fixture,
		caps:    opts.Backend.Capabilities(),
		logger:  logger,
	}

	report := &Report{}
	report.Checks = append(report.Checks, run.backendCheck())
	report.Checks = append(report.Checks, run.readOnlyCheck(ctx, CheckReadOnlyRelativeWrite,
		"relative write into a read-only project is denied",
		"echo tampered > data.txt"))
	report.Checks = append(report.Checks, run.readOnlyCheck(ctx, CheckReadOnlyAbsoluteWrite,
		"absolute-path write into a read-only project is denied",
		"echo tampered > ${PROJECT}/data.txt"))
	report.Checks = append(report.Checks, run.fullCageCheck(ctx))

	finalize(report)
	return report, nil
}

func finalize(report *Report) {
	for _, check := range report.Checks {
		report.Summary.Total++
		switch check.Status {
		case StatusPass:
			report.Summary.Passed++
			if check.ID != CheckWorldBackend {
				report.Summary.EnforcementChecksRan++
			}
		case StatusFail:
			report.Summary.Failed++
		case StatusSkip:
			report.Summary.Skipped++
		}
	}
	report.OK = report.Summary.Failed == 0 && report.Summary.EnforcementChecksRan > 0
}

type runner struct {
	opts    Options
	fixture string
	caps    backend.CapabilityReport
	logger  *slog.Logger
}

func (r *runner) backendCheck() Check {
	check := Check{
		ID:          CheckWorldBackend,
		Description: "world backend can enforce workspace isolation",
	}
	if !r.caps.SupportsIsolation.Workspace {
		check.Status = StatusFail
		check.Detail = r.caps.WorkspaceReason
		return check
	}
	check.Status = StatusPass
	check.Detail = string(r.caps.Kind)
	return check
}

// project creates a fresh fixture project with a data file and an
// allowlisted build directory.
func (r *runner) project(id string) (string, error) {
	dir, err := os.MkdirTemp(r.fixture, id+"-*")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "data.txt"), []byte("fixture\n"), 0o644); err != nil {
		return "", err
	}
	if err := os.Mkdir(filepath.Join(dir, "build"), 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// enforce runs one shell script inside a cage against the fixture
// project and returns the exit code plus captured output. The output
// is also written to a per-check artifact log.
func (r *runner) enforce(ctx context.Context, id string, spec *cage.Spec, script string) (int, string, []string, error) {
	spec.Argv = []string{"/bin/sh", "-c", script}
	spec.Env = []string{"PATH=/usr/bin:/bin", "PROJECT=" + spec.ProjectDir}
	spec.Cwd = spec.ProjectDir

	var out strings.Builder
	code, err := r.opts.Backend.Enforce(ctx, spec, nil, &out, &out)
	r.logger.Debug("verify attempt", "check", id, "script", script, "code", code, "err", err)
	if err != nil {
		return -1, out.String(), nil, err
	}

	log := filepath.Join(r.fixture, id+".log")
	_ = os.WriteFile(log, []byte(out.String()), 0o644)
	return code, out.String(), []string{log}, nil
}

func (r *runner) readOnlyCheck(ctx context.Context, id, description, denyScript string) Check {
	check := Check{ID: id, Description: description}
	if !r.caps.SupportsIsolation.Workspace {
		check.Status = StatusSkip
		check.Detail = "workspace isolation unavailable: " + r.caps.WorkspaceReason
		return check
	}

	project, err := r.project(id)
	if err != nil {
		check.Status = StatusFail
		check.Detail = err.Error()
		return check
	}
	spec := func() *cage.Spec {
		return &cage.Spec{
			Level:           cage.LevelWorkspace,
			ProjectDir:      project,
			ReadOnlyProject: true,
			WriteAllowlist:  []string{filepath.Join(project, "build")},
		}
	}

	code, output, artifacts, err := r.enforce(ctx, id, spec(), denyScript)
	check.Artifacts = artifacts
	if err != nil {
		check.Status = StatusFail
		check.Detail = err.Error()
		return check
	}
	if code == 0 {
		check.Status = StatusFail
		check.Detail = fmt.Sprintf("write succeeded against a read-only project: %s", strings.TrimSpace(output))
		return check
	}

	// The denial must not be over-broad: the allowlisted directory
	// stays writable.
	code, output, _, err = r.enforce(ctx, id+"-allowlist", spec(), "echo ok > build/out.txt")
	if err != nil || code != 0 {
		check.Status = StatusFail
		check.Detail = fmt.Sprintf("allowlisted write failed (code %d, err %v): %s", code, err, strings.TrimSpace(output))
		return check
	}

	check.Status = StatusPass
	return check
}

func (r *runner) fullCageCheck(ctx context.Context) Check {
	check := Check{
		ID:          CheckFullCageHostIsolation,
		Description: "full cage hides the host filesystem outside the project",
	}
	if !r.caps.SupportsIsolation.Full {
		check.Status = StatusSkip
		check.Detail = "full isolation unavailable: " + r.caps.FullReason
		return check
	}

	project, err := r.project(CheckFullCageHostIsolation)
	if err != nil {
		check.Status = StatusFail
		check.Detail = err.Error()
		return check
	}
	// A witness outside the project, inside the fixture tree: a full
	// cage must make both reading and writing it impossible.
	witness := filepath.Join(r.fixture, "witness.txt")
	if err := os.WriteFile(witness, []byte("host-only\n"), 0o644); err != nil {
		check.Status = StatusFail
		check.Detail = err.Error()
		return check
	}

	spec := func(readOnly bool) *cage.Spec {
		return &cage.Spec{
			Level:           cage.LevelFull,
			ProjectDir:      project,
			ReadOnlyProject: readOnly,
			WriteAllowlist:  []string{filepath.Join(project, "build")},
			SystemBinds:     r.opts.SystemBinds,
		}
	}

	type attempt struct {
		name     string
		script   string
		readOnly bool
		wantZero bool
	}
	attempts := []attempt{
		// Sanity first: a cage that cannot even read its own project
		// failed to build, and exit 3 must not masquerade as a denial.
		{"project-read", "cat data.txt", true, true},
		{"host-read", "cat " + witness, true, false},
		{"host-write", "echo x > " + witness + ".new", true, false},
		{"project-write", "echo x > data.txt", true, false},
		{"allowlist-write", "echo ok > build/out.txt", true, true},
		// Writable mode grants nothing extra inside a full cage: the
		// project bind stays read-only, only the allowlist accepts
		// writes.
		{"writable-project-write", "echo x > data.txt", false, false},
		{"writable-allowlist-write", "echo ok > build/out2.txt", false, true},
	}
	for _, a := range attempts {
		code, output, artifacts, err := r.enforce(ctx, CheckFullCageHostIsolation+"-"+a.name, spec(a.readOnly), a.script)
		check.Artifacts = append(check.Artifacts, artifacts...)
		if err != nil {
			check.Status = StatusFail
			check.Detail = fmt.Sprintf("%s: %v", a.name, err)
			return check
		}
		if (code == 0) != a.wantZero {
			check.Status = StatusFail
			check.Detail = fmt.Sprintf("%s: exit %d (want success=%v): %s",
				a.name, code, a.wantZero, strings.TrimSpace(output))
			return check
		}
	}

	check.Status = StatusPass
	return check
}
