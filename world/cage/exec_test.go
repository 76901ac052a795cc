// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package cage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestMain lets the test binary stand in for the substrate binary
// when the cage re-executes /proc/self/exe.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case ChildArg:
			os.Exit(ChildMain())
		case ProbeArg:
			if len(os.Args) > 3 {
				os.Exit(ProbeMain(Level(os.Args[2]), os.Args[3]))
			}
			os.Exit(1)
		}
	}
	os.Exit(m.Run())
}

func requireWorkspace(t *testing.T) {
	t.Helper()
	if err := Available(LevelWorkspace, 5*time.Second); err != nil {
		t.Skipf("workspace isolation unavailable on this host: %v", err)
	}
}

func TestReadOnlyWorkspaceEnforcement(t *testing.T) {
	requireWorkspace(t)

	project := t.TempDir()
	if err := os.WriteFile(filepath.Join(project, "data.txt"), []byte("present\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(project, "build"), 0o755); err != nil {
		t.Fatal(err)
	}

	run := func(script string) int {
		t.Helper()
		spec := &Spec{
			Level:           LevelWorkspace,
			ProjectDir:      project,
			ReadOnlyProject: true,
			WriteAllowlist:  []string{filepath.Join(project, "build")},
			Cwd:             project,
			Argv:            []string{"/bin/sh", "-c", script},
			Env:             []string{"PATH=/usr/bin:/bin"},
		}
		var out strings.Builder
		code, err := Run(context.Background(), spec, t.TempDir(), nil, &out, &out)
		if err != nil {
			t.Fatalf("run failed before the command: %v (output: %s)", err, out.String())
		}
		return code
	}

	if code := run("cat data.txt"); code != 0 {
		t.Errorf("read of project file failed with %d", code)
	}
	if code := run("echo x > data.txt"); code == 0 {
		t.Error("relative write to a read-only project succeeded")
	}
	if code := run("echo x > " + filepath.Join(project, "abs.txt")); code == 0 {
		t.Error("absolute write to a read-only project succeeded")
	}
	if code := run("echo x > build/out.txt"); code != 0 {
		t.Errorf("write to an allowlisted directory failed with %d", code)
	}
}

func TestAvailableLeavesNoScratchBehind(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	// Whether the probe succeeds or not, its scratch directory must
	// be gone afterwards.
	_ = Available(LevelWorkspace, 5*time.Second)
	_ = Available(LevelFull, 5*time.Second)

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("probe left scratch directories behind: %v", names)
	}
}

func TestCancellationKillsCagedCommand(t *testing.T) {
	requireWorkspace(t)

	project := t.TempDir()
	spec := &Spec{
		Level:           LevelWorkspace,
		ProjectDir:      project,
		ReadOnlyProject: true,
		Cwd:             project,
		Argv:            []string{"/bin/sh", "-c", "sleep 30"},
		Env:             []string{"PATH=/usr/bin:/bin"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(200*time.Millisecond, cancel)
	defer timer.Stop()
	defer cancel()

	start := time.Now()
	code, err := Run(ctx, spec, t.TempDir(), nil, os.Stderr, os.Stderr)
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("caged command outlived cancellation by %v", elapsed)
	}
	if code == 0 {
		t.Error("killed command reported success")
	}
}

func TestWritableWorkspaceWritesStayInOverlay(t *testing.T) {
	requireWorkspace(t)

	project := t.TempDir()
	spec := &Spec{
		Level:      LevelWorkspace,
		ProjectDir: project,
		Cwd:        project,
		Argv:       []string{"/bin/sh", "-c", "echo scoped > created.txt"},
		Env:        []string{"PATH=/usr/bin:/bin"},
	}
	code, err := Run(context.Background(), spec, t.TempDir(), nil, os.Stderr, os.Stderr)
	if err != nil {
		t.Fatal(err)
	}
	if code != 0 {
		t.Skipf("overlay mount unavailable in this environment (exit %d)", code)
	}
	if _, err := os.Stat(filepath.Join(project, "created.txt")); err == nil {
		t.Error("overlay write leaked into the host project tree")
	}
}
