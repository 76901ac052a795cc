// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package cage

import (
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestWorkspacePlanWritable(t *testing.T) {
	spec := &Spec{
		Level:        LevelWorkspace,
		ProjectDir:   "/srv/project",
		OverlayUpper: "/run/user/1000/substrate/overlays/x/upper",
		OverlayWork:  "/run/user/1000/substrate/overlays/x/work",
	}
	steps, err := WorkspacePlan(spec)
	if err != nil {
		t.Fatal(err)
	}
	if steps[0].Flags&unix.MS_PRIVATE == 0 {
		t.Error("plan does not privatize mount propagation first")
	}
	last := steps[len(steps)-1]
	if last.FSType != "overlay" || last.Target != "/srv/project" {
		t.Errorf("writable workspace did not end with an overlay on the project path: %+v", last)
	}
	if !strings.Contains(last.Data, "lowerdir=/srv/project") {
		t.Errorf("overlay lowerdir is not the project: %q", last.Data)
	}
}

func TestWorkspacePlanWritableNeedsOverlayDirs(t *testing.T) {
	_, err := WorkspacePlan(&Spec{Level: LevelWorkspace, ProjectDir: "/srv/project"})
	if err == nil {
		t.Fatal("writable plan accepted without overlay dirs")
	}
}

func TestWorkspacePlanReadOnly(t *testing.T) {
	spec := &Spec{
		Level:           LevelWorkspace,
		ProjectDir:      "/srv/project",
		ReadOnlyProject: true,
		WriteAllowlist:  []string{"/srv/project/build"},
	}
	steps, err := WorkspacePlan(spec)
	if err != nil {
		t.Fatal(err)
	}

	var sawBind, sawRemount, sawAllowlist bool
	for _, s := range steps {
		switch {
		case s.Action == ActionMount && s.Source == "/srv/project" && s.Target == "/srv/project":
			sawBind = true
		case s.Action == ActionRemountRO && s.Target == "/srv/project":
			if !sawBind {
				t.Error("read-only remount precedes the self-bind")
			}
			sawRemount = true
		case s.Action == ActionMount && s.Target == "/srv/project/build":
			if !sawRemount {
				t.Error("allowlist bind precedes the read-only remount it must override")
			}
			sawAllowlist = true
		}
	}
	if !sawBind || !sawRemount || !sawAllowlist {
		t.Errorf("plan incomplete: bind=%v remount=%v allowlist=%v", sawBind, sawRemount, sawAllowlist)
	}
}

func TestFullPlanOrdering(t *testing.T) {
	spec := &Spec{
		Level:           LevelFull,
		ProjectDir:      "/tmp/project",
		ReadOnlyProject: true,
		CageRoot:        "/run/user/1000/substrate/s/root",
		SystemBinds:     []string{"/usr", "/lib64"},
		WriteAllowlist:  []string{"/tmp/project/build"},
		DepsDir:         "/var/cache/deps",
	}
	steps, err := FullPlan(spec)
	if err != nil {
		t.Fatal(err)
	}

	index := func(match func(Step) bool) int {
		for i, s := range steps {
			if match(s) {
				return i
			}
		}
		return -1
	}

	tmpMount := index(func(s Step) bool {
		return s.Action == ActionMount && s.FSType == "tmpfs" && strings.HasSuffix(s.Target, "/tmp")
	})
	projectBind := index(func(s Step) bool {
		return s.Action == ActionMount && s.Source == "/tmp/project"
	})
	pivot := index(func(s Step) bool { return s.Action == ActionPivotRoot })
	detach := index(func(s Step) bool { return s.Action == ActionUmountDetach })
	procMount := index(func(s Step) bool { return s.FSType == "proc" })

	if tmpMount == -1 || projectBind == -1 || pivot == -1 || detach == -1 || procMount == -1 {
		t.Fatalf("plan is missing required steps: tmp=%d project=%d pivot=%d detach=%d proc=%d",
			tmpMount, projectBind, pivot, detach, procMount)
	}

	// A project living under /tmp must be bound after the cage /tmp
	// shadows it, or the bind source would vanish behind the tmpfs.
	if tmpMount > projectBind {
		t.Errorf("cage /tmp (step %d) mounted after the project bind (step %d)", tmpMount, projectBind)
	}
	if pivot != len(steps)-2 || detach != len(steps)-1 {
		t.Errorf("pivot (%d) and old-root detach (%d) are not the final two of %d steps", pivot, detach, len(steps))
	}
	if projectBind < procMount {
		// Not load-bearing, but the documented sequence puts system
		// surface before project content.
		t.Logf("note: project bound before proc: project=%d proc=%d", projectBind, procMount)
	}
}

func TestFullPlanSystemBindsReadOnly(t *testing.T) {
	spec := &Spec{
		Level:       LevelFull,
		ProjectDir:  "/srv/project",
		CageRoot:    "/run/s/root",
		SystemBinds: []string{"/usr"},
	}
	steps, err := FullPlan(spec)
	if err != nil {
		t.Fatal(err)
	}
	var bound, remounted bool
	for _, s := range steps {
		if s.Source == "/usr" && s.Action == ActionMount {
			bound = true
			if !s.Optional {
				t.Error("system bind is not optional; absent host paths must be skipped")
			}
		}
		if s.Action == ActionRemountRO && s.Target == "/run/s/root/usr" {
			remounted = true
		}
	}
	if !bound || !remounted {
		t.Errorf("system bind missing or not remounted read-only: bind=%v remount=%v", bound, remounted)
	}
}

func TestFullPlanWritableModeStillBindsProjectReadOnly(t *testing.T) {
	// A writable-mode policy grants writes through the allowlist
	// only; the project bind itself is read-only in every full cage,
	// or the caged command would mutate the real host project.
	spec := &Spec{
		Level:          LevelFull,
		ProjectDir:     "/srv/project",
		CageRoot:       "/run/s/root",
		WriteAllowlist: []string{"/srv/project/build"},
	}
	steps, err := FullPlan(spec)
	if err != nil {
		t.Fatal(err)
	}

	var remounted, allowlisted bool
	var remountIndex, allowlistIndex int
	for i, s := range steps {
		if s.Action == ActionRemountRO && s.Target == "/run/s/root/srv/project" {
			remounted = true
			remountIndex = i
		}
		if s.Action == ActionMount && s.Source == "/srv/project/build" {
			allowlisted = true
			allowlistIndex = i
		}
	}
	if !remounted {
		t.Error("project not bound read-only in the full cage")
	}
	if !allowlisted {
		t.Error("write_allowlist bind missing from the full cage plan")
	}
	if remounted && allowlisted && allowlistIndex < remountIndex {
		t.Error("allowlist bind precedes the read-only remount it must override")
	}
}

func TestPlanRejectsRelativePaths(t *testing.T) {
	if _, err := WorkspacePlan(&Spec{Level: LevelWorkspace, ProjectDir: "project"}); err == nil {
		t.Error("workspace plan accepted a relative project dir")
	}
	if _, err := FullPlan(&Spec{Level: LevelFull, ProjectDir: "/srv/p", CageRoot: "root"}); err == nil {
		t.Error("full plan accepted a relative cage root")
	}
	if _, err := FullPlan(&Spec{Level: LevelFull, ProjectDir: "/srv/p", CageRoot: "/r", SystemBinds: []string{"usr"}}); err == nil {
		t.Error("full plan accepted a relative system bind")
	}
}

func TestPlanUnknownLevel(t *testing.T) {
	if _, err := Plan(&Spec{Level: "partial"}); err == nil {
		t.Error("unknown level accepted")
	}
}
