// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package landlock

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestWriteAccessABIClamping(t *testing.T) {
	v1 := writeAccess(1)
	if v1&unix.LANDLOCK_ACCESS_FS_REFER != 0 {
		t.Error("ABI 1 mask includes REFER (kernel would reject with EINVAL)")
	}
	if v1&unix.LANDLOCK_ACCESS_FS_TRUNCATE != 0 {
		t.Error("ABI 1 mask includes TRUNCATE")
	}

	v2 := writeAccess(2)
	if v2&unix.LANDLOCK_ACCESS_FS_REFER == 0 {
		t.Error("ABI 2 mask is missing REFER")
	}
	if v2&unix.LANDLOCK_ACCESS_FS_TRUNCATE != 0 {
		t.Error("ABI 2 mask includes TRUNCATE")
	}

	v3 := writeAccess(3)
	if v3&unix.LANDLOCK_ACCESS_FS_REFER == 0 || v3&unix.LANDLOCK_ACCESS_FS_TRUNCATE == 0 {
		t.Error("ABI 3 mask is missing REFER or TRUNCATE")
	}
}

func TestAggregateUnionsOverlappingPaths(t *testing.T) {
	rules := Rules{
		ReadPaths:  []string{"/usr", "/project"},
		WritePaths: []string{"/project"},
	}
	access := aggregate(rules, 1)
	if len(access) != 2 {
		t.Fatalf("aggregate produced %d entries, want 2", len(access))
	}
	if access["/usr"] != readAccess {
		t.Errorf("/usr access = %#x, want read-only mask %#x", access["/usr"], uint64(readAccess))
	}
	want := uint64(readAccess) | writeAccess(1)
	if access["/project"] != want {
		t.Errorf("/project access = %#x, want read+write union %#x", access["/project"], want)
	}
}

func TestSortedPathsDeterministic(t *testing.T) {
	access := map[string]uint64{"/c": 1, "/a": 1, "/b": 1}
	got := sortedPaths(access)
	want := []string{"/a", "/b", "/c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sortedPaths = %v, want %v", got, want)
		}
	}
}

func TestApplyEmptyRulesIsNoop(t *testing.T) {
	report := Apply(Rules{})
	if report.Attempted || report.Applied {
		t.Errorf("empty rules attempted enforcement: %+v", report)
	}
}

// Apply is irrevocable for the process, so the enforcement path is
// exercised only in the cage child and in world verify, never in the
// test runner itself.
func TestDetectDoesNotRestrict(t *testing.T) {
	support := Detect()
	if support.Supported && support.ABI < 1 {
		t.Errorf("supported kernel reported ABI %d", support.ABI)
	}
	if !support.Supported && support.Reason == "" {
		t.Error("unsupported result carries no reason")
	}
}
