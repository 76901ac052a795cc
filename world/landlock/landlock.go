// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package landlock applies kernel LSM path rules inside a full cage.
//
// Landlock is additive hardening only: it runs after pivot_root has
// already confined the process, and it is never a substitute for the
// mount-namespace cage. A kernel without Landlock support downgrades
// the capability report, not the cage.
//
// Requirements:
//   - Linux kernel >= 5.13 (ABI v1)
//   - kernel >= 5.19 for file-refer (ABI v2), >= 6.2 for truncate
//     (ABI v3); both degrade gracefully on older kernels
package landlock

import (
	"fmt"
	"sort"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Support describes what the running kernel offers.
type Support struct {
	// Supported is true when a ruleset can be created at all.
	Supported bool `json:"supported"`
	// ABI is the highest Landlock ABI the kernel implements, 0 when
	// unsupported.
	ABI int `json:"abi"`
	// Reason explains an unsupported result.
	Reason string `json:"reason,omitempty"`
}

// Rules is the path policy to enforce: everything not listed is
// denied by the ruleset's handled-access mask.
type Rules struct {
	// ReadPaths stay readable (and executable) beneath each entry.
	ReadPaths []string
	// WritePaths additionally allow writes beneath each entry.
	WritePaths []string
}

// ApplyReport records what enforcement actually happened. It feeds
// the capability report consumed by doctor and verify.
type ApplyReport struct {
	Support    Support `json:"support"`
	Attempted  bool    `json:"attempted"`
	Applied    bool    `json:"applied"`
	RulesAdded int     `json:"rules_added"`
	// Reason explains why enforcement was skipped or failed.
	Reason string `json:"reason,omitempty"`
}

// landlock_ruleset_attr for the create_ruleset syscall.
type rulesetAttr struct {
	handledAccessFs uint64
}

// landlock_path_beneath_attr for the add_rule syscall.
type pathBeneathAttr struct {
	allowedAccess uint64
	parentFd      int32
	_             int32 // struct alignment matches the kernel's packed layout
}

// Detect probes Landlock support and the kernel's ABI level. It is
// recomputed on every call: seccomp filters and sandboxed test
// environments can make the syscall fail in ways worth re-checking.
func Detect() Support {
	abi, _, errno := unix.Syscall(
		unix.SYS_LANDLOCK_CREATE_RULESET,
		0, // attr == NULL for the version probe
		0,
		uintptr(unix.LANDLOCK_CREATE_RULESET_VERSION),
	)
	if errno != 0 {
		return Support{Reason: fmt.Sprintf("landlock_create_ruleset: %v (kernel >= 5.13 with lsm=landlock required)", errno)}
	}
	return Support{Supported: true, ABI: int(abi)}
}

// readAccess is the access set granted beneath read allowlist entries.
const readAccess = unix.LANDLOCK_ACCESS_FS_EXECUTE |
	unix.LANDLOCK_ACCESS_FS_READ_FILE |
	unix.LANDLOCK_ACCESS_FS_READ_DIR

// writeAccess returns the write access set for the given ABI. Rights
// newer than the kernel's ABI must not appear in any mask or the
// syscalls fail with EINVAL.
func writeAccess(abi int) uint64 {
	var mask uint64 = unix.LANDLOCK_ACCESS_FS_WRITE_FILE |
		unix.LANDLOCK_ACCESS_FS_REMOVE_DIR |
		unix.LANDLOCK_ACCESS_FS_REMOVE_FILE |
		unix.LANDLOCK_ACCESS_FS_MAKE_CHAR |
		unix.LANDLOCK_ACCESS_FS_MAKE_DIR |
		unix.LANDLOCK_ACCESS_FS_MAKE_REG |
		unix.LANDLOCK_ACCESS_FS_MAKE_SOCK |
		unix.LANDLOCK_ACCESS_FS_MAKE_FIFO |
		unix.LANDLOCK_ACCESS_FS_MAKE_BLOCK |
		unix.LANDLOCK_ACCESS_FS_MAKE_SYM
	if abi >= 2 {
		mask |= unix.LANDLOCK_ACCESS_FS_REFER
	}
	if abi >= 3 {
		mask |= unix.LANDLOCK_ACCESS_FS_TRUNCATE
	}
	return mask
}

// aggregate merges the rule paths into a path→access map: a path in
// both lists gets the union of both masks.
func aggregate(rules Rules, abi int) map[string]uint64 {
	access := make(map[string]uint64)
	for _, p := range rules.ReadPaths {
		access[p] |= readAccess
	}
	for _, p := range rules.WritePaths {
		access[p] |= readAccess | writeAccess(abi)
	}
	return access
}

func sortedPaths(access map[string]uint64) []string {
	paths := make([]string, 0, len(access))
	for p := range access {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Apply enforces rules on the calling process. It must run after
// pivot_root and immediately before exec; the restriction is
// irrevocable for the process and everything it spawns.
//
// Apply never fails the cage: an unsupported kernel, an empty rule
// set, or a syscall failure is recorded in the report and execution
// proceeds under the mount-namespace confinement alone.
func Apply(rules Rules) ApplyReport {
	report := ApplyReport{Support: Detect()}
	if !report.Support.Supported {
		report.Reason = report.Support.Reason
		return report
	}
	if len(rules.ReadPaths) == 0 && len(rules.WritePaths) == 0 {
		report.Reason = "no landlock rules in policy"
		return report
	}
	report.Attempted = true
	abi := report.Support.ABI

	attr := rulesetAttr{handledAccessFs: uint64(readAccess) | writeAccess(abi)}
	fd, _, errno := unix.Syscall(
		unix.SYS_LANDLOCK_CREATE_RULESET,
		uintptr(unsafe.Pointer(&attr)),
		unsafe.Sizeof(attr),
		0,
	)
	if errno != 0 {
		report.Reason = fmt.Sprintf("landlock_create_ruleset: %v", errno)
		return report
	}
	rulesetFd := int(fd)
	defer unix.Close(rulesetFd)

	access := aggregate(rules, abi)
	for _, path := range sortedPaths(access) {
		added, err := addPathRule(rulesetFd, path, access[path])
		if err != nil {
			report.Reason = fmt.Sprintf("landlock rule for %s: %v", path, err)
			return report
		}
		if added {
			report.RulesAdded++
		}
	}
	if report.RulesAdded == 0 {
		report.Reason = "no rule paths exist in the cage"
		return report
	}

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		report.Reason = fmt.Sprintf("prctl(PR_SET_NO_NEW_PRIVS): %v", err)
		return report
	}
	if _, _, errno := unix.Syscall(unix.SYS_LANDLOCK_RESTRICT_SELF, fd, 0, 0); errno != 0 {
		report.Reason = fmt.Sprintf("landlock_restrict_self: %v", errno)
		return report
	}
	report.Applied = true
	return report
}

// addPathRule adds one path-beneath rule. A missing path is not a
// hole: it simply has no rule and stays denied, so it is skipped
// rather than failing the whole rule set.
func addPathRule(rulesetFd int, path string, access uint64) (bool, error) {
	pathFd, err := unix.Open(path, unix.O_PATH|unix.O_CLOEXEC, 0)
	if err != nil {
		return false, nil
	}
	defer unix.Close(pathFd)

	rule := pathBeneathAttr{
		allowedAccess: access,
		parentFd:      int32(pathFd),
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_LANDLOCK_ADD_RULE,
		uintptr(rulesetFd),
		uintptr(unix.LANDLOCK_RULE_PATH_BENEATH),
		uintptr(unsafe.Pointer(&rule)),
		0, 0, 0,
	)
	if errno != 0 {
		return false, errno
	}
	return true, nil
}
