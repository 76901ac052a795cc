// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend names the execution backends a world can run on
// and reports their capabilities.
//
// The set of kinds is closed. Each kind has a capability ceiling:
// what it could ever support, independent of the current host. The
// live capability report narrows that ceiling by probing the host,
// and is recomputed on every call; capability state is never cached
// across commands.
package backend

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/substrate-foundation/substrate/world/cage"
	"github.com/substrate-foundation/substrate/world/landlock"
	"github.com/substrate-foundation/substrate/world/router"
)

// Kind identifies an execution backend.
type Kind string

const (
	// KindLinuxHostNative runs cages directly on the host kernel via
	// namespaces. The only kind implemented in-process.
	KindLinuxHostNative Kind = "linux-host-native"
	// KindLinuxGuestRootfs runs inside a guest rootfs managed by a
	// world agent.
	KindLinuxGuestRootfs Kind = "linux-guest-rootfs"
	// KindMacosLima proxies to a Lima VM. Workspace-level only.
	KindMacosLima Kind = "macos-lima"
	// KindWindowsWsl proxies to a WSL distribution. Workspace-level
	// only.
	KindWindowsWsl Kind = "windows-wsl"
)

// IsolationSupport is the per-level availability of a backend.
type IsolationSupport struct {
	Workspace bool `json:"workspace"`
	Full      bool `json:"full"`
}

// CapabilityReport is the machine-readable answer to "what can this
// backend enforce right now". Every false capability carries a hint.
type CapabilityReport struct {
	Kind              Kind             `json:"backend_kind"`
	SupportsIsolation IsolationSupport `json:"supports_isolation"`
	Landlock          landlock.Support `json:"landlock"`
	// WorkspaceReason and FullReason explain unsupported levels.
	WorkspaceReason string `json:"workspace_reason,omitempty"`
	FullReason      string `json:"full_reason,omitempty"`
	// Hints are operator remediation suggestions, one per gap.
	Hints []string `json:"hints,omitempty"`
}

// Backend enforces isolation for one execution at a time.
type Backend interface {
	Kind() Kind
	// Capabilities re-probes the host; callers must not cache the
	// result across commands.
	Capabilities() CapabilityReport
	// Enforce runs the spec's command inside its cage and returns
	// the command's exit code.
	Enforce(ctx context.Context, spec *cage.Spec, stdin io.Reader, stdout, stderr io.Writer) (int, error)
	// Probe is the router's availability check for one level.
	Probe(level router.IsolationLevel) error
}

// Ceiling reports what a kind could support on an ideal host. The
// VM-proxied kinds stop at workspace isolation: they cannot pivot the
// caller's view of the VM filesystem.
func Ceiling(kind Kind) IsolationSupport {
	switch kind {
	case KindLinuxHostNative, KindLinuxGuestRootfs:
		return IsolationSupport{Workspace: true, Full: true}
	case KindMacosLima, KindWindowsWsl:
		return IsolationSupport{Workspace: true}
	default:
		return IsolationSupport{}
	}
}

// LinuxHostNative builds cages on the host kernel.
type LinuxHostNative struct {
	// SessionRoot is where per-execution overlay and cage-root
	// directories live.
	SessionRoot string
	// ProbeTimeout bounds each capability probe child.
	ProbeTimeout time.Duration
}

// NewLinuxHostNative returns the host-native backend with its session
// directories under sessionRoot.
func NewLinuxHostNative(sessionRoot string) *LinuxHostNative {
	return &LinuxHostNative{
		SessionRoot:  sessionRoot,
		ProbeTimeout: 2 * time.Second,
	}
}

func (b *LinuxHostNative) Kind() Kind { return KindLinuxHostNative }

// Capabilities probes namespace and Landlock support. Each call runs
// fresh probe children: kernels do not change, but seccomp filters,
// cgroup limits, and sysctl toggles applied to the session do.
func (b *LinuxHostNative) Capabilities() CapabilityReport {
	report := CapabilityReport{
		Kind:     KindLinuxHostNative,
		Landlock: landlock.Detect(),
	}

	if err := cage.Available(cage.LevelWorkspace, b.ProbeTimeout); err != nil {
		report.WorkspaceReason = err.Error()
		report.Hints = append(report.Hints,
			"enable unprivileged user namespaces (sysctl kernel.unprivileged_userns_clone=1 or the distribution equivalent)")
	} else {
		report.SupportsIsolation.Workspace = true
	}

	if err := cage.Available(cage.LevelFull, b.ProbeTimeout); err != nil {
		report.FullReason = err.Error()
		report.Hints = append(report.Hints,
			"full isolation needs user namespaces with pivot_root; check for seccomp or LSM policies blocking mount(2)")
	} else {
		report.SupportsIsolation.Full = true
	}

	if !report.Landlock.Supported {
		report.Hints = append(report.Hints,
			"landlock hardening inactive: kernel 5.13+ with lsm=landlock enables it (cages still enforce)")
	}
	return report
}

// Probe adapts the cage availability check to the router's contract.
func (b *LinuxHostNative) Probe(level router.IsolationLevel) error {
	switch level {
	case router.IsolationWorkspace:
		return cage.Available(cage.LevelWorkspace, b.ProbeTimeout)
	case router.IsolationFull:
		return cage.Available(cage.LevelFull, b.ProbeTimeout)
	case router.IsolationNone:
		return nil
	default:
		return fmt.Errorf("unknown isolation level %q", level)
	}
}

// Enforce builds the cage and runs the command.
func (b *LinuxHostNative) Enforce(ctx context.Context, spec *cage.Spec, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	return cage.Run(ctx, spec, b.SessionRoot, stdin, stdout, stderr)
}
