// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package router decides, per command, whether execution happens on
// the host or inside a world, and at what isolation level.
//
// The decision is a pure function of the request and one availability
// probe: no retries, no caching, no state carried between commands.
// When isolation is required and cannot be provided, the router fails
// closed; it never degrades silently. When world execution is merely
// preferred and unavailable, it falls back to the host with exactly
// one warning line.
package router

import (
	"fmt"
	"strings"

	"github.com/substrate-foundation/substrate/world/policy"
)

// Override is the tri-state world preference from the command line.
type Override int

const (
	// OverrideNone means neither --world nor --no-world was given.
	OverrideNone Override = iota
	// OverrideWorld is an explicit --world.
	OverrideWorld
	// OverrideNoWorld is an explicit --no-world.
	OverrideNoWorld
)

// IsolationLevel is what the decided execution will enforce.
type IsolationLevel string

const (
	IsolationNone      IsolationLevel = "none"
	IsolationWorkspace IsolationLevel = "workspace"
	IsolationFull      IsolationLevel = "full"
)

// Request carries everything a routing decision depends on.
type Request struct {
	// CLI is the flag override, the highest-precedence input.
	CLI Override
	// Env is the raw SUBSTRATE_WORLD value ("enabled", "disabled",
	// or empty for unset). Unknown values are treated as unset.
	Env string
	// ConfigDefault is world.default from the config file
	// ("enabled" or "disabled").
	ConfigDefault string
	// Policy is the effective policy for the project. Required.
	Policy *policy.Policy
	// Argv is the command to execute; Argv[0] is matched against
	// the policy's cmd_isolated patterns.
	Argv []string
}

// Decision is the routing outcome. It is produced once per command
// and never cached.
type Decision struct {
	// RunInWorld selects world execution when true, host otherwise.
	RunInWorld bool
	// Isolation is the level the execution must enforce:
	// IsolationNone on the host, workspace or full inside a world.
	Isolation IsolationLevel
	// Required records that the policy demanded world execution
	// (as opposed to mere preference).
	Required bool
	// Warning is the single degradation notice, empty in the common
	// case. Callers print it once; nothing else may add noise.
	Warning string
}

// FailClosedError means required isolation cannot be provided. The
// command must not run.
type FailClosedError struct {
	Reason string
}

func (e *FailClosedError) Error() string { return e.Reason }

// ExitCode is 3: required isolation unavailable.
func (e *FailClosedError) ExitCode() int { return 3 }

// Probe checks whether the world backend can enforce the given
// isolation level right now. A nil error means available. Probes must
// bound their own waiting; the router treats any error as
// unavailable and never retries.
type Probe func(level IsolationLevel) error

// Decide routes one command. It consults the probe at most once, and
// only when world execution is selected or required.
func Decide(req Request, probe Probe) (Decision, error) {
	if req.Policy == nil {
		return Decision{}, fmt.Errorf("routing: no effective policy")
	}

	required, reason := requirement(req)
	preferred, explicitOff := preference(req)

	// An explicit opt-out cannot override a policy requirement: that
	// combination is a contradiction, and contradictions fail closed.
	if required && explicitOff != offNone {
		return Decision{}, &FailClosedError{
			Reason: fmt.Sprintf("world execution required (%s) but world is disabled (%s)", reason, explicitOff.source()),
		}
	}

	if !required && !preferred {
		return Decision{RunInWorld: false, Isolation: IsolationNone}, nil
	}

	level := IsolationWorkspace
	if req.Policy.WorldFS.Isolation == policy.IsolationFull {
		level = IsolationFull
	}

	if err := probe(level); err != nil {
		if required {
			return Decision{}, &FailClosedError{
				Reason: fmt.Sprintf("world execution required (%s) but the world backend is unavailable: %v", reason, err),
			}
		}
		return Decision{
			RunInWorld: false,
			Isolation:  IsolationNone,
			Warning:    fmt.Sprintf("world backend unavailable, running on host without isolation: %v", err),
		}, nil
	}

	return Decision{RunInWorld: true, Isolation: level, Required: required}, nil
}

// explicitOff distinguishes which input carried the opt-out, for the
// fail-closed message.
type offSource int

const (
	offNone offSource = iota
	offFlag
	offEnv
)

func (s offSource) source() string {
	switch s {
	case offFlag:
		return "--no-world"
	case offEnv:
		return "SUBSTRATE_WORLD=disabled"
	}
	return ""
}

// preference resolves the world preference with precedence
// flag > environment > config default, and reports whether the
// opt-out was explicit (flag or environment) rather than a default.
func preference(req Request) (preferred bool, explicitOff offSource) {
	switch req.CLI {
	case OverrideWorld:
		return true, offNone
	case OverrideNoWorld:
		return false, offFlag
	}
	switch strings.ToLower(req.Env) {
	case "enabled":
		return true, offNone
	case "disabled":
		return false, offEnv
	}
	return req.ConfigDefault == "enabled", offNone
}

// requirement reports whether the policy forces world execution, and
// names the deciding field for error messages.
func requirement(req Request) (bool, string) {
	fs := req.Policy.WorldFS
	switch {
	case fs.Mode == policy.ModeReadOnly:
		return true, "fs_mode=read_only"
	case fs.Isolation == policy.IsolationFull:
		return true, "isolation=full"
	case fs.RequireWorld:
		return true, "require_world=true"
	}
	if len(req.Argv) > 0 && req.Policy.MatchesIsolated(req.Argv[0]) {
		return true, fmt.Sprintf("cmd_isolated match for %q", req.Argv[0])
	}
	return false, ""
}
