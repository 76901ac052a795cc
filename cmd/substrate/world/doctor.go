// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/substrate-foundation/substrate/cmd/substrate/cli"
	"github.com/substrate-foundation/substrate/cmd/substrate/cli/checks"
	"github.com/substrate-foundation/substrate/lib/config"
	"github.com/substrate-foundation/substrate/world/backend"
	"github.com/substrate-foundation/substrate/world/router"
)

type doctorParams struct {
	cli.JSONOutput
	configPath string
}

// doctorReport is the machine-readable doctor output.
type doctorReport struct {
	Backend backend.CapabilityReport `json:"backend"`
	Socket  *socketStatus            `json:"socket,omitempty"`
	Checks  []checks.Result          `json:"checks"`
	OK      bool                     `json:"ok"`
}

type socketStatus struct {
	Path      string `json:"path"`
	Reachable bool   `json:"reachable"`
	Detail    string `json:"detail,omitempty"`
}

func doctorCommand() *cli.Command {
	params := &doctorParams{}
	return &cli.Command{
		Name:    "doctor",
		Summary: "report isolation capabilities of this host",
		Description: "Probe the world backend and report, per capability, what it can\n" +
			"enforce right now. Capabilities are re-probed on every invocation;\n" +
			"nothing is cached from previous commands.",
		Examples: []cli.Example{
			{Description: "human-readable checklist", Command: "substrate world doctor"},
			{Description: "machine-readable report", Command: "substrate world doctor --json"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("doctor", pflag.ContinueOnError)
			flags.BoolVar(&params.OutputJSON, "json", false, "output as JSON")
			flags.StringVar(&params.configPath, "config", "", "path to substrate config file")
			return flags
		},
		Run: func(args []string) error {
			return runDoctor(params)
		},
	}
}

func runDoctor(params *doctorParams) error {
	cfg, err := loadConfig(params.configPath)
	if err != nil {
		return err
	}

	b := backend.NewLinuxHostNative(cfg.World.OverlayRoot)
	report := doctorReport{Backend: b.Capabilities()}
	report.Checks = capabilityChecks(report.Backend)

	if socketPath := cfg.SocketPath(); socketPath != "" {
		status := &socketStatus{Path: socketPath}
		probe := router.SocketProbe(socketPath, router.DefaultProbeTimeout)
		if err := probe(router.IsolationWorkspace); err != nil {
			status.Detail = err.Error()
			report.Checks = append(report.Checks, checks.Fail("world_agent_socket", err.Error(),
				"start the world agent or unset SUBSTRATE_WORLD_SOCKET"))
		} else {
			status.Reachable = true
			report.Checks = append(report.Checks, checks.Pass("world_agent_socket", socketPath))
		}
		report.Socket = status
	}

	outcome := tally(report.Checks)
	report.OK = outcome.OK()

	if done, err := params.EmitJSON(report); done {
		if err != nil {
			return err
		}
		if !report.OK {
			return &cli.ExitError{Code: cli.ExitUnsupported}
		}
		return nil
	}

	outcome = checks.PrintChecklist(os.Stdout, report.Checks)
	fmt.Printf("\n%d passed, %d failed, %d warnings, %d skipped\n",
		outcome.Passed, outcome.Failed, outcome.Warned, outcome.Skipped)
	if !outcome.OK() {
		printGuidance(report.Backend)
		return &cli.ExitError{Code: cli.ExitUnsupported}
	}
	return nil
}

func capabilityChecks(caps backend.CapabilityReport) []checks.Result {
	results := []checks.Result{
		checks.Pass("backend", string(caps.Kind)),
	}

	if caps.SupportsIsolation.Workspace {
		results = append(results, checks.Pass("workspace_isolation", "private mount namespace available"))
	} else {
		results = append(results, checks.Fail("workspace_isolation", caps.WorkspaceReason,
			"enable unprivileged user namespaces"))
	}

	if caps.SupportsIsolation.Full {
		results = append(results, checks.Pass("full_isolation", "pivot_root cage available"))
	} else {
		results = append(results, checks.Fail("full_isolation", caps.FullReason,
			"check seccomp and LSM policies blocking mount(2)"))
	}

	// Landlock is additive hardening: its absence degrades, never
	// disables, so it warns rather than fails.
	if caps.Landlock.Supported {
		results = append(results, checks.Pass("landlock",
			fmt.Sprintf("ABI v%d", caps.Landlock.ABI)))
	} else {
		results = append(results, checks.Warn("landlock", caps.Landlock.Reason,
			"kernel 5.13+ with lsm=landlock enables additive hardening"))
	}
	return results
}

func tally(results []checks.Result) checks.Outcome {
	var outcome checks.Outcome
	for _, r := range results {
		switch r.Status {
		case checks.StatusPass:
			outcome.Passed++
		case checks.StatusFail:
			outcome.Failed++
		case checks.StatusWarn:
			outcome.Warned++
		case checks.StatusSkip:
			outcome.Skipped++
		}
	}
	return outcome
}

func printGuidance(caps backend.CapabilityReport) {
	if len(caps.Hints) == 0 {
		return
	}
	fmt.Println("\nNext steps:")
	for _, hint := range caps.Hints {
		fmt.Printf("  - %s\n", hint)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
