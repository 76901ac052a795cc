// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/substrate-foundation/substrate/cmd/substrate/cli"
	"github.com/substrate-foundation/substrate/cmd/substrate/cli/checks"
	"github.com/substrate-foundation/substrate/world/backend"
	"github.com/substrate-foundation/substrate/world/verify"
)

type verifyParams struct {
	cli.JSONOutput
	configPath string
	root       string
	keepTemp   bool
}

func verifyCommand() *cli.Command {
	params := &verifyParams{}
	return &cli.Command{
		Name:    "verify",
		Summary: "prove isolation enforcement end to end",
		Description: "Build throwaway fixture projects and run real commands through the\n" +
			"backend, asserting that read-only projects reject writes, allowlists\n" +
			"stay writable, and full cages hide the host. The real project is\n" +
			"never touched. Exit code 0 means verified; 4 means an enforcement\n" +
			"hole or nothing provable on this host.",
		Examples: []cli.Example{
			{Description: "verify and print a checklist", Command: "substrate world verify"},
			{Description: "machine-readable report", Command: "substrate world verify --json"},
			{Description: "keep fixtures for inspection", Command: "substrate world verify --keep-temp"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flags.BoolVar(&params.OutputJSON, "json", false, "output as JSON")
			flags.StringVar(&params.configPath, "config", "", "path to substrate config file")
			flags.StringVar(&params.root, "root", "", "directory for fixture projects (default: system temp)")
			flags.BoolVar(&params.keepTemp, "keep-temp", false, "keep fixture projects and check logs")
			return flags
		},
		Run: func(args []string) error {
			return runVerify(params)
		},
	}
}

func runVerify(params *verifyParams) error {
	cfg, err := loadConfig(params.configPath)
	if err != nil {
		return err
	}

	report, err := verify.Run(context.Background(), verify.Options{
		Backend:     backend.NewLinuxHostNative(cfg.World.OverlayRoot),
		SystemBinds: cfg.World.SystemBinds,
		Root:        params.root,
		KeepTemp:    params.keepTemp,
	})
	if err != nil {
		return err
	}

	if done, err := params.EmitJSON(report); done {
		if err != nil {
			return err
		}
		return exitFor(report)
	}

	results := make([]checks.Result, 0, len(report.Checks))
	for _, check := range report.Checks {
		results = append(results, checks.Result{
			Name:    check.ID,
			Status:  checks.Status(check.Status),
			Message: message(check),
		})
	}
	checks.PrintChecklist(os.Stdout, results)
	fmt.Printf("\n%d/%d passed (%d failed, %d skipped, %d enforcement checks ran)\n",
		report.Summary.Passed, report.Summary.Total, report.Summary.Failed,
		report.Summary.Skipped, report.Summary.EnforcementChecksRan)
	if !report.OK && report.Summary.EnforcementChecksRan == 0 {
		fmt.Println("no enforcement check could run on this host; nothing was proven")
	}
	return exitFor(report)
}

func message(check verify.Check) string {
	if check.Detail != "" {
		return check.Detail
	}
	return check.Description
}

func exitFor(report *verify.Report) error {
	if code := report.ExitCode(); code != 0 {
		return &cli.ExitError{Code: code}
	}
	return nil
}
