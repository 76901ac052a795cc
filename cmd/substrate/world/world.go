// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package world provides the `substrate world` command group:
// capability reporting (doctor) and end-to-end enforcement
// verification (verify).
package world

import (
	"github.com/substrate-foundation/substrate/cmd/substrate/cli"
)

// Command returns the `substrate world` command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "world",
		Summary: "inspect and verify the isolation backend",
		Description: "Inspect the world execution backend.\n\n" +
			"`doctor` reports what the host can enforce right now; `verify` proves\n" +
			"it by running real commands through throwaway caged projects.",
		Subcommands: []*cli.Command{
			doctorCommand(),
			verifyCommand(),
		},
	}
}
