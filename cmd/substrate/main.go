// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Command substrate routes commands between the host and isolated
// worlds and provides the world inspection tooling.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/substrate-foundation/substrate/cmd/substrate/cli"
	"github.com/substrate-foundation/substrate/cmd/substrate/run"
	"github.com/substrate-foundation/substrate/cmd/substrate/world"
	"github.com/substrate-foundation/substrate/lib/version"
	"github.com/substrate-foundation/substrate/world/cage"
)

func main() {
	// Cage re-exec entries bypass the CLI entirely: they run inside
	// fresh namespaces with a spec handed down from the parent.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case cage.ChildArg:
			os.Exit(cage.ChildMain())
		case cage.ProbeArg:
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "substrate: probe entry requires level and scratch arguments")
				os.Exit(2)
			}
			os.Exit(cage.ProbeMain(cage.Level(os.Args[2]), os.Args[3]))
		}
	}

	setupLogger()

	root := &cli.Command{
		Name:    "substrate",
		Summary: "policy-gated command execution with world isolation",
		Description: "Substrate decides, per command, whether execution happens directly\n" +
			"on the host or inside a world: an isolated view of the filesystem\n" +
			"enforced through mount namespaces and Landlock.",
		Subcommands: []*cli.Command{
			run.Command(),
			world.Command(),
			versionCommand(),
		},
	}

	if err := root.Execute(os.Args[1:]); err != nil {
		exit(err)
	}
}

// setupLogger installs the process-wide logger. Routine operation is
// silent at warn level; SUBSTRATE_DEBUG exposes routing decisions and
// cage construction detail.
func setupLogger() {
	level := slog.LevelWarn
	if os.Getenv("SUBSTRATE_DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "print the substrate version",
		Run: func(args []string) error {
			fmt.Println(version.String())
			return nil
		},
	}
}

func exit(err error) {
	var silent *cli.ExitError
	if errors.As(err, &silent) {
		os.Exit(silent.Code)
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		fmt.Fprintf(os.Stderr, "substrate: %v\n", err)
		os.Exit(coded.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "substrate: %v\n", err)
	os.Exit(1)
}
