// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "substrate",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "world",
				Run: func(args []string) error {
					called = "world"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"world"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "world" {
		t.Errorf("dispatched to %q, want %q", called, "world")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "substrate",
		Subcommands: []*Command{
			{
				Name: "world",
				Subcommands: []*Command{
					{
						Name: "verify",
						Run: func(args []string) error {
							called = "world verify"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"world", "verify", "extra-arg"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "world verify" {
		t.Errorf("dispatched to %q, want %q", called, "world verify")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "extra-arg" {
		t.Errorf("args = %v, want [extra-arg]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var configPath string
	var target string

	command := &Command{
		Name: "verify",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "/default.yaml", "config path")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--config", "/custom.yaml", "some-target"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if configPath != "/custom.yaml" {
		t.Errorf("configPath = %q, want %q", configPath, "/custom.yaml")
	}
	if target != "some-target" {
		t.Errorf("target = %q, want %q", target, "some-target")
	}
}

func TestCommand_Execute_NonInterspersedFlagsPassThrough(t *testing.T) {
	var world bool
	var received []string

	command := &Command{
		Name: "run",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.SetInterspersed(false)
			flagSet.BoolVar(&world, "world", false, "")
			return flagSet
		},
		Run: func(args []string) error {
			received = args
			return nil
		},
	}

	if err := command.Execute([]string{"--world", "--", "make", "--jobs", "4"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !world {
		t.Error("--world not parsed")
	}
	if len(received) != 3 || received[0] != "make" || received[1] != "--jobs" {
		t.Errorf("target argv = %v, want [make --jobs 4]", received)
	}
}

func TestCommand_Execute_UnknownCommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "substrate",
		Subcommands: []*Command{
			{Name: "world", Run: func(args []string) error { return nil }},
			{Name: "version", Run: func(args []string) error { return nil }},
		},
	}

	err := root.Execute([]string{"wrold"})
	if err == nil {
		t.Fatal("Execute() succeeded for unknown command")
	}
	var usage *UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("error type = %T, want *UsageError", err)
	}
	if !strings.Contains(err.Error(), `"world"`) {
		t.Errorf("error %q does not suggest %q", err.Error(), "world")
	}
	if usage.ExitCode() != ExitUsage {
		t.Errorf("ExitCode() = %d, want %d", usage.ExitCode(), ExitUsage)
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "verify",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flagSet.Bool("json", false, "machine-readable output")
			flagSet.String("config", "", "config path")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--josn"})
	if err == nil {
		t.Fatal("Execute() succeeded for unknown flag")
	}
	if !strings.Contains(err.Error(), "--json") {
		t.Errorf("error %q does not suggest --json", err.Error())
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	root := &Command{
		Name: "world",
		Subcommands: []*Command{
			{Name: "doctor", Run: func(args []string) error { return nil }},
		},
	}

	err := root.Execute(nil)
	if err == nil {
		t.Fatal("Execute() succeeded with no subcommand")
	}
	var usage *UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("error type = %T, want *UsageError", err)
	}
}

func TestCommand_PrintHelp_ListsSubcommands(t *testing.T) {
	root := &Command{
		Name:    "substrate",
		Summary: "top level",
		Subcommands: []*Command{
			{Name: "run", Summary: "execute a command"},
			{Name: "world", Summary: "world tooling"},
		},
	}

	var buf bytes.Buffer
	root.PrintHelp(&buf)
	out := buf.String()
	for _, want := range []string{"run", "world", "execute a command", "world tooling"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q:\n%s", want, out)
		}
	}
}

func TestCommand_PrintHelp_Examples(t *testing.T) {
	command := &Command{
		Name:  "run",
		Usage: "substrate run [flags] -- <command>",
		Examples: []Example{
			{Description: "run make", Command: "substrate run -- make"},
		},
	}

	var buf bytes.Buffer
	command.PrintHelp(&buf)
	out := buf.String()
	if !strings.Contains(out, "substrate run [flags] -- <command>") {
		t.Errorf("help output missing usage line:\n%s", out)
	}
	if !strings.Contains(out, "# run make") {
		t.Errorf("help output missing example description:\n%s", out)
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	ran := false
	command := &Command{
		Name: "doctor",
		Run: func(args []string) error {
			ran = true
			return nil
		},
	}

	if err := command.Execute([]string{"--help"}); err != nil {
		t.Fatalf("Execute(--help) error: %v", err)
	}
	if ran {
		t.Error("Run executed for --help")
	}
}
