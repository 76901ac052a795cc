// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package run implements `substrate run`: route one command to the
// host or into a world per policy, and execute it there.
package run

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/substrate-foundation/substrate/cmd/substrate/cli"
	"github.com/substrate-foundation/substrate/lib/config"
	"github.com/substrate-foundation/substrate/world/backend"
	"github.com/substrate-foundation/substrate/world/cage"
	"github.com/substrate-foundation/substrate/world/policy"
	"github.com/substrate-foundation/substrate/world/pty"
	"github.com/substrate-foundation/substrate/world/router"
)

type runParams struct {
	world      bool
	noWorld    bool
	pty        bool
	project    string
	configPath string
}

// Command returns the `substrate run` command.
func Command() *cli.Command {
	params := &runParams{}
	return &cli.Command{
		Name:    "run",
		Summary: "execute a command under the project's policy",
		Usage:   "substrate run [flags] -- <command> [args...]",
		Description: "Load the effective policy for the project, decide host or world\n" +
			"execution, and run the command there. Policies that require\n" +
			"isolation fail closed (exit 3) when a world cannot be provided;\n" +
			"preferred-but-optional world execution falls back to the host with\n" +
			"a single warning.",
		Examples: []cli.Example{
			{Description: "run under the effective policy", Command: "substrate run -- make test"},
			{Description: "force world execution", Command: "substrate run --world -- npm install"},
			{Description: "interactive tool on a PTY", Command: "substrate run --world --pty -- python"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
			// The target command's own flags must pass through
			// untouched.
			flags.SetInterspersed(false)
			flags.BoolVar(&params.world, "world", false, "route through the world regardless of config default")
			flags.BoolVar(&params.noWorld, "no-world", false, "stay on the host (fails closed if policy requires isolation)")
			flags.BoolVar(&params.pty, "pty", false, "run the command on a pseudo-terminal")
			flags.StringVar(&params.project, "project", "", "project root (default: current directory)")
			flags.StringVar(&params.configPath, "config", "", "path to substrate config file")
			return flags
		},
		Run: func(args []string) error {
			return runRun(params, args)
		},
	}
}

func runRun(params *runParams, argv []string) error {
	if len(argv) == 0 {
		return &cli.UsageError{Message: "run: command required after --"}
	}
	if params.world && params.noWorld {
		return &cli.UsageError{Message: "run: --world and --no-world are mutually exclusive"}
	}

	cfg, err := loadConfig(params.configPath)
	if err != nil {
		return &cli.UsageError{Message: err.Error()}
	}
	project, err := resolveProject(params.project)
	if err != nil {
		return err
	}
	pol, err := policy.LoadEffective(project, cfg.World.PolicyFile)
	if err != nil {
		return &cli.UsageError{Message: err.Error()}
	}

	b := backend.NewLinuxHostNative(cfg.World.OverlayRoot)
	decision, err := router.Decide(router.Request{
		CLI:           override(params),
		Env:           os.Getenv("SUBSTRATE_WORLD"),
		ConfigDefault: cfg.World.Default,
		Policy:        pol,
		Argv:          argv,
	}, pickProbe(cfg, b))
	if err != nil {
		return err
	}
	slog.Debug("routing decision",
		"world", decision.RunInWorld,
		"isolation", decision.Isolation,
		"required", decision.Required,
		"project", project)
	if decision.Warning != "" {
		fmt.Fprintf(os.Stderr, "substrate: warning: %s\n", decision.Warning)
	}

	if !decision.RunInWorld {
		return execHost(argv)
	}
	return execWorld(cfg, b, pol, decision, project, argv, params.pty)
}

func override(params *runParams) router.Override {
	switch {
	case params.world:
		return router.OverrideWorld
	case params.noWorld:
		return router.OverrideNoWorld
	default:
		return router.OverrideNone
	}
}

// pickProbe uses the agent socket when one is configured and the
// in-process backend otherwise.
func pickProbe(cfg *config.Config, b backend.Backend) router.Probe {
	if socketPath := cfg.SocketPath(); socketPath != "" {
		return router.SocketProbe(socketPath, router.DefaultProbeTimeout)
	}
	return b.Probe
}

func resolveProject(flag string) (string, error) {
	dir := flag
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolving working directory: %w", err)
		}
		dir = cwd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving project root %s: %w", dir, err)
	}
	return abs, nil
}

// execHost replaces the process with the target command. Signals, the
// terminal, and the exit code are the command's own with nothing in
// between.
func execHost(argv []string) error {
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return &cli.UsageError{Message: err.Error()}
	}
	if err := unix.Exec(path, argv, os.Environ()); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}
	return nil
}

func execWorld(cfg *config.Config, b backend.Backend, pol *policy.Policy, decision router.Decision, project string, argv []string, usePTY bool) error {
	spec := buildSpec(cfg, pol, decision, project, argv)

	if usePTY {
		return execWorldPTY(cfg, spec)
	}

	// Signal forwarding to the cage's process group happens inside
	// the backend; nothing to install here.
	code, err := b.Enforce(context.Background(), spec, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	if code != 0 {
		return &cli.ExitError{Code: code}
	}
	return nil
}

// execWorldPTY runs the cage child on a fresh PTY so the caged
// command keeps full terminal parity. The cage is built in the child
// before the target execs; no interactive program ever observes a
// pre-cage view of the filesystem.
func execWorldPTY(cfg *config.Config, spec *cage.Spec) error {
	cmd, cleanup, err := cage.Command(spec, cfg.World.OverlayRoot)
	if err != nil {
		return err
	}
	defer cleanup()

	session, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	code, err := session.Interact(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	if code != 0 {
		return &cli.ExitError{Code: code}
	}
	return nil
}

func buildSpec(cfg *config.Config, pol *policy.Policy, decision router.Decision, project string, argv []string) *cage.Spec {
	spec := &cage.Spec{
		ProjectDir:      project,
		ReadOnlyProject: pol.WorldFS.Mode == policy.ModeReadOnly,
		WriteAllowlist:  pol.ResolveWriteAllowlist(project),
		LandlockReads:   pol.WorldFS.ReadAllowlist,
		Cwd:             workingDir(project),
		Argv:            argv,
		Env:             os.Environ(),
	}
	switch decision.Isolation {
	case router.IsolationFull:
		spec.Level = cage.LevelFull
		spec.SystemBinds = cfg.World.SystemBinds
		spec.DepsDir = cfg.World.DepsDir
	default:
		spec.Level = cage.LevelWorkspace
	}
	return spec
}

// workingDir keeps the caller's cwd when it sits inside the project,
// since that path exists unchanged inside the cage.
func workingDir(project string) string {
	cwd, err := os.Getwd()
	if err != nil {
		return project
	}
	if cwd == project || strings.HasPrefix(cwd, project+string(filepath.Separator)) {
		return cwd
	}
	return project
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
