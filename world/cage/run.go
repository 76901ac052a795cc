// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package cage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
)

// Run executes spec's command inside its cage, wiring the given
// stdio, and returns the command's exit code. Cage construction
// failures surface as the child's fail-closed exit code 3 with the
// reason already printed on stderr by the child.
//
// The child runs in its own process group, so terminal signals do not
// reach it directly; SIGINT and SIGTERM received while it runs are
// forwarded to the group. Cancelling ctx kills the group outright; the
// private mount namespace disappears with it, so there is no
// half-built cage to clean up beyond the session directories.
func Run(ctx context.Context, spec *Spec, sessionRoot string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	cmd, cleanup, err := Command(spec, sessionRoot)
	if err != nil {
		return -1, err
	}
	defer cleanup()

	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr.Setpgid = true

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("starting cage child: %w", err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer signal.Stop(signals)
		for {
			select {
			case sig := <-signals:
				// Negative pid signals the whole group.
				_ = syscall.Kill(-cmd.Process.Pid, sig.(syscall.Signal))
			case <-ctx.Done():
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
				return
			case <-done:
				return
			}
		}
	}()

	err = cmd.Wait()
	close(done)
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("waiting for cage child: %w", err)
}
