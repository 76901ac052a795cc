// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package pty gives world execution terminal parity with the host.
//
// An interactive command caged by substrate still runs on a real
// pseudo-terminal: the slave becomes the child's controlling TTY and
// stdio before the cage child execs, so programs that probe isatty,
// resize, or read raw keys behave exactly as they would uncaged. The
// parent relays bytes and window sizes between the caller's terminal
// and the PTY master.
package pty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Session is a started command attached to a fresh PTY.
type Session struct {
	master *os.File
	cmd    *exec.Cmd
}

// Open allocates a PTY master/slave pair using the Linux devpts
// interface and returns the master plus the slave device path.
func Open() (master *os.File, slavePath string, err error) {
	master, err = os.OpenFile("/dev/ptmx", os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, "", fmt.Errorf("open /dev/ptmx: %w", err)
	}
	fd := int(master.Fd())

	ptyNumber, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		master.Close()
		return nil, "", fmt.Errorf("get PTY number (TIOCGPTN): %w", err)
	}
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		master.Close()
		return nil, "", fmt.Errorf("unlock PTY slave (TIOCSPTLCK): %w", err)
	}
	return master, fmt.Sprintf("/dev/pts/%d", ptyNumber), nil
}

// Start runs cmd with the slave side of a new PTY as its stdio and
// controlling terminal. Any namespace flags already present on the
// command's SysProcAttr are kept; Start only adds the session and
// controlling-TTY setup.
func Start(cmd *exec.Cmd) (*Session, error) {
	master, slavePath, err := Open()
	if err != nil {
		return nil, err
	}
	slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	if err != nil {
		master.Close()
		return nil, fmt.Errorf("open PTY slave %s: %w", slavePath, err)
	}

	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true
	cmd.SysProcAttr.Setctty = true
	cmd.SysProcAttr.Ctty = 0 // slave is the child's fd 0

	if err := cmd.Start(); err != nil {
		slave.Close()
		master.Close()
		return nil, fmt.Errorf("starting PTY child: %w", err)
	}
	// The child holds its own copy of the slave.
	slave.Close()
	return &Session{master: master, cmd: cmd}, nil
}

// Resize sets the PTY window size.
func (s *Session) Resize(columns, rows uint16) error {
	return unix.IoctlSetWinsize(int(s.master.Fd()), unix.TIOCSWINSZ, &unix.Winsize{
		Col: columns,
		Row: rows,
	})
}

// resizeFrom copies the window size of the given terminal fd onto the
// PTY.
func (s *Session) resizeFrom(fd int) error {
	size, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
	if err != nil {
		return err
	}
	return unix.IoctlSetWinsize(int(s.master.Fd()), unix.TIOCSWINSZ, size)
}

// Interact relays bytes between the caller's terminal and the PTY
// until the child exits, mirroring window-size changes on SIGWINCH.
// When stdin is a terminal it is put into raw mode for the duration;
// keyboard signals then reach the child through the PTY line
// discipline, not through the parent.
func (s *Session) Interact(stdin *os.File, stdout io.Writer) (int, error) {
	inFd := int(stdin.Fd())
	if term.IsTerminal(inFd) {
		oldState, err := term.MakeRaw(inFd)
		if err != nil {
			return -1, fmt.Errorf("entering raw mode: %w", err)
		}
		defer term.Restore(inFd, oldState)

		_ = s.resizeFrom(inFd)
		winch := make(chan os.Signal, 1)
		signal.Notify(winch, syscall.SIGWINCH)
		defer signal.Stop(winch)
		go func() {
			for range winch {
				_ = s.resizeFrom(inFd)
			}
		}()
	}

	go func() {
		_, _ = io.Copy(s.master, stdin)
	}()
	// Master read returns EIO when the last slave handle closes;
	// that is the end-of-session signal, not an error.
	_, _ = io.Copy(stdout, s.master)

	return s.Wait()
}

// Wait collects the child's exit code.
func (s *Session) Wait() (int, error) {
	defer s.master.Close()
	err := s.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Close terminates the session by closing the master; the child sees
// hangup on its controlling terminal.
func (s *Session) Close() error {
	return s.master.Close()
}
