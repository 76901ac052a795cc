// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package pty

import (
	"bufio"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/substrate-foundation/substrate/lib/testutil"
)

func requirePTY(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skipf("/dev/ptmx unavailable: %v", err)
	}
}

func TestOpenAllocatesPair(t *testing.T) {
	requirePTY(t)
	master, slavePath, err := Open()
	if err != nil {
		t.Fatal(err)
	}
	defer master.Close()

	if !strings.HasPrefix(slavePath, "/dev/pts/") {
		t.Errorf("slave path = %q, want /dev/pts/N", slavePath)
	}
	slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("slave not usable after unlock: %v", err)
	}
	slave.Close()
}

func TestChildSeesATerminal(t *testing.T) {
	requirePTY(t)

	cmd := exec.Command("/bin/sh", "-c", "test -t 0 && echo terminal")
	session, err := Start(cmd)
	if err != nil {
		t.Fatal(err)
	}

	lines := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(session.master)
		for scanner.Scan() {
			if strings.Contains(scanner.Text(), "terminal") {
				lines <- scanner.Text()
				return
			}
		}
	}()

	line := testutil.RequireReceive(t, lines, 5*time.Second, "waiting for isatty result")
	if !strings.Contains(line, "terminal") {
		t.Errorf("child output %q, want isatty success", line)
	}
	if code, err := session.Wait(); err != nil || code != 0 {
		t.Errorf("wait = %d, %v", code, err)
	}
}

func TestCloseHangsUpChild(t *testing.T) {
	requirePTY(t)

	cmd := exec.Command("/bin/cat")
	session, err := Start(cmd)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		_, _ = session.Wait()
		close(done)
	}()

	if err := session.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	testutil.RequireClosed(t, done, 5*time.Second, "child did not exit after controlling-terminal hangup")
}

func TestResize(t *testing.T) {
	requirePTY(t)

	cmd := exec.Command("/bin/sh", "-c", "sleep 1")
	session, err := Start(cmd)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Wait()

	if err := session.Resize(120, 40); err != nil {
		t.Errorf("resize failed: %v", err)
	}
}
