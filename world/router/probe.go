// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds how long a routing decision may wait on
// an agent socket.
const DefaultProbeTimeout = 2 * time.Second

// SocketProbe probes an out-of-process world agent over its Unix
// socket: one capabilities request, one status line, bounded by
// timeout in each direction. A timeout means unavailable.
func SocketProbe(socketPath string, timeout time.Duration) Probe {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return func(level IsolationLevel) error {
		conn, err := net.DialTimeout("unix", socketPath, timeout)
		if err != nil {
			return fmt.Errorf("world agent socket %s: %w", socketPath, err)
		}
		defer conn.Close()

		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("world agent socket %s: %w", socketPath, err)
		}
		if _, err := fmt.Fprintf(conn, "GET /v1/capabilities HTTP/1.1\r\nHost: substrate\r\nConnection: close\r\n\r\n"); err != nil {
			return fmt.Errorf("world agent socket %s: write: %w", socketPath, err)
		}

		status, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			return fmt.Errorf("world agent socket %s: read: %w", socketPath, err)
		}
		if !strings.Contains(status, " 200 ") {
			return fmt.Errorf("world agent at %s answered %q", socketPath, strings.TrimRight(status, "\r\n"))
		}
		return nil
	}
}
