// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// The substrate exit-code contract. Scripts and CI depend on these
// values staying stable.
const (
	// ExitOK means the command (and, for run, the target) succeeded.
	ExitOK = 0
	// ExitUsage is a user or policy error: bad flags, malformed
	// policy documents, invariant violations.
	ExitUsage = 2
	// ExitFailClosed means required isolation could not be provided
	// and the command refused to run.
	ExitFailClosed = 3
	// ExitUnsupported is a missing prerequisite: unsupported
	// platform, failed verification, absent capability.
	ExitUnsupported = 4
)

// ExitError signals a specific exit code without printing an extra
// error message. Commands return it when they have already written
// their own output (a checklist, a report) and a non-zero exit is the
// outcome rather than an unexpected failure.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode lets main distinguish "handled non-zero exit" from
// "unexpected error to display".
func (e *ExitError) ExitCode() int {
	return e.Code
}

// UsageError is a user mistake: unknown command, bad flag, missing
// argument. Main prints it and exits with ExitUsage.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return e.Message }

// ExitCode maps user mistakes to the usage exit code.
func (e *UsageError) ExitCode() int { return ExitUsage }
