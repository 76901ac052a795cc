// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package checks is the shared result and checklist-printing
// infrastructure for substrate's diagnostic commands (world doctor,
// world verify).
package checks

import (
	"fmt"
	"io"
)

// Status of a single check.
type Status string

const (
	// StatusPass means the check succeeded.
	StatusPass Status = "pass"
	// StatusFail means the check found a problem.
	StatusFail Status = "fail"
	// StatusWarn means degraded but functional.
	StatusWarn Status = "warn"
	// StatusSkip means the check could not run here (platform or
	// privilege gap).
	StatusSkip Status = "skip"
)

// Result is one check outcome.
type Result struct {
	// Name identifies the check (stable, machine-keyable).
	Name string `json:"name"`
	// Status is the outcome.
	Status Status `json:"status"`
	// Message is the human-readable detail.
	Message string `json:"message,omitempty"`
	// FixHint tells the operator what to do about a fail or warn.
	FixHint string `json:"fix_hint,omitempty"`
}

// Pass creates a passing result.
func Pass(name, message string) Result {
	return Result{Name: name, Status: StatusPass, Message: message}
}

// Fail creates a failing result with a remediation hint.
func Fail(name, message, fixHint string) Result {
	return Result{Name: name, Status: StatusFail, Message: message, FixHint: fixHint}
}

// Warn creates a degraded-but-functional result.
func Warn(name, message, fixHint string) Result {
	return Result{Name: name, Status: StatusWarn, Message: message, FixHint: fixHint}
}

// Skip creates a could-not-run-here result.
func Skip(name, reason string) Result {
	return Result{Name: name, Status: StatusSkip, Message: reason}
}

// Outcome summarizes a checklist.
type Outcome struct {
	Passed  int
	Failed  int
	Warned  int
	Skipped int
}

// OK reports whether nothing failed.
func (o Outcome) OK() bool { return o.Failed == 0 }

// PrintChecklist writes results in the fixed-width checklist format
// and returns the tally.
func PrintChecklist(w io.Writer, results []Result) Outcome {
	var outcome Outcome
	for _, result := range results {
		fmt.Fprintf(w, "[%-5s]  %-40s  %s\n", result.Status, result.Name, result.Message)
		if result.FixHint != "" && result.Status != StatusPass {
			fmt.Fprintf(w, "         %-40s  hint: %s\n", "", result.FixHint)
		}
		switch result.Status {
		case StatusPass:
			outcome.Passed++
		case StatusFail:
			outcome.Failed++
		case StatusWarn:
			outcome.Warned++
		case StatusSkip:
			outcome.Skipped++
		}
	}
	return outcome
}
