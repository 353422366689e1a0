// Package testsuite holds the test-case data model, response
// evaluation, the sequential test runner and the run export records.
package testsuite

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TestCase is the immutable definition of one protocol test.
type TestCase struct {
	// Unique ID, assigned once at creation, never reused.
	ID string `json:"id"`
	// Display label.
	Name string `json:"name"`
	// Command sent verbatim (plus line ending) to the device.
	Command string `json:"command"`
	// Substrings that must all occur in the captured response.
	Expected []string `json:"expected,omitempty"`
	// Line content that signals end-of-response. A received line that
	// is exactly equal to it stops accumulation.
	Terminator string `json:"terminator"`
	// Maximum wait, from command send, for the terminator.
	TimeoutMS int `json:"timeout_ms"`
	// Numeric assertions, "<prefix> <op> <value>" or "<prefix> in <lo>..<hi>".
	NumericChecks []string `json:"numeric_checks,omitempty"`
	// Navigation commands executed silently before/after the test
	// command. They never reach the terminal stream or session log.
	SetupCommands    []string `json:"setup_commands,omitempty"`
	TeardownCommands []string `json:"teardown_commands,omitempty"`
	// Per-step timeout for each setup/teardown command.
	NavTimeoutMS int `json:"nav_timeout_ms"`
	// Commands sent fire-and-forget to the secondary trigger port.
	TriggerCommands []string `json:"trigger_commands,omitempty"`
	// When to fire the trigger commands: "before_setup" (default) or
	// "after_setup".
	TriggerTiming string `json:"trigger_timing,omitempty"`
	// Whether the test is included in a run-all pass.
	Enabled bool `json:"enabled"`
}

// NewTestCase returns a TestCase with a fresh ID and the defaults the
// suite editor starts from.
func NewTestCase(name, command string) TestCase {
	return TestCase{
		ID:           uuid.NewString(),
		Name:         name,
		Command:      command,
		Terminator:   "OK",
		TimeoutMS:    2000,
		NavTimeoutMS: 1000,
		Enabled:      true,
	}
}

// Timeout returns the main-command deadline.
func (tc TestCase) Timeout() time.Duration {
	return time.Duration(tc.TimeoutMS) * time.Millisecond
}

// NavTimeout returns the per-step setup/teardown deadline.
func (tc TestCase) NavTimeout() time.Duration {
	return time.Duration(tc.NavTimeoutMS) * time.Millisecond
}

// Status is the outcome classification of one execution.
type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusTimeout Status = "TIMEOUT"
	StatusError   Status = "ERROR"
)

// TestResult is the finalized outcome of one TestCase execution.
type TestResult struct {
	TestID string `json:"test_id"`
	Status Status `json:"status"`
	// Raw response text with failure diagnostics appended.
	Actual    string    `json:"actual"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Duration returns the execution wall time.
func (r TestResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// nonEmpty strips blank entries, the way the suite editor's free-form
// text fields produce them.
func nonEmpty(lines []string) []string {
	var out []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
