package export

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyTerminal signals an attempted second terminal transition.
	// It points at a logic error upstream and is surfaced, not fatal.
	ErrAlreadyTerminal = errors.New("export job is already in a terminal state")

	// ErrExportInFlight is returned when a clip already has a queued or
	// running export. The second submission is rejected, not queued.
	ErrExportInFlight = errors.New("an export for this clip is already queued or running")

	// ErrNotFound is returned for unknown job IDs.
	ErrNotFound = errors.New("export job not found")

	// ErrNotRunning is returned for progress writes against a job that
	// is not currently running. Callers treat it as a no-op condition.
	ErrNotRunning = errors.New("export job is not running")

	// ErrNotCancellable is returned when cancelling a terminal job.
	ErrNotCancellable = errors.New("export job is not cancellable")
)

// ValidationError rejects a bad clip spec before any job record exists.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid clip spec: " + e.Reason
}

// TranscodeExitError is a non-zero exit of the external media tool,
// carrying a bounded tail of its stderr for diagnostics.
type TranscodeExitError struct {
	ExitCode   int
	StderrTail string
}

func (e *TranscodeExitError) Error() string {
	return fmt.Sprintf("transcode exited %d: %s", e.ExitCode, e.StderrTail)
}

// TranscodeTimeoutError means the external tool exceeded its wall-clock
// budget and was killed.
type TranscodeTimeoutError struct {
	Budget time.Duration
}

func (e *TranscodeTimeoutError) Error() string {
	return fmt.Sprintf("transcode exceeded %s budget and was killed", e.Budget)
}
