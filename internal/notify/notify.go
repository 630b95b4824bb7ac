// Package notify holds the fire-and-forget collaborators invoked after
// an export reaches a terminal state: the user notification sink and the
// credit/usage ledger. Failures here are logged and never affect job
// state.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Event describes a terminal export transition for downstream consumers.
type Event struct {
	Type          string    `json:"type"`
	JobID         string    `json:"job_id"`
	ClipID        string    `json:"clip_id"`
	State         string    `json:"state"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	OutputLocator string    `json:"output_locator,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type Sink interface {
	Notify(ctx context.Context, userID string, ev Event) error
}

type UsageLedger interface {
	// IncrementUsage records rendered seconds against a user's quota.
	IncrementUsage(ctx context.Context, userID string, seconds float64) error
}

// LogSink is the stub used when no notification endpoint is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, userID string, ev Event) error {
	s.logger.Info("notification sink stub: event",
		"user_id", userID, "type", ev.Type, "job_id", ev.JobID, "state", ev.State)
	return nil
}

// LogLedger is the stub usage ledger.
type LogLedger struct {
	logger *slog.Logger
}

func NewLogLedger(logger *slog.Logger) *LogLedger {
	return &LogLedger{logger: logger}
}

func (l *LogLedger) IncrementUsage(ctx context.Context, userID string, seconds float64) error {
	l.logger.Info("usage ledger stub: increment requested",
		"user_id", userID, "seconds", seconds)
	return nil
}
