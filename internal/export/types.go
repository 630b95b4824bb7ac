// Package export implements the clip export pipeline: job state machine,
// geometry resolution, subtitle rendering, and the orchestrator that
// drives a transcode from request to terminal state.
package export

import (
	"context"
	"time"
)

// State is the lifecycle position of an export job. A job transitions
// queued -> running -> succeeded | failed, and never leaves a terminal
// state.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// ErrorKind classifies a failed job. Every failure written to the store
// carries exactly one of these; no unclassified kind is ever persisted.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindTranscodeFailed  ErrorKind = "transcode_failed"
	KindTranscodeTimeout ErrorKind = "transcode_timeout"
	KindUploadFailed     ErrorKind = "upload_failed"
	KindCancelled        ErrorKind = "cancelled"
	KindInternal         ErrorKind = "internal"
)

// Job is one attempt to render one clip into a deliverable file.
type Job struct {
	ID               string     `json:"id"`
	ClipID           string     `json:"clip_id"`
	State            State      `json:"state"`
	Progress         int        `json:"progress"`
	ErrorKind        ErrorKind  `json:"error_kind,omitempty"`
	ErrorDetail      string     `json:"error_detail,omitempty"`
	OutputLocator    string     `json:"output_locator,omitempty"`
	ThumbnailLocator string     `json:"thumbnail_locator,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// RenderPlan carries the concrete encode decisions for one job.
type RenderPlan struct {
	OutputWidth  int
	OutputHeight int
	PadColor     string
	SubtitlePath string // empty = no subtitle burn
	VideoCodec   string
	AudioCodec   string
	Preset       string
	CRF          int
	AudioBitrate string
}

// TranscodeRequest describes one invocation of the external media tool.
type TranscodeRequest struct {
	InputPath  string
	OutputPath string
	StartTime  float64 // seconds into the source
	Duration   float64 // seconds
	Plan       RenderPlan
	// OnProgress receives percent estimates parsed from the tool's
	// status stream. Optional; never required for completion.
	OnProgress func(percent int)
}

// ProbeResult is the source metadata the transcoder can report.
type ProbeResult struct {
	Duration float64
	Width    int
	Height   int
	Codec    string
}

// Transcoder is the process boundary around the external media tool.
// Implementations must guarantee that on any return path the child
// process is not left running.
type Transcoder interface {
	Transcode(ctx context.Context, req TranscodeRequest) error
	Probe(ctx context.Context, path string) (*ProbeResult, error)
	Thumbnail(ctx context.Context, inputPath, outputPath string, offset float64) error
}
