// Package ffmpeg is the process boundary around the external media
// tools. It builds deterministic argument lists, captures bounded
// stderr tails, enforces wall-clock budgets, and guarantees that no
// child process outlives a call.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

const (
	maxStderrBytes = 4 * 1024 // 4 KB tail of stderr kept for diagnostics

	minTranscodeBudget = 60 * time.Second
	probeBudget        = 30 * time.Second
	thumbnailBudget    = 60 * time.Second
)

// Tools invokes ffmpeg and ffprobe as subprocesses.
type Tools struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

// NewTools resolves both binaries up front so a misconfigured host
// fails at startup, not mid-job.
func NewTools(ffmpegPath, ffprobePath string, logger *slog.Logger) (*Tools, error) {
	ffmpeg, err := resolveBinary(ffmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	ffprobe, err := resolveBinary(ffprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}

	logger.Info("media tools resolved", "ffmpeg", ffmpeg, "ffprobe", ffprobe)
	return &Tools{ffmpegPath: ffmpeg, ffprobePath: ffprobe, logger: logger}, nil
}

// Check verifies both binaries still answer; used by the health endpoint.
func (t *Tools) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for _, bin := range []string{t.ffmpegPath, t.ffprobePath} {
		cmd := exec.CommandContext(ctx, bin, "-version")
		cmd.Stdout = nil
		cmd.Stderr = nil
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s -version failed: %w", bin, err)
		}
	}
	return nil
}

func resolveBinary(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("no %s binary found on PATH", name)
}

// TranscodeBudget computes the hard wall-clock limit for a clip: three
// times the clip duration, floored at one minute.
func TranscodeBudget(clipSeconds float64) time.Duration {
	budget := time.Duration(3 * clipSeconds * float64(time.Second))
	if budget < minTranscodeBudget {
		budget = minTranscodeBudget
	}
	return budget
}

// tailWriter keeps only the last limit bytes written to it.
type tailWriter struct {
	buf   bytes.Buffer
	limit int
}

func (w *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	w.buf.Write(p)
	if w.buf.Len() > w.limit {
		b := w.buf.Bytes()
		tail := make([]byte, w.limit)
		copy(tail, b[len(b)-w.limit:])
		w.buf.Reset()
		w.buf.Write(tail)
	}
	return n, nil
}

func (w *tailWriter) String() string {
	return w.buf.String()
}
