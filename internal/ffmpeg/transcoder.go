package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/clipforge/exportd/internal/export"
)

// Transcode cuts, scales, pads, optionally subtitle-burns, and
// re-encodes one clip. It never retries; retry policy belongs to the
// orchestrator. On any failure the partial output file is removed.
func (t *Tools) Transcode(ctx context.Context, req export.TranscodeRequest) error {
	budget := TranscodeBudget(req.Duration)
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	args := buildTranscodeArgs(req)
	cmd := exec.CommandContext(runCtx, t.ffmpegPath, args...)
	configureProcessGroup(cmd)

	stderr := &tailWriter{limit: maxStderrBytes}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("attach progress pipe: %w", err)
	}

	t.logger.Info("starting transcode",
		"input", req.InputPath,
		"output", req.OutputPath,
		"start", req.StartTime,
		"duration", req.Duration,
		"budget", budget.String(),
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		parseProgress(stdout, req.Duration, req.OnProgress)
	}()

	// Drain the pipe before Wait: Wait closes it on process exit and
	// would race the reader out of the stream's tail.
	<-progressDone
	runErr := cmd.Wait()
	elapsed := time.Since(start)

	if runErr != nil {
		os.Remove(req.OutputPath)

		if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			t.logger.Warn("transcode killed on timeout",
				"budget", budget.String(), "elapsed_ms", elapsed.Milliseconds())
			return &export.TranscodeTimeoutError{Budget: budget}
		}
		if ctx.Err() != nil {
			// Caller cancellation; the child is already dead.
			return ctx.Err()
		}

		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		t.logger.Warn("transcode failed",
			"exit_code", exitCode,
			"elapsed_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderr.String(), 512),
		)
		return &export.TranscodeExitError{ExitCode: exitCode, StderrTail: stderr.String()}
	}

	if _, err := os.Stat(req.OutputPath); err != nil {
		return &export.TranscodeExitError{
			ExitCode:   0,
			StderrTail: "ffmpeg exited cleanly but produced no output file",
		}
	}

	t.logger.Info("transcode complete", "elapsed_ms", elapsed.Milliseconds())
	return nil
}

// Thumbnail extracts a single scaled frame, matching the poster images
// the rest of the product expects alongside each clip.
func (t *Tools) Thumbnail(ctx context.Context, inputPath, outputPath string, offset float64) error {
	runCtx, cancel := context.WithTimeout(ctx, thumbnailBudget)
	defer cancel()

	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-loglevel", "error",
		"-ss", formatSeconds(offset),
		"-i", inputPath,
		"-frames:v", "1",
		"-vf", "scale=1280:-2",
		outputPath,
	}

	cmd := exec.CommandContext(runCtx, t.ffmpegPath, args...)
	configureProcessGroup(cmd)
	stderr := &tailWriter{limit: maxStderrBytes}
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("thumbnail extraction failed: %s: %w", truncate(stderr.String(), 512), err)
	}
	return nil
}

// buildTranscodeArgs produces the full deterministic ffmpeg invocation.
// Fast-seek before -i, output duration via -t, scale+pad (never crop),
// optional subtitle burn, and a faststart MP4 for progressive playback.
func buildTranscodeArgs(req export.TranscodeRequest) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-loglevel", "error",
		"-progress", "pipe:1", "-nostats",
		"-ss", formatSeconds(req.StartTime),
		"-i", req.InputPath,
		"-t", formatSeconds(req.Duration),
		"-vf", buildVideoFilter(req.Plan),
		"-c:v", req.Plan.VideoCodec,
		"-preset", req.Plan.Preset,
		"-crf", strconv.Itoa(req.Plan.CRF),
		"-c:a", req.Plan.AudioCodec,
		"-b:a", req.Plan.AudioBitrate,
		"-movflags", "+faststart",
	}
	return append(args, req.OutputPath)
}

// buildVideoFilter scales the source down to fit inside the target box
// preserving its aspect ratio, then center-pads to exactly the target
// dimensions. Cropping would silently destroy content.
func buildVideoFilter(plan export.RenderPlan) string {
	w, h := plan.OutputWidth, plan.OutputHeight
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=%s",
		w, h, w, h, plan.PadColor,
	)
	if plan.SubtitlePath != "" {
		filter += ",subtitles=" + escapeFilterPath(plan.SubtitlePath)
	}
	return filter
}

// escapeFilterPath escapes a filename for use inside an ffmpeg filter
// graph, where backslash, quote, colon, and the graph separators are
// all structural.
func escapeFilterPath(path string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`,`, `\,`,
		`;`, `\;`,
		`[`, `\[`,
		`]`, `\]`,
	)
	return r.Replace(path)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// configureProcessGroup puts the child in its own process group and
// kills the whole group on cancellation, so ffmpeg's own children
// cannot survive a timeout.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
