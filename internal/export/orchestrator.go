package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/clipforge/exportd/internal/clip"
	"github.com/clipforge/exportd/internal/logging"
	"github.com/clipforge/exportd/internal/notify"
	"github.com/clipforge/exportd/internal/storage"
)

// Options configures the orchestrator's admission control and policies.
type Options struct {
	MinClipDuration time.Duration
	MaxClipDuration time.Duration
	WorkDir         string
	MaxConcurrent   int
	UploadAttempts  int
}

// Orchestrator drives export jobs from submission to a terminal state.
// It is the single writer of job state: the transcoder and subtitle
// renderer never touch the store.
type Orchestrator struct {
	store  JobStore
	clips  clip.Repository
	trans  Transcoder
	blobs  storage.Store
	sink   notify.Sink
	ledger notify.UsageLedger
	opts   Options
	logger *slog.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	slots   chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewOrchestrator(
	store JobStore,
	clips clip.Repository,
	trans Transcoder,
	blobs storage.Store,
	sink notify.Sink,
	ledger notify.UsageLedger,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.UploadAttempts < 1 {
		opts.UploadAttempts = 1
	}

	baseCtx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		store:   store,
		clips:   clips,
		trans:   trans,
		blobs:   blobs,
		sink:    sink,
		ledger:  ledger,
		opts:    opts,
		logger:  logger,
		baseCtx: baseCtx,
		stop:    stop,
		slots:   make(chan struct{}, opts.MaxConcurrent),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Submit validates the clip, creates a queued job, and schedules it.
// Invalid input is rejected synchronously with no job record; a clip
// with an export already in flight is rejected with ErrExportInFlight.
func (o *Orchestrator) Submit(ctx context.Context, clipID string) (*Job, error) {
	c, err := o.clips.Get(ctx, clipID)
	if err != nil {
		return nil, fmt.Errorf("load clip %s: %w", clipID, err)
	}
	if c == nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("clip %s not found", clipID)}
	}
	if err := o.validate(c); err != nil {
		return nil, err
	}

	job, err := o.store.Create(ctx, clipID)
	if err != nil {
		return nil, err
	}

	o.logger.Info("export job queued", "job_id", job.ID, "clip_id", clipID)
	o.schedule(job, c)
	return job, nil
}

// Status returns the current job record, nil if unknown.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*Job, error) {
	return o.store.Get(ctx, jobID)
}

// ListRecent returns recently created jobs, newest first.
func (o *Orchestrator) ListRecent(ctx context.Context, limit int) ([]*Job, error) {
	return o.store.ListRecent(ctx, limit)
}

// Cancel aborts a queued or running job. Queued jobs terminalise
// immediately; running jobs get their context cancelled, which kills
// the transcoder's process group and flows through the normal failure
// path. Terminal jobs are not cancellable.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrNotFound
	}
	if job.State.Terminal() {
		return ErrNotCancellable
	}

	if job.State == StateQueued {
		ok, err := o.store.CancelQueued(ctx, jobID)
		if err != nil {
			return err
		}
		if ok {
			o.cancelContext(jobID)
			o.logger.Info("queued export cancelled", "job_id", jobID)
			return nil
		}
		// The job started running between the read and the write.
	}

	if o.cancelContext(jobID) {
		o.logger.Info("running export cancellation requested", "job_id", jobID)
		return nil
	}

	// Running, but not driven by this process (replica or stale row).
	return ErrNotCancellable
}

// Shutdown cancels all in-flight jobs and waits for their goroutines.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stop()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) validate(c *clip.Clip) error {
	if _, err := clip.ParseAspectRatio(string(c.AspectRatio)); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if c.SourceLocator == "" {
		return &ValidationError{Reason: "clip has no source locator"}
	}
	if c.StartTime < 0 || c.EndTime <= c.StartTime {
		return &ValidationError{Reason: fmt.Sprintf("invalid time range [%.3f, %.3f]", c.StartTime, c.EndTime)}
	}
	if c.SourceDuration > 0 && c.EndTime > c.SourceDuration {
		return &ValidationError{Reason: fmt.Sprintf("clip ends at %.3fs but source is %.3fs long", c.EndTime, c.SourceDuration)}
	}

	dur := time.Duration(c.Duration() * float64(time.Second))
	if dur < o.opts.MinClipDuration || dur > o.opts.MaxClipDuration {
		return &ValidationError{Reason: fmt.Sprintf(
			"clip duration %.3fs outside allowed window [%s, %s]",
			c.Duration(), o.opts.MinClipDuration, o.opts.MaxClipDuration)}
	}
	return nil
}

// schedule hands the job to a worker goroutine gated by the pool
// semaphore. Jobs beyond the cap stay queued until a slot frees.
func (o *Orchestrator) schedule(job *Job, c *clip.Clip) {
	runCtx, cancel := context.WithCancel(o.baseCtx)
	o.mu.Lock()
	o.cancels[job.ID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			cancel()
			o.mu.Lock()
			delete(o.cancels, job.ID)
			o.mu.Unlock()
		}()

		select {
		case o.slots <- struct{}{}:
			defer func() { <-o.slots }()
		case <-runCtx.Done():
			o.finishCancelled(job, c, "cancelled while queued")
			return
		}

		if runCtx.Err() != nil {
			o.finishCancelled(job, c, "cancelled while queued")
			return
		}
		o.run(runCtx, job, c)
	}()
}

// run executes steps 4-9 of the export: workspace, download, subtitle
// render, transcode, thumbnail, upload, terminal write. Job state is
// always written with a background context so cancellation of the work
// never blocks the bookkeeping.
func (o *Orchestrator) run(ctx context.Context, job *Job, c *clip.Clip) {
	log := logging.WithClipID(logging.WithJobID(o.logger, job.ID), c.ID)

	if err := o.store.MarkRunning(context.Background(), job.ID); err != nil {
		// Usually a cancellation that won the race; the job is terminal.
		log.Warn("could not mark job running", "error", err)
		return
	}

	workspace, err := os.MkdirTemp(o.opts.WorkDir, "export-"+shortID(job.ID)+"-")
	if err != nil {
		o.fail(job, c, KindInternal, "create workspace: "+err.Error())
		return
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			log.Error("workspace cleanup failed", "path", workspace, "error", err)
		}
	}()

	srcPath := filepath.Join(workspace, "source"+sourceExt(c.SourceLocator))
	if err := o.blobs.Download(ctx, c.SourceLocator, srcPath); err != nil {
		if ctx.Err() != nil {
			o.fail(job, c, KindCancelled, "cancelled during source download")
		} else {
			o.fail(job, c, KindInternal, "download source: "+err.Error())
		}
		return
	}
	o.progress(job.ID, 10)

	probe, err := o.trans.Probe(ctx, srcPath)
	if err != nil {
		if ctx.Err() != nil {
			o.fail(job, c, KindCancelled, "cancelled during source probe")
		} else {
			o.fail(job, c, KindTranscodeFailed, "source probe: "+err.Error())
		}
		return
	}
	if probe.Duration > 0 && probe.Duration+0.5 < c.EndTime {
		o.fail(job, c, KindTranscodeFailed, fmt.Sprintf(
			"source is %.2fs long but clip ends at %.2fs", probe.Duration, c.EndTime))
		return
	}

	plan := NewRenderPlan(c.AspectRatio)
	if cues := RenderSubtitles(c.CaptionTrack, c.StartTime, c.EndTime); len(cues) > 0 {
		subPath := filepath.Join(workspace, "captions.srt")
		if err := writeSubtitleFile(subPath, cues); err != nil {
			o.fail(job, c, KindInternal, "write subtitle file: "+err.Error())
			return
		}
		plan.SubtitlePath = subPath
		log.Info("subtitles rendered", "cues", len(cues))
	}

	outPath := filepath.Join(workspace, "clip.mp4")
	err = o.trans.Transcode(ctx, TranscodeRequest{
		InputPath:  srcPath,
		OutputPath: outPath,
		StartTime:  c.StartTime,
		Duration:   c.Duration(),
		Plan:       plan,
		OnProgress: o.transcodeProgress(job.ID),
	})
	if err != nil {
		kind, detail := classifyTranscodeError(ctx, err)
		o.fail(job, c, kind, detail)
		return
	}
	o.progress(job.ID, 85)

	thumbPath := filepath.Join(workspace, "thumbnail.jpg")
	if err := o.trans.Thumbnail(ctx, outPath, thumbPath, 1.0); err != nil {
		log.Warn("thumbnail generation failed", "error", err)
		thumbPath = ""
	}

	baseName := fmt.Sprintf("%s_%s", storage.SanitizeName(c.Title, 40), shortID(job.ID))
	outputLocator, err := o.uploadWithRetry(ctx, outPath, path.Join(c.UserID, "clips", baseName+".mp4"), "video/mp4")
	if err != nil {
		if ctx.Err() != nil {
			o.fail(job, c, KindCancelled, "cancelled during upload")
		} else {
			// Keep the render/persist distinction visible to operators.
			o.fail(job, c, KindUploadFailed, "transcode succeeded; upload failed: "+err.Error())
		}
		return
	}
	o.progress(job.ID, 95)

	thumbnailLocator := ""
	if thumbPath != "" {
		loc, err := o.uploadWithRetry(ctx, thumbPath, path.Join(c.UserID, "clips", "thumbnails", baseName+".jpg"), "image/jpeg")
		if err != nil {
			log.Warn("thumbnail upload failed", "error", err)
		} else {
			thumbnailLocator = loc
		}
	}

	if err := o.store.MarkSucceeded(context.Background(), job.ID, outputLocator, thumbnailLocator); err != nil {
		log.Warn("could not mark job succeeded", "error", err)
		return
	}

	log.Info("export complete", "output", outputLocator)
	o.notifyTerminal(c, job.ID, StateSucceeded, "", outputLocator)
	o.recordUsage(c)
}

func classifyTranscodeError(ctx context.Context, err error) (ErrorKind, string) {
	if ctx.Err() != nil {
		return KindCancelled, "cancelled during transcode"
	}
	var timeoutErr *TranscodeTimeoutError
	if errors.As(err, &timeoutErr) {
		return KindTranscodeTimeout, timeoutErr.Error()
	}
	var exitErr *TranscodeExitError
	if errors.As(err, &exitErr) {
		return KindTranscodeFailed, exitErr.Error()
	}
	return KindInternal, "transcode: " + err.Error()
}

// transcodeProgress maps tool progress into the 10-80 band and forwards
// it in coarse 10 percent steps.
func (o *Orchestrator) transcodeProgress(jobID string) func(int) {
	last := -1
	return func(pct int) {
		scaled := 10 + pct*70/100
		coarse := scaled / 10 * 10
		if coarse <= last {
			return
		}
		last = coarse
		o.progress(jobID, coarse)
	}
}

func (o *Orchestrator) progress(jobID string, pct int) {
	err := o.store.UpdateProgress(context.Background(), jobID, pct)
	if err != nil && !errors.Is(err, ErrNotRunning) && !errors.Is(err, ErrNotFound) {
		o.logger.Debug("progress update dropped", "job_id", jobID, "error", err)
	}
}

func (o *Orchestrator) fail(job *Job, c *clip.Clip, kind ErrorKind, detail string) {
	err := o.store.MarkFailed(context.Background(), job.ID, kind, detail)
	switch {
	case errors.Is(err, ErrAlreadyTerminal):
		o.logger.Warn("duplicate terminal transition rejected", "job_id", job.ID, "kind", string(kind))
		return
	case err != nil:
		o.logger.Error("could not mark job failed", "job_id", job.ID, "error", err)
		return
	}
	o.logger.Warn("export failed", "job_id", job.ID, "kind", string(kind), "detail", detail)
	o.notifyTerminal(c, job.ID, StateFailed, kind, "")
}

func (o *Orchestrator) finishCancelled(job *Job, c *clip.Clip, detail string) {
	err := o.store.MarkFailed(context.Background(), job.ID, KindCancelled, detail)
	if err != nil && !errors.Is(err, ErrAlreadyTerminal) {
		o.logger.Error("could not mark cancelled job", "job_id", job.ID, "error", err)
	}
}

func (o *Orchestrator) uploadWithRetry(ctx context.Context, srcPath, key, contentType string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= o.opts.UploadAttempts; attempt++ {
		locator, err := o.blobs.Upload(ctx, srcPath, key, contentType)
		if err == nil {
			return locator, nil
		}
		lastErr = err

		var ue *storage.UploadError
		if errors.As(err, &ue) && !ue.IsRetryable() {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < o.opts.UploadAttempts {
			o.logger.Warn("upload attempt failed, retrying",
				"key", key, "attempt", attempt, "error", err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", lastErr
}

func (o *Orchestrator) notifyTerminal(c *clip.Clip, jobID string, state State, kind ErrorKind, locator string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ev := notify.Event{
		Type:          "export." + string(state),
		JobID:         jobID,
		ClipID:        c.ID,
		State:         string(state),
		ErrorKind:     string(kind),
		OutputLocator: locator,
		OccurredAt:    time.Now(),
	}
	if err := o.sink.Notify(ctx, c.UserID, ev); err != nil {
		o.logger.Warn("notification delivery failed", "job_id", jobID, "error", err)
	}
}

// recordUsage bills rendered seconds once per successful job. Failures
// are logged; usage tracking is best-effort, never transactional with
// the export.
func (o *Orchestrator) recordUsage(c *clip.Clip) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := o.ledger.IncrementUsage(ctx, c.UserID, c.Duration()); err != nil {
		o.logger.Warn("usage increment failed", "clip_id", c.ID, "error", err)
	}
}

func (o *Orchestrator) cancelContext(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	cancel, ok := o.cancels[jobID]
	if !ok {
		return false
	}
	cancel()
	return true
}

func writeSubtitleFile(path string, cues []SubtitleCue) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSRT(f, cues); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func sourceExt(locator string) string {
	ext := filepath.Ext(locator)
	if ext == "" || len(ext) > 5 {
		return ".mp4"
	}
	return ext
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
