package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/exportd/internal/clip"
	"github.com/clipforge/exportd/internal/export"
)

// ExportService is what the handlers need from the orchestrator.
type ExportService interface {
	Submit(ctx context.Context, clipID string) (*export.Job, error)
	Status(ctx context.Context, jobID string) (*export.Job, error)
	ListRecent(ctx context.Context, limit int) ([]*export.Job, error)
	Cancel(ctx context.Context, jobID string) error
}

// ToolChecker reports whether the media tools still answer.
type ToolChecker interface {
	Check(ctx context.Context) error
}

// LocalBlobResolver is implemented by blob stores that keep objects on
// local disk and can hand out a path for streaming.
type LocalBlobResolver interface {
	LocalPath(locator string) (string, bool)
}

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Post("/clips", createClipHandler(cfg))
	r.Get("/clips/{id}", getClipHandler(cfg))

	r.Post("/exports", createExportHandler(cfg))
	r.Get("/exports", listExportsHandler(cfg))
	r.Get("/exports/{id}", getExportHandler(cfg))
	r.Get("/exports/{id}/download", downloadExportHandler(cfg))
	r.Delete("/exports/{id}", cancelExportHandler(cfg))

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			Version: "0.1.0",
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
			Tools:   "ok",
		}

		if cfg.Tools != nil {
			if err := cfg.Tools.Check(r.Context()); err != nil {
				cfg.Logger.Error("health check: media tools unavailable", "error", err)
				resp.Status = "degraded"
				resp.Tools = err.Error()
				WriteJSON(w, http.StatusServiceUnavailable, resp)
				return
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func createClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateClipRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.SourceLocator == "" {
			WriteError(w, http.StatusBadRequest, "source_locator is required", "BAD_REQUEST")
			return
		}
		if req.StartTime < 0 || req.EndTime <= req.StartTime {
			WriteError(w, http.StatusBadRequest, "start_time must be non-negative and before end_time", "BAD_REQUEST")
			return
		}
		ratio, err := clip.ParseAspectRatio(req.AspectRatio)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		c := &clip.Clip{
			UserID:         req.UserID,
			Title:          req.Title,
			SourceLocator:  req.SourceLocator,
			SourceDuration: req.SourceDuration,
			StartTime:      req.StartTime,
			EndTime:        req.EndTime,
			AspectRatio:    ratio,
			CaptionTrack:   req.CaptionTrack,
		}
		if err := cfg.Clips.Create(r.Context(), c); err != nil {
			cfg.Logger.Error("clip create failed", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to register clip", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusCreated, ClipToResponse(c))
	}
}

func getClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "clip id required", "BAD_REQUEST")
			return
		}

		c, err := cfg.Clips.Get(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if c == nil {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, ClipToResponse(c))
	}
}

func createExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.ClipID == "" {
			WriteError(w, http.StatusBadRequest, "clip_id is required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Exports.Submit(r.Context(), req.ClipID)
		if err != nil {
			var verr *export.ValidationError
			switch {
			case errors.As(err, &verr):
				WriteError(w, http.StatusUnprocessableEntity, verr.Reason, "VALIDATION")
			case errors.Is(err, export.ErrExportInFlight):
				WriteError(w, http.StatusConflict, "an export for this clip is already in flight", "EXPORT_IN_FLIGHT")
			default:
				cfg.Logger.Error("export submit failed", "clip_id", req.ClipID, "error", err)
				WriteError(w, http.StatusInternalServerError, "failed to create export", "INTERNAL_ERROR")
			}
			return
		}

		WriteJSON(w, http.StatusAccepted, JobToResponse(job))
	}
}

func listExportsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Exports.ListRecent(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list exports", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "export id required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Exports.Status(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "export not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

// downloadExportHandler streams a finished export when the blob store
// keeps files on local disk. Remote object stores serve their own
// download URLs; this endpoint exists for single-host deployments.
func downloadExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "export id required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Exports.Status(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "export not found", "NOT_FOUND")
			return
		}
		if job.State != export.StateSucceeded {
			WriteError(w, http.StatusConflict, "export has no downloadable output", "NOT_READY")
			return
		}

		local, ok := cfg.Blobs.(LocalBlobResolver)
		if !ok || cfg.Media == nil {
			WriteError(w, http.StatusConflict, "downloads are served by the object store", "REMOTE_STORAGE")
			return
		}
		path, ok := local.LocalPath(job.OutputLocator)
		if !ok {
			WriteError(w, http.StatusNotFound, "output blob not found", "NOT_FOUND")
			return
		}

		if err := cfg.Media.ServeFile(w, r, path); err != nil {
			cfg.Logger.Error("export download error", "job_id", id, "error", err)
		}
	}
}

func cancelExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "export id required", "BAD_REQUEST")
			return
		}

		err := cfg.Exports.Cancel(r.Context(), id)
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, export.ErrNotFound):
			WriteError(w, http.StatusNotFound, "export not found", "NOT_FOUND")
		case errors.Is(err, export.ErrNotCancellable):
			WriteError(w, http.StatusConflict, "export is not cancellable", "NOT_CANCELLABLE")
		default:
			cfg.Logger.Error("export cancel failed", "job_id", id, "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to cancel export", "INTERNAL_ERROR")
		}
	}
}
