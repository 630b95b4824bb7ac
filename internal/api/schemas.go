package api

import (
	"time"

	"github.com/clipforge/exportd/internal/clip"
	"github.com/clipforge/exportd/internal/export"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
	Tools   string `json:"tools"`
}

type CreateClipRequest struct {
	UserID         string     `json:"user_id"`
	Title          string     `json:"title"`
	SourceLocator  string     `json:"source_locator"`
	SourceDuration float64    `json:"source_duration"`
	StartTime      float64    `json:"start_time"`
	EndTime        float64    `json:"end_time"`
	AspectRatio    string     `json:"aspect_ratio"`
	CaptionTrack   []clip.Cue `json:"caption_track,omitempty"`
}

type ClipResponse struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Title          string     `json:"title"`
	SourceLocator  string     `json:"source_locator"`
	SourceDuration float64    `json:"source_duration"`
	StartTime      float64    `json:"start_time"`
	EndTime        float64    `json:"end_time"`
	AspectRatio    string     `json:"aspect_ratio"`
	CaptionTrack   []clip.Cue `json:"caption_track,omitempty"`
	CreatedAt      string     `json:"created_at"`
}

type CreateExportRequest struct {
	ClipID string `json:"clip_id"`
}

type JobResponse struct {
	ID               string `json:"id"`
	ClipID           string `json:"clip_id"`
	State            string `json:"state"`
	Progress         int    `json:"progress"`
	ErrorKind        string `json:"error_kind,omitempty"`
	ErrorDetail      string `json:"error_detail,omitempty"`
	OutputLocator    string `json:"output_locator,omitempty"`
	ThumbnailLocator string `json:"thumbnail_locator,omitempty"`
	CreatedAt        string `json:"created_at"`
	StartedAt        string `json:"started_at,omitempty"`
	CompletedAt      string `json:"completed_at,omitempty"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ClipToResponse(c *clip.Clip) ClipResponse {
	return ClipResponse{
		ID:             c.ID,
		UserID:         c.UserID,
		Title:          c.Title,
		SourceLocator:  c.SourceLocator,
		SourceDuration: c.SourceDuration,
		StartTime:      c.StartTime,
		EndTime:        c.EndTime,
		AspectRatio:    string(c.AspectRatio),
		CaptionTrack:   c.CaptionTrack,
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
	}
}

func JobToResponse(j *export.Job) JobResponse {
	resp := JobResponse{
		ID:               j.ID,
		ClipID:           j.ClipID,
		State:            string(j.State),
		Progress:         j.Progress,
		ErrorKind:        string(j.ErrorKind),
		ErrorDetail:      j.ErrorDetail,
		OutputLocator:    j.OutputLocator,
		ThumbnailLocator: j.ThumbnailLocator,
		CreatedAt:        j.CreatedAt.Format(time.RFC3339),
	}
	if j.StartedAt != nil {
		resp.StartedAt = j.StartedAt.Format(time.RFC3339)
	}
	if j.CompletedAt != nil {
		resp.CompletedAt = j.CompletedAt.Format(time.RFC3339)
	}
	return resp
}
