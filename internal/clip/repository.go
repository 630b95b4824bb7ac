package clip

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Repository interface {
	Create(ctx context.Context, c *Clip) error
	Get(ctx context.Context, id string) (*Clip, error)
	SourceDuration(ctx context.Context, locator string) (float64, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, c *Clip) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	var captions sql.NullString
	if len(c.CaptionTrack) > 0 {
		raw, err := json.Marshal(c.CaptionTrack)
		if err != nil {
			return fmt.Errorf("marshal caption track: %w", err)
		}
		captions = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clips (id, user_id, title, source_locator, source_duration, start_time, end_time, aspect_ratio, caption_track, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.UserID, c.Title, c.SourceLocator, c.SourceDuration, c.StartTime, c.EndTime, string(c.AspectRatio), captions, c.CreatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Clip, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, source_locator, source_duration, start_time, end_time, aspect_ratio, caption_track, created_at
		FROM clips WHERE id = ?
	`, id)

	var c Clip
	var ratio string
	var captions sql.NullString
	var createdAt string

	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.SourceLocator, &c.SourceDuration,
		&c.StartTime, &c.EndTime, &ratio, &captions, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.AspectRatio = AspectRatio(ratio)
	if captions.Valid && captions.String != "" {
		if err := json.Unmarshal([]byte(captions.String), &c.CaptionTrack); err != nil {
			return nil, fmt.Errorf("parse caption track for clip %s: %w", id, err)
		}
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

func (r *SQLiteRepository) SourceDuration(ctx context.Context, locator string) (float64, error) {
	var duration float64
	err := r.db.QueryRowContext(ctx,
		"SELECT source_duration FROM clips WHERE source_locator = ? LIMIT 1", locator).Scan(&duration)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("unknown source locator %q", locator)
	}
	if err != nil {
		return 0, err
	}
	return duration, nil
}
