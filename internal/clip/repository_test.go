package clip

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/clipforge/exportd/internal/db"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database.Conn()
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := NewRepository(testDB(t))
	ctx := context.Background()

	c := &Clip{
		UserID:         "user-1",
		Title:          "Highlight",
		SourceLocator:  "videos/sources/raw.mp4",
		SourceDuration: 3600,
		StartTime:      95,
		EndTime:        110,
		AspectRatio:    Ratio16x9,
		CaptionTrack: []Cue{
			{Text: "hello", StartOffset: 100.5, EndOffset: 103.2},
		},
	}

	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if c.ID == "" {
		t.Fatal("Create() did not assign an ID")
	}

	got, err := repo.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() = nil for existing clip")
	}
	if got.Title != "Highlight" || got.AspectRatio != Ratio16x9 {
		t.Fatalf("Get() = %+v", got)
	}
	if got.StartTime != 95 || got.EndTime != 110 || got.SourceDuration != 3600 {
		t.Fatalf("timing fields = %v/%v/%v", got.StartTime, got.EndTime, got.SourceDuration)
	}
	if len(got.CaptionTrack) != 1 || got.CaptionTrack[0].Text != "hello" {
		t.Fatalf("caption track = %+v", got.CaptionTrack)
	}
	if got.CaptionTrack[0].StartOffset != 100.5 {
		t.Fatalf("cue start = %v, want 100.5", got.CaptionTrack[0].StartOffset)
	}
}

func TestRepository_GetUnknownID(t *testing.T) {
	repo := NewRepository(testDB(t))

	got, err := repo.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Get(missing) = %+v, want nil", got)
	}
}

func TestRepository_EmptyCaptionTrack(t *testing.T) {
	repo := NewRepository(testDB(t))
	ctx := context.Background()

	c := &Clip{
		Title:          "No captions",
		SourceLocator:  "videos/sources/raw.mp4",
		SourceDuration: 60,
		StartTime:      0,
		EndTime:        10,
		AspectRatio:    Ratio1x1,
	}
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.CaptionTrack != nil {
		t.Fatalf("caption track = %+v, want nil", got.CaptionTrack)
	}
}

func TestRepository_SourceDuration(t *testing.T) {
	repo := NewRepository(testDB(t))
	ctx := context.Background()

	c := &Clip{
		Title:          "x",
		SourceLocator:  "videos/sources/raw.mp4",
		SourceDuration: 1234.5,
		StartTime:      0,
		EndTime:        10,
		AspectRatio:    Ratio1x1,
	}
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	d, err := repo.SourceDuration(ctx, "videos/sources/raw.mp4")
	if err != nil {
		t.Fatalf("SourceDuration() error = %v", err)
	}
	if d != 1234.5 {
		t.Fatalf("SourceDuration() = %v, want 1234.5", d)
	}

	if _, err := repo.SourceDuration(ctx, "videos/unknown.mp4"); err == nil {
		t.Fatal("SourceDuration(unknown) succeeded, want error")
	}
}

func TestParseAspectRatio(t *testing.T) {
	for _, valid := range []string{"16:9", "9:16", "1:1", "4:5"} {
		if _, err := ParseAspectRatio(valid); err != nil {
			t.Fatalf("ParseAspectRatio(%q) error = %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "21:9", "16x9", "square"} {
		if _, err := ParseAspectRatio(invalid); err == nil {
			t.Fatalf("ParseAspectRatio(%q) succeeded, want error", invalid)
		}
	}
}

func TestClipDuration(t *testing.T) {
	c := &Clip{StartTime: 95.5, EndTime: 110}
	if got := c.Duration(); got != 14.5 {
		t.Fatalf("Duration() = %v, want 14.5", got)
	}
}
