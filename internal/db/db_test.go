package db

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_CreatesSchemaAndIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	database, err := New(dbPath, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, table := range []string{"clips", "export_jobs", "_migrations"} {
		var name string
		err := database.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
	database.Close()

	// Reopening must not re-apply migrations.
	database, err = New(dbPath, testLogger())
	if err != nil {
		t.Fatalf("New() on existing database error = %v", err)
	}
	defer database.Close()

	var count int
	if err := database.Conn().QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 1 {
		t.Fatalf("migration rows = %d, want 1", count)
	}
}

func TestNew_MarksInterruptedJobsFailed(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	database, err := New(dbPath, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stmts := []struct {
		id     string
		status string
	}{
		{"j-queued", "queued"},
		{"j-running", "running"},
		{"j-done", "succeeded"},
	}
	for _, s := range stmts {
		_, err := database.Conn().Exec(`
			INSERT INTO clips (id, title, source_locator, source_duration, start_time, end_time, aspect_ratio, created_at)
			VALUES (?, 'Test Clip', 'sources/video.mp4', 600, 100, 130, '9:16', datetime('now'))
		`, "clip-"+s.id)
		if err != nil {
			t.Fatalf("seed clip for job %s: %v", s.id, err)
		}
		_, err = database.Conn().Exec(`
			INSERT INTO export_jobs (id, clip_id, status, progress, created_at)
			VALUES (?, ?, ?, 0, datetime('now'))
		`, s.id, "clip-"+s.id, s.status)
		if err != nil {
			t.Fatalf("seed job %s: %v", s.id, err)
		}
	}
	database.Close()

	// Restart: non-terminal rows have no driving process and must fail.
	database, err = New(dbPath, testLogger())
	if err != nil {
		t.Fatalf("New() after restart error = %v", err)
	}
	defer database.Close()

	for _, tt := range []struct {
		id         string
		wantStatus string
		wantKind   string
	}{
		{"j-queued", "failed", "internal"},
		{"j-running", "failed", "internal"},
		{"j-done", "succeeded", ""},
	} {
		var status string
		var kind *string
		err := database.Conn().QueryRow(
			"SELECT status, error_kind FROM export_jobs WHERE id = ?", tt.id).Scan(&status, &kind)
		if err != nil {
			t.Fatalf("read job %s: %v", tt.id, err)
		}
		if status != tt.wantStatus {
			t.Fatalf("job %s status = %s, want %s", tt.id, status, tt.wantStatus)
		}
		if tt.wantKind != "" && (kind == nil || *kind != tt.wantKind) {
			t.Fatalf("job %s error_kind = %v, want %s", tt.id, kind, tt.wantKind)
		}
	}

	// completed_at must round-trip through the same RFC3339 format the
	// job store writes, or terminal timestamps vanish from responses.
	var completedAt string
	err = database.Conn().QueryRow(
		"SELECT completed_at FROM export_jobs WHERE id = 'j-queued'").Scan(&completedAt)
	if err != nil {
		t.Fatalf("read completed_at: %v", err)
	}
	if _, err := time.Parse(time.RFC3339, completedAt); err != nil {
		t.Fatalf("completed_at %q is not RFC3339: %v", completedAt, err)
	}
}

func TestNew_ActiveClipIndexAllowsNewExportAfterRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	database, err := New(dbPath, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = database.Conn().Exec(`
		INSERT INTO clips (id, title, source_locator, source_duration, start_time, end_time, aspect_ratio, created_at)
		VALUES ('clip-1', 'Test Clip', 'sources/video.mp4', 600, 100, 130, '9:16', datetime('now'))
	`)
	if err != nil {
		t.Fatalf("seed clip: %v", err)
	}
	_, err = database.Conn().Exec(`
		INSERT INTO export_jobs (id, clip_id, status, progress, created_at)
		VALUES ('j-1', 'clip-1', 'running', 50, datetime('now'))
	`)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	database.Close()

	database, err = New(dbPath, testLogger())
	if err != nil {
		t.Fatalf("New() after restart error = %v", err)
	}
	defer database.Close()

	// The interrupted job was terminalised, so the partial unique index
	// no longer blocks a fresh export for the same clip.
	_, err = database.Conn().Exec(`
		INSERT INTO export_jobs (id, clip_id, status, progress, created_at)
		VALUES ('j-2', 'clip-1', 'queued', 0, datetime('now'))
	`)
	if err != nil {
		t.Fatalf("insert after restart: %v", err)
	}
}
