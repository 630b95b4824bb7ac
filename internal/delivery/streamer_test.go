package delivery

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func testStreamer() *Streamer {
	return NewStreamer(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func serveTestFile(t *testing.T, rangeHeader string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	content := "0123456789abcdefghij"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/download", nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	if err := testStreamer().ServeFile(rr, req, path); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}
	return rr, content
}

func TestStreamer_WholeFile(t *testing.T) {
	rr, content := serveTestFile(t, "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != content {
		t.Fatalf("body = %q", rr.Body.String())
	}
	if rr.Header().Get("Accept-Ranges") != "bytes" {
		t.Fatal("Accept-Ranges header missing")
	}
	if rr.Header().Get("Content-Type") != "video/mp4" {
		t.Fatalf("Content-Type = %q, want video/mp4", rr.Header().Get("Content-Type"))
	}
}

func TestStreamer_PartialContent(t *testing.T) {
	rr, _ := serveTestFile(t, "bytes=5-9")

	if rr.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rr.Code)
	}
	if rr.Body.String() != "56789" {
		t.Fatalf("body = %q, want %q", rr.Body.String(), "56789")
	}
	if got := rr.Header().Get("Content-Range"); got != "bytes 5-9/20" {
		t.Fatalf("Content-Range = %q", got)
	}
}

func TestStreamer_UnsatisfiableRange(t *testing.T) {
	rr, _ := serveTestFile(t, "bytes=100-200")

	if rr.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", rr.Code)
	}
	if got := rr.Header().Get("Content-Range"); got != "bytes */20" {
		t.Fatalf("Content-Range = %q", got)
	}
}

func TestStreamer_InvalidRangeFallsBackToWholeFile(t *testing.T) {
	rr, content := serveTestFile(t, "bytes=junk")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != content {
		t.Fatalf("body = %q", rr.Body.String())
	}
}

func TestStreamer_MissingFile(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/download", nil)

	if err := testStreamer().ServeFile(rr, req, filepath.Join(t.TempDir(), "gone.mp4")); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
