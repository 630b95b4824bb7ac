package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFSStore_UploadDownloadRoundtrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(src, []byte("encoded video"), 0o644); err != nil {
		t.Fatal(err)
	}

	locator, err := store.Upload(ctx, src, "user-1/clips/clip.mp4", "video/mp4")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if locator != "user-1/clips/clip.mp4" {
		t.Fatalf("locator = %q, want the key", locator)
	}

	dest := filepath.Join(t.TempDir(), "downloaded.mp4")
	if err := store.Download(ctx, locator, dest); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "encoded video" {
		t.Fatalf("downloaded content = %q", data)
	}
}

func TestFSStore_DownloadMissingBlob(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	err = store.Download(context.Background(), "nope/missing.mp4", filepath.Join(t.TempDir(), "out"))
	if err == nil {
		t.Fatal("Download() of missing blob succeeded")
	}
}

func TestFSStore_CancelledContext(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Download(ctx, "any", "any"); err == nil {
		t.Fatal("Download() with cancelled context succeeded")
	}
	if _, err := store.Upload(ctx, "any", "any", "video/mp4"); err == nil {
		t.Fatal("Upload() with cancelled context succeeded")
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"My Clip", 40, "My_Clip"},
		{"weird/../path:name", 40, "weird_.._path_name"},
		{"tabs\tand\nnewlines", 40, "tabsandnewlines"},
		{"", 40, "clip"},
		{"!!!", 40, "___"},
		{"  padded  ", 40, "padded"},
		{"averyveryverylongtitle", 8, "averyver"},
	}

	for _, tt := range tests {
		if got := SanitizeName(tt.in, tt.maxLen); got != tt.want {
			t.Fatalf("SanitizeName(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}
