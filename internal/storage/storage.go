// Package storage moves video blobs between the export pipeline and the
// configured object store. All transfers stream through files; a source
// video can be multiple gigabytes and is never held in memory at once.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store is the blob storage collaborator contract.
type Store interface {
	// Download fetches the object behind locator into destPath.
	Download(ctx context.Context, locator, destPath string) error
	// Upload stores the file at srcPath under key and returns the
	// opaque locator for the stored object.
	Upload(ctx context.Context, srcPath, key, contentType string) (string, error)
}

// FSStore keeps blobs under a local directory. It backs development and
// tests, and single-host deployments with no remote object store.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("cannot create blob directory: %w", err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) Download(ctx context.Context, locator, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.Open(s.path(locator))
	if err != nil {
		return fmt.Errorf("open blob %q: %w", locator, err)
	}
	defer src.Close()

	return writeStream(destPath, src)
}

func (s *FSStore) Upload(ctx context.Context, srcPath, key, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("open upload source: %w", err)
	}
	defer src.Close()

	dest := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", err
	}
	if err := writeStream(dest, src); err != nil {
		return "", err
	}
	return key, nil
}

// LocalPath resolves a locator to a path on disk. The second return is
// false when the locator escapes the store root.
func (s *FSStore) LocalPath(locator string) (string, bool) {
	p := s.path(locator)
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return p, true
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(key, "/")))
}

func writeStream(destPath string, r io.Reader) error {
	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(destPath)
		return err
	}
	return f.Close()
}
