package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// UploadError represents a non-2xx response from the object store.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("object store returned HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors (4xx)
// are considered permanent.
func (e *UploadError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// HTTPStore talks to a supabase-style object store over HTTP. The base
// URL and token are fixed at construction; callers own any refresh
// policy and build a new client when the endpoint changes.
type HTTPStore struct {
	baseURL    string
	token      string
	bucket     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPStore(baseURL, token, bucket string, logger *slog.Logger) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		bucket:  bucket,
		httpClient: &http.Client{
			// Transfers are large; rely on context cancellation rather
			// than a whole-request timeout.
			Timeout: 0,
		},
		logger: logger,
	}
}

func (s *HTTPStore) Download(ctx context.Context, locator, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(locator), nil)
	if err != nil {
		return fmt.Errorf("create download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %q: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &UploadError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := writeStream(destPath, resp.Body); err != nil {
		return fmt.Errorf("write download to %s: %w", destPath, err)
	}

	s.logger.Info("blob downloaded", "locator", locator, "bytes", resp.ContentLength)
	return nil
}

func (s *HTTPStore) Upload(ctx context.Context, srcPath, key, contentType string) (string, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("open upload source: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	locator := s.bucket + "/" + strings.TrimPrefix(key, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(locator), f)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.ContentLength = info.Size()
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %q: %w", key, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &UploadError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	s.logger.Info("blob uploaded",
		"locator", locator,
		"bytes", info.Size(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return locator, nil
}

// objectURL builds {base}/storage/v1/object/{bucket}/{key}. A locator is
// "{bucket}/{key}"; bare keys address the client's own bucket.
func (s *HTTPStore) objectURL(locator string) string {
	locator = strings.TrimPrefix(locator, "/")
	if !strings.Contains(locator, "/") {
		locator = s.bucket + "/" + locator
	}
	parts := strings.Split(locator, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.baseURL + "/storage/v1/object/" + strings.Join(parts, "/")
}
