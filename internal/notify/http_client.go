package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HTTPClient delivers notifications and usage increments to the main
// application over HTTP. Both endpoints are best-effort from the export
// pipeline's point of view.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, token string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

func (c *HTTPClient) Notify(ctx context.Context, userID string, ev Event) error {
	payload := struct {
		UserID string `json:"user_id"`
		Event
	}{UserID: userID, Event: ev}
	return c.post(ctx, "/api/notifications", payload)
}

func (c *HTTPClient) IncrementUsage(ctx context.Context, userID string, seconds float64) error {
	payload := struct {
		UserID  string  `json:"user_id"`
		Metric  string  `json:"metric"`
		Seconds float64 `json:"seconds"`
	}{UserID: userID, Metric: "export_seconds", Seconds: seconds}
	return c.post(ctx, "/api/usage", payload)
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned HTTP %d: %s", path, resp.StatusCode, string(respBody))
	}
	return nil
}
