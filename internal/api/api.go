package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// ============================================================
// API CLIENT - Reusable HTTP client for the attendance service
// ============================================================

type APIClient struct {
	Timeout time.Duration
	client  *http.Client
}

// ErrTimeout marks a request that ran out its deadline. Callers treat it
// as transient rather than surfacing a failure dialog.
var ErrTimeout = errors.New("api: request timed out")

// NewAPIClient creates a new API client instance
func NewAPIClient(timeout time.Duration) *APIClient {
	return &APIClient{
		Timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// IsSuccessStatusCode checks if the HTTP status code indicates success
func (c *APIClient) IsSuccessStatusCode(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// SendRequest sends a POST request to the API with proper headers.
// Exactly one network call per invocation; retry policy belongs to the caller.
func (c *APIClient) SendRequest(ctx context.Context, payload interface{}, endpoint string) ([]byte, int, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)

	log.Printf("📤 POST %s (%.1fKB)", endpoint, float64(len(jsonData))/1024.0)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return nil, 0, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	return body, resp.StatusCode, nil
}

func isClientTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

// setHeaders sets required headers for the API request
func (c *APIClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Kiosk-Token", os.Getenv("KIOSK_TOKEN"))
	req.Header.Set("User-Agent", "Attendance-Kiosk/1.0")
}

// ParseResponse unmarshals JSON response into provided struct
func (c *APIClient) ParseResponse(body []byte, result interface{}) error {
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// LogResponse logs the raw response if it's small enough
func (c *APIClient) LogResponse(body []byte, statusCode int) {
	if c.IsSuccessStatusCode(statusCode) {
		log.Printf("✅ API response: %d - Success!", statusCode)
	} else {
		log.Printf("⚠️  API response: %d - Failed", statusCode)
	}

	if len(body) > 0 && len(body) < 1000 {
		log.Printf("📥 Raw response: %s", string(body))
	}
}
