// Package report delivers attendance events to the remote collector.
package report

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

	"github.com/google/uuid"

	"github.com/chaz8081/gostt-kiosk/internal/keyword"
)

// IdempotencyHeader carries a per-event key so the collector can discard
// duplicates.
const IdempotencyHeader = "Idempotency-Key"

// maxLoggedBody caps how much of the collector's response is logged.
const maxLoggedBody = 512

// Record is one attributed attendance event.
type Record struct {
	Person string
	Status keyword.Status
	At     time.Time
}

// payload is the wire form of a Record.
type payload struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Person string `json:"person"`
	Status string `json:"status"`
}

// MarshalJSON renders the record with local date ("2006-01-02") and minute
// precision time ("15:04").
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(payload{
		Date:   r.At.Format("2006-01-02"),
		Time:   r.At.Format("15:04"),
		Person: r.Person,
		Status: r.Status.String(),
	})
}

// Reporter sends a record to the collector.
type Reporter interface {
	Send(ctx context.Context, r Record) error
}

// Client posts records as JSON. It never retries: each event is sent at most
// once.
type Client struct {
	url        string
	httpClient *http.Client
	newKey     func() string
}

// NewClient creates a Client posting to url with the given request timeout.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		newKey: func() string { return uuid.NewString() },
	}
}

// Send posts r. Transport failures and non-2xx responses are returned.
func (c *Client) Send(ctx context.Context, r Record) error {
	if r.Status == keyword.None {
		return fmt.Errorf("report: refusing to send record without status")
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("report: create request: %w", err)
	}
	key := c.newKey()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, key)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("report: post: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
	// Drain remainder for connection reuse.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("report: collector returned HTTP %d: %s",
			resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	slog.Info("event reported",
		"person", r.Person,
		"status", r.Status,
		"key", key,
		"status_code", resp.StatusCode,
		"response", strings.TrimSpace(string(respBody)),
		"duration", time.Since(start))
	return nil
}
