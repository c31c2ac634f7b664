package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MeKo-Tech/doorcount/internal/ledger"
)

// DefaultRemoteTimeout bounds a single push.
const DefaultRemoteTimeout = 5 * time.Second

// TimestampLayout is the ISO-8601 UTC layout used in remote payloads.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Crossing is what gets mirrored remotely for every counted event.
type Crossing struct {
	At        time.Time
	Occupancy int
	// Label is IN or OUT. Empty sends a null direction (status-only update).
	Label ledger.Label
}

// Payload is the JSON body posted to the remote endpoint.
type Payload struct {
	Timestamp    string  `json:"timestamp"`
	CurrentCount int     `json:"current_count"`
	Direction    *string `json:"direction"`
}

// NewPayload converts a crossing to its wire form.
func NewPayload(c Crossing) Payload {
	p := Payload{
		Timestamp:    c.At.UTC().Format(TimestampLayout),
		CurrentCount: c.Occupancy,
	}
	if c.Label != "" {
		dir := string(c.Label)
		p.Direction = &dir
	}
	return p
}

// RemoteError reports a non-2xx response from the remote endpoint.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote endpoint returned %d", e.StatusCode)
	}
	return fmt.Sprintf("remote endpoint returned %d: %s", e.StatusCode, e.Body)
}

// RemoteSync posts crossings to an HTTP endpoint. It does not retry.
type RemoteSync struct {
	url    string
	client *http.Client
}

// NewRemoteSync creates a client for url with a per-request timeout.
func NewRemoteSync(url string, timeout time.Duration) (*RemoteSync, error) {
	if url == "" {
		return nil, errors.New("remote url cannot be empty")
	}
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &RemoteSync{url: url, client: &http.Client{Timeout: timeout}}, nil
}

// URL returns the endpoint.
func (r *RemoteSync) URL() string { return r.url }

// Push sends one crossing. Any transport error, timeout, or non-2xx status is
// returned; the caller decides whether to log and discard.
func (r *RemoteSync) Push(ctx context.Context, c Crossing) error {
	body, err := json.Marshal(NewPayload(c))
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote push failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &RemoteError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
