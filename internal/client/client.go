// Package client is the Go SDK the admin CLI uses to talk to one
// coordinator node over HTTP.
//
// Adapted from the teacher's internal/client package: hide
// http.NewRequest/json.Marshal behind a small typed Client so callers
// write client.Fetch(ctx, key, params) instead of raw HTTP plumbing.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to exactly one coordinator node. It does not implement
// any routing or coalescing logic itself — that is the server's job.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client. timeout protects callers from hanging forever on
// a slow or stuck node.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch calls POST /fetch on the node this Client was built against.
// Every inbound /fetch is already pinned to that node by the wire
// protocol's loop-prevention contract (spec §4.4), so hitting a specific
// node's address here already gives the "force this node for
// debugging/administrative flows" behavior spec §4.5 describes — there
// is no separate wire flag for it.
func (c *Client) Fetch(ctx context.Context, key string, params map[string]any) (any, error) {
	body, err := json.Marshal(map[string]any{"key": key, "params": params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/fetch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST /fetch failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if err := checkStatus(resp.StatusCode, raw); err != nil {
		return nil, err
	}

	var val any
	if err := json.Unmarshal(raw, &val); err != nil {
		return nil, err
	}
	return val, nil
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp.StatusCode, raw); err != nil {
		return nil, err
	}

	var out map[string]any
	return out, json.Unmarshal(raw, &out)
}

// APIError carries the HTTP status and the structured error body a node
// returned.
type APIError struct {
	Status int
	Kind   string
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s: %s", e.Status, e.Kind, e.Detail)
}

func checkStatus(status int, raw []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	_ = json.Unmarshal(raw, &body)
	return &APIError{Status: status, Kind: body.Error, Detail: body.Detail}
}
