package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PoolConfig mirrors the Python original's requests.adapters.HTTPAdapter
// pool sizing (pool_connections=10, pool_maxsize=100): a process-wide,
// thread-safe connection pool shared by every outbound forward.
type PoolConfig struct {
	Connections int           // MaxIdleConnsPerHost
	MaxSize     int           // MaxIdleConns / MaxConnsPerHost
	Timeout     time.Duration // per-request timeout
}

// DefaultPoolConfig matches spec §6's configuration defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Connections: 10, MaxSize: 100, Timeout: 30 * time.Second}
}

// NewHTTPClient builds the pooled client Core forwards through.
func NewHTTPClient(cfg PoolConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxSize,
		MaxIdleConnsPerHost: cfg.Connections,
		MaxConnsPerHost:     cfg.MaxSize,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// PeerClient implements core.Forwarder: it POSTs {"key","params"} to a
// peer's /fetch endpoint and decodes the JSON response.
type PeerClient struct {
	httpClient *http.Client
}

// NewPeerClient wraps an already-built pooled *http.Client.
func NewPeerClient(httpClient *http.Client) *PeerClient {
	return &PeerClient{httpClient: httpClient}
}

type peerErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// Forward issues the peer-to-peer POST /fetch call. On an HTTP error,
// connection error, non-2xx response, or malformed body, the error is
// surfaced to the caller unchanged — Core wraps it as OwnerUnreachable
// and does not retry (spec §7, §9: no automatic failover to a secondary
// owner).
func (p *PeerClient) Forward(ctx context.Context, ownerURL, key string, params map[string]any) (any, error) {
	body, err := json.Marshal(map[string]any{"key": key, "params": params})
	if err != nil {
		return nil, fmt.Errorf("marshal forward body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ownerURL+"/fetch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward to %s: %w", ownerURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", ownerURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb peerErrorBody
		if err := json.Unmarshal(raw, &eb); err == nil && eb.Error != "" {
			return nil, fmt.Errorf("peer %s reported %s: %s", ownerURL, eb.Error, eb.Detail)
		}
		return nil, fmt.Errorf("peer %s returned HTTP %d: %s", ownerURL, resp.StatusCode, string(raw))
	}

	var val any
	if err := json.Unmarshal(raw, &val); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", ownerURL, err)
	}
	return val, nil
}
