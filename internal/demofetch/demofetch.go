// Package demofetch implements the literal fetch function from the
// original Python test suite (original_source/tests/core.py's cb): sleep
// a bit (so concurrent callers have a chance to coalesce), add
// params["val"] to a shared counter, and return {"status","host"}.
//
// It is the fetch function cmd/sfdc-node wires; the binary offers no
// option to select a different one.
package demofetch

import (
	"context"
	"sync/atomic"
	"time"
)

// Counter is a process-wide accumulator, atomically updated so the S1/S2
// scenarios can assert on an exact total regardless of how many node
// goroutines wrote to it concurrently.
type Counter struct {
	total int64
}

// Add adds delta to the counter.
func (c *Counter) Add(delta int64) { atomic.AddInt64(&c.total, delta) }

// Value returns the current total.
func (c *Counter) Value() int64 { return atomic.LoadInt64(&c.total) }

// Fetch is a core.UserFetch bound to one node's identity and a shared
// counter.
type Fetch struct {
	host    string
	counter *Counter
	delay   time.Duration
}

// New creates a Fetch. delay emulates upstream latency — long enough
// that concurrent callers for the same key have a real chance to
// coalesce instead of racing past each other.
func New(host string, counter *Counter, delay time.Duration) *Fetch {
	return &Fetch{host: host, counter: counter, delay: delay}
}

// Do is the core.UserFetch function value.
func (f *Fetch) Do(ctx context.Context, params map[string]any) (any, error) {
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f.counter.Add(valueOf(params))

	return map[string]any{
		"status": "OK",
		"host":   f.host,
	}, nil
}

// valueOf extracts params["val"] as an int64, defaulting to 0. JSON
// numbers decode to float64 through encoding/json, so that's the type
// we expect here; a plain int is also accepted for in-process callers
// that build params by hand.
func valueOf(params map[string]any) int64 {
	if params == nil {
		return 0
	}
	switch v := params["val"].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}
