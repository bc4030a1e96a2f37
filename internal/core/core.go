// Package core wires the ring, the single-flight dispatcher, and the
// peer-forwarding HTTP client into the coordinator's one public
// operation: Fetch.
package core

import (
	"context"
	"errors"

	"sfdc/internal/ring"
)

// Ring is the subset of ring.Ring that Core depends on, so tests can
// substitute a fake membership view without a real hash ring.
type Ring interface {
	Locate(key string) (string, error)
}

// Forwarder issues the peer-to-peer POST /fetch call described in the
// wire protocol. Implemented by internal/transport's peer client.
type Forwarder interface {
	Forward(ctx context.Context, ownerURL, key string, params map[string]any) (any, error)
}

// UserFetch is the caller-supplied upstream computation. It MUST be safe
// to call concurrently for distinct keys; Core and the dispatcher
// guarantee at most one concurrent invocation per key on this node.
type UserFetch func(ctx context.Context, params map[string]any) (any, error)

// Dispatcher is the subset of singleflight.Group Core depends on.
type Dispatcher interface {
	Do(key string, thunk func() (any, error)) (any, error)
}

// Core is the coordinator's entry point, one instance per node.
type Core struct {
	SelfURL   string
	ring      Ring
	dispatch  Dispatcher
	forwarder Forwarder
	userFetch UserFetch
}

// New creates a Core. ring, dispatch and forwarder are injected so the
// HTTP client pool stays an explicit, testable dependency rather than
// process-wide global state.
func New(selfURL string, r Ring, dispatch Dispatcher, forwarder Forwarder, userFetch UserFetch) *Core {
	return &Core{
		SelfURL:   selfURL,
		ring:      r,
		dispatch:  dispatch,
		forwarder: forwarder,
		userFetch: userFetch,
	}
}

// SelfIdentity returns this node's own URL, as registered with the
// coordination service.
func (c *Core) SelfIdentity() string { return c.SelfURL }

// Fetch is the coordinator's one operation. When forceThisNode is set,
// the ring is bypassed entirely and the local dispatcher runs the user
// fetch directly — this both prevents forwarding loops (the inbound
// HTTP handler always calls Fetch with forceThisNode=true) and lets
// callers pin work to this node for debugging/administrative flows. In
// that mode, coalescing only holds per-node: three nodes each forced to
// run the same key produce three executions, one per node.
func (c *Core) Fetch(ctx context.Context, key string, params map[string]any, forceThisNode bool) (any, error) {
	if forceThisNode {
		return c.runLocally(ctx, key, params)
	}

	owner, err := c.ring.Locate(key)
	if err != nil {
		if errors.Is(err, ring.ErrNoMembers) {
			return nil, newError(KindNoMembers, "no owner available for key", err)
		}
		return nil, newError(KindNoMembers, "", err)
	}

	if owner == c.SelfURL {
		return c.runLocally(ctx, key, params)
	}

	val, err := c.forwarder.Forward(ctx, owner, key, params)
	if err != nil {
		return nil, newError(KindOwnerUnreachable, "forwarding to owner "+owner+" failed", err)
	}
	return val, nil
}

// runLocally ignores ctx when running the thunk itself: whichever caller
// becomes the leader for key is incidental, and that caller's own request
// may be cancelled while other waiters are still blocked on the same
// singleflight record. The shared computation must keep running for
// their sake, so the thunk runs against a detached context instead of
// the leader's.
func (c *Core) runLocally(_ context.Context, key string, params map[string]any) (any, error) {
	val, err := c.dispatch.Do(key, func() (any, error) {
		return c.userFetch(context.Background(), params)
	})
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return nil, err
		}
		return nil, newError(KindUserFetchFailed, "", err)
	}
	return val, nil
}
