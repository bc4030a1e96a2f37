package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfdc/internal/ring"
	"sfdc/internal/singleflight"
)

type fakeRing struct {
	owner string
	err   error
}

func (f *fakeRing) Locate(string) (string, error) { return f.owner, f.err }

type fakeForwarder struct {
	calls int32
	val   any
	err   error
}

func (f *fakeForwarder) Forward(context.Context, string, string, map[string]any) (any, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.val, f.err
}

func newTestCore(selfURL string, r Ring, fwd Forwarder, fetch UserFetch) *Core {
	return New(selfURL, r, singleflight.NewGroup(), fwd, fetch)
}

func TestFetchRunsLocallyWhenSelfIsOwner(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, params map[string]any) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "ok", nil
	}
	c := newTestCore("http://self", &fakeRing{owner: "http://self"}, &fakeForwarder{}, fetch)

	v, err := c.Fetch(context.Background(), "k", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.EqualValues(t, 1, calls)
}

func TestFetchForwardsWhenSelfIsNotOwner(t *testing.T) {
	fwd := &fakeForwarder{val: map[string]any{"status": "OK"}}
	fetch := func(ctx context.Context, params map[string]any) (any, error) {
		t.Fatal("local fetch must not run when forwarding to an owner")
		return nil, nil
	}
	c := newTestCore("http://self", &fakeRing{owner: "http://other"}, fwd, fetch)

	v, err := c.Fetch(context.Background(), "k", nil, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "OK"}, v)
	assert.EqualValues(t, 1, fwd.calls)
}

func TestFetchForceThisNodeBypassesRing(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, params map[string]any) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "ok", nil
	}
	fwd := &fakeForwarder{}
	// Ring would route elsewhere, but forceThisNode must ignore it.
	c := newTestCore("http://self", &fakeRing{owner: "http://other"}, fwd, fetch)

	v, err := c.Fetch(context.Background(), "k", nil, true)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.EqualValues(t, 1, calls)
	assert.EqualValues(t, 0, fwd.calls, "forwarder must not be consulted under forceThisNode")
}

func TestFetchNoMembers(t *testing.T) {
	c := newTestCore("http://self", &fakeRing{err: ring.ErrNoMembers}, &fakeForwarder{}, nil)
	_, err := c.Fetch(context.Background(), "k", nil, false)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindNoMembers, e.Kind)
}

func TestFetchOwnerUnreachable(t *testing.T) {
	fwd := &fakeForwarder{err: errors.New("connection refused")}
	c := newTestCore("http://self", &fakeRing{owner: "http://other"}, fwd, nil)
	_, err := c.Fetch(context.Background(), "k", nil, false)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindOwnerUnreachable, e.Kind)
}

func TestFetchUserFetchFailedPropagatesToAllWaiters(t *testing.T) {
	boom := errors.New("x")
	var executions int32
	fetch := func(ctx context.Context, params map[string]any) (any, error) {
		atomic.AddInt32(&executions, 1)
		return nil, boom
	}
	c := newTestCore("http://self", &fakeRing{owner: "http://self"}, &fakeForwarder{}, fetch)

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := c.Fetch(context.Background(), "same-key", nil, true)
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		var e *Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, KindUserFetchFailed, e.Kind)
		assert.ErrorIs(t, err, boom)
	}
}

// TestFetchForceThisNodeThreeNodesThreeExecutions is the Go analogue of
// scenario S2: with force_this_node set, coalescing only holds per-node,
// so three separate Core instances each run the user fetch exactly once.
func TestFetchForceThisNodeThreeNodesThreeExecutions(t *testing.T) {
	var total int32
	makeFetch := func() UserFetch {
		return func(ctx context.Context, params map[string]any) (any, error) {
			atomic.AddInt32(&total, 1)
			return map[string]any{"status": "OK"}, nil
		}
	}

	cores := []*Core{
		newTestCore("http://a", &fakeRing{owner: "http://a"}, &fakeForwarder{}, makeFetch()),
		newTestCore("http://b", &fakeRing{owner: "http://a"}, &fakeForwarder{}, makeFetch()),
		newTestCore("http://c", &fakeRing{owner: "http://a"}, &fakeForwarder{}, makeFetch()),
	}

	var wg sync.WaitGroup
	wg.Add(len(cores))
	for _, c := range cores {
		go func(c *Core) {
			defer wg.Done()
			_, err := c.Fetch(context.Background(), "test-key-for-unit-testing-force-this-node", map[string]any{"val": 1.0}, true)
			require.NoError(t, err)
		}(c)
	}
	wg.Wait()

	assert.EqualValues(t, 3, total)
}

// TestFetchLeaderCancellationDoesNotAbortWaiters mirrors spec §5: the
// particular caller that happens to become the leader for a key is
// incidental, so its own request context cancellation must not reach
// the shared thunk — otherwise every other waiter blocked on the same
// singleflight record would lose the computation too.
func TestFetchLeaderCancellationDoesNotAbortWaiters(t *testing.T) {
	leaderCtx, cancel := context.WithCancel(context.Background())
	cancel() // already cancelled before the thunk even starts

	fetch := func(ctx context.Context, params map[string]any) (any, error) {
		if ctx.Err() != nil {
			t.Error("thunk observed the leader's own request context instead of a detached one")
		}
		return "ok", nil
	}
	c := newTestCore("http://self", &fakeRing{owner: "http://self"}, &fakeForwarder{}, fetch)

	v, err := c.Fetch(leaderCtx, "k", nil, true)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
