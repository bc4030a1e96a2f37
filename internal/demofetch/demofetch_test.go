package demofetch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAddsValToCounter(t *testing.T) {
	c := &Counter{}
	f := New("http://a", c, 0)

	val, err := f.Do(context.Background(), map[string]any{"val": 1.0})
	require.NoError(t, err)
	m := val.(map[string]any)
	assert.Equal(t, "OK", m["status"])
	assert.Equal(t, "http://a", m["host"])
	assert.EqualValues(t, 1, c.Value())
}

func TestFetchConcurrentAddsAccumulate(t *testing.T) {
	c := &Counter{}
	f := New("http://a", c, time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Do(context.Background(), map[string]any{"val": 2.0})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 10, c.Value())
}

func TestFetchRespectsContextCancellation(t *testing.T) {
	c := &Counter{}
	f := New("http://a", c, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Do(ctx, map[string]any{"val": 1.0})
	require.Error(t, err)
	assert.EqualValues(t, 0, c.Value())
}
