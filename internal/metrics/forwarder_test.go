package metrics_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchtower/internal/logging"
	"watchtower/internal/metrics"
)

// TestForwarderCounterSumAfterDrain checks the core accuracy property: for
// any interleaving of callers, the counter equals the sum of amounts once
// the worker drains.
func TestForwarderCounterSumAfterDrain(t *testing.T) {
	r := metrics.NewRegistry()
	f := metrics.NewForwarder(r, logging.NewNop(), metrics.WithQueueSize(10000))
	f.Start(context.Background())

	const goroutines = 8
	const perGoroutine = 100

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				f.Increment("agent_ticks_total", map[string]string{"agent": "stats"}, 1)
			}
		}()
	}
	wg.Wait()

	require.NoError(t, f.Stop(2*time.Second))

	got := r.CounterValue("agent_ticks_total", map[string]string{"agent": "stats"})
	assert.Equal(t, float64(goroutines*perGoroutine), got)
	assert.Zero(t, f.Dropped())
}

// TestForwarderDropsInsteadOfBlocking saturates a tiny queue with no worker
// running: callers must return within the enqueue timeout and the dropped
// counter must rise instead of caller latency.
func TestForwarderDropsInsteadOfBlocking(t *testing.T) {
	r := metrics.NewRegistry()
	f := metrics.NewForwarder(r, logging.NewNop(),
		metrics.WithQueueSize(1),
		metrics.WithEnqueueTimeout(time.Millisecond),
	)
	// Worker deliberately not started.

	const calls = 50
	start := time.Now()
	for i := 0; i < calls; i++ {
		f.Increment("flood_total", nil, 1)
	}
	elapsed := time.Since(start)

	// One command fits the queue; the rest each wait at most ~1ms.
	assert.EqualValues(t, calls-1, f.Dropped())
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, 1, f.QueueDepth())
}

func TestForwarderDroppedCountMonotonic(t *testing.T) {
	r := metrics.NewRegistry()
	f := metrics.NewForwarder(r, logging.NewNop(),
		metrics.WithQueueSize(1),
		metrics.WithEnqueueTimeout(time.Millisecond),
	)

	f.Increment("a", nil, 1)
	first := f.Dropped()
	f.Increment("a", nil, 1)
	f.Increment("a", nil, 1)
	assert.GreaterOrEqual(t, f.Dropped(), first)
	assert.EqualValues(t, 2, f.Dropped())
}

func TestForwarderAppliesAllKinds(t *testing.T) {
	r := metrics.NewRegistry()
	f := metrics.NewForwarder(r, logging.NewNop())
	f.Start(context.Background())

	f.Increment("reqs_total", nil, 2)
	f.SetGauge("depth", nil, 7)
	f.Observe("lat", nil, 0.25)
	f.ObserveDuration("lat", nil, 750*time.Millisecond)

	require.NoError(t, f.Stop(2*time.Second))

	assert.Equal(t, 2.0, r.CounterValue("reqs_total", nil))
	v, ok := r.GaugeValue("depth", nil)
	require.True(t, ok)
	assert.Equal(t, 7.0, v)

	p50, ok := r.Percentile("lat", nil, 0.5)
	require.True(t, ok)
	assert.InDelta(t, 0.5, p50, 0.001)
}

func TestForwarderStopDrainsQueue(t *testing.T) {
	r := metrics.NewRegistry()
	f := metrics.NewForwarder(r, logging.NewNop(), metrics.WithQueueSize(1000))

	// Enqueue before the worker exists; Start then Stop must still apply
	// everything already queued.
	for i := 0; i < 500; i++ {
		f.Increment("pending_total", nil, 1)
	}
	f.Start(context.Background())
	require.NoError(t, f.Stop(2*time.Second))

	assert.Equal(t, 500.0, r.CounterValue("pending_total", nil))
}

func TestForwarderStopIdempotentWhenNeverStarted(t *testing.T) {
	f := metrics.NewForwarder(metrics.NewRegistry(), logging.NewNop())
	assert.NoError(t, f.Stop(time.Millisecond))
}
