package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchtower/internal/metrics"
)

func TestLabelSetCanonicalEncoding(t *testing.T) {
	a := metrics.NewLabelSet(map[string]string{"region": "eu", "tier": "pro"})
	b := metrics.NewLabelSet(map[string]string{"tier": "pro", "region": "eu"})

	assert.Equal(t, a.Encode(), b.Encode())
	assert.Equal(t, `region="eu",tier="pro"`, a.Encode())
	assert.Empty(t, metrics.NewLabelSet(nil).Encode())
}

func TestCounterAccumulates(t *testing.T) {
	r := metrics.NewRegistry()
	labels := map[string]string{"op": "capture"}

	r.Increment("events_total", labels, 1)
	r.Increment("events_total", labels, 2.5)
	r.Increment("events_total", labels, -5) // monotonic: ignored

	assert.Equal(t, 3.5, r.CounterValue("events_total", labels))
	// Different label set is a different series.
	assert.Zero(t, r.CounterValue("events_total", map[string]string{"op": "other"}))
}

func TestGaugeSetOverwrites(t *testing.T) {
	r := metrics.NewRegistry()

	r.SetGauge("queue_depth", nil, 10)
	r.SetGauge("queue_depth", nil, 3)

	v, ok := r.GaugeValue("queue_depth", nil)
	require.True(t, ok)
	assert.Equal(t, 3.0, v)
}

// TestPercentileMedianExact pins the interpolation contract: the median of
// [1,2,3,4,5] is exactly 3.
func TestPercentileMedianExact(t *testing.T) {
	r := metrics.NewRegistry()
	for _, v := range []float64{5, 3, 1, 4, 2} {
		r.Observe("latency", nil, v)
	}

	p50, ok := r.Percentile("latency", nil, 0.50)
	require.True(t, ok)
	assert.Equal(t, 3.0, p50)
}

func TestPercentileUniformHundredSamples(t *testing.T) {
	r := metrics.NewRegistry()
	for i := 1; i <= 100; i++ {
		r.Observe("latency", nil, float64(i))
	}

	p99, ok := r.Percentile("latency", nil, 0.99)
	require.True(t, ok)
	// True p99 of uniform 1..100 is 99; one bucket width of slack.
	assert.InDelta(t, 99.0, p99, 1.0)

	p50, ok := r.Percentile("latency", nil, 0.50)
	require.True(t, ok)
	assert.InDelta(t, 50.5, p50, 1.0)
}

func TestPercentileMissingSeries(t *testing.T) {
	r := metrics.NewRegistry()
	_, ok := r.Percentile("nope", nil, 0.5)
	assert.False(t, ok)
}

func TestHistogramWindowBounded(t *testing.T) {
	r := metrics.NewRegistry(metrics.WithMaxObservations(10))
	for i := 0; i < 100; i++ {
		r.Observe("latency", nil, float64(i))
	}

	snap := r.Snapshot()
	require.Len(t, snap.Histograms, 1)
	h := snap.Histograms[0]

	// Lifetime stats survive the window; percentiles see only the last 10.
	assert.EqualValues(t, 100, h.Count)
	assert.Equal(t, 0.0, h.Min)
	assert.Equal(t, 99.0, h.Max)
	assert.GreaterOrEqual(t, h.P50, 90.0)
}

func TestSnapshotStats(t *testing.T) {
	r := metrics.NewRegistry()
	labels := map[string]string{"model": "default"}
	for _, v := range []float64{1, 2, 3, 4} {
		r.Observe("call_seconds", labels, v)
	}
	r.Increment("calls_total", labels, 4)
	r.SetGauge("in_flight", nil, 1)

	snap := r.Snapshot()
	require.Len(t, snap.Histograms, 1)
	require.Len(t, snap.Counters, 1)
	require.Len(t, snap.Gauges, 1)

	h := snap.Histograms[0]
	assert.EqualValues(t, 4, h.Count)
	assert.Equal(t, 10.0, h.Sum)
	assert.Equal(t, 2.5, h.Mean)
	assert.Equal(t, 1.0, h.Min)
	assert.Equal(t, 4.0, h.Max)
	assert.NotEmpty(t, h.Buckets)

	// Cumulative buckets: everything <= 5 includes all four samples.
	assert.EqualValues(t, 4, h.Buckets[5])
	assert.EqualValues(t, 2, h.Buckets[2.5])

	assert.Equal(t, 3, r.SeriesCount())
}

func TestNormalizerUsesConfiguredParams(t *testing.T) {
	n := metrics.NewNormalizer(map[string]metrics.NormalizationParams{
		"winrate": {Median: 0.5, MAD: 0.1},
	}, metrics.NormalizationParams{})

	score := n.Normalize("winrate", 0.7)
	assert.InDelta(t, 0.6745*2, score, 1e-9)

	// Unknown entity falls back: zero params pass the delta through.
	assert.Equal(t, 0.7, n.Normalize("unknown_entity", 0.7))

	assert.True(t, n.IsAnomalous("winrate", 1.5, 3))
	assert.False(t, n.IsAnomalous("winrate", 0.52, 3))
}

func TestNormalizerHotUpdate(t *testing.T) {
	n := metrics.NewNormalizer(nil, metrics.NormalizationParams{})
	assert.Equal(t, 2.0, n.Normalize("kda", 2.0))

	n.Update(map[string]metrics.NormalizationParams{"kda": {Median: 2.0, MAD: 0.5}})
	assert.InDelta(t, 0.0, n.Normalize("kda", 2.0), 1e-9)
}

func TestNormalizerZeroMADNoBlowup(t *testing.T) {
	n := metrics.NewNormalizer(map[string]metrics.NormalizationParams{
		"gold": {Median: 100, MAD: 0},
	}, metrics.NormalizationParams{})

	assert.Equal(t, 50.0, n.Normalize("gold", 150))
}
