package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultMaxObservations bounds the raw sample window kept per histogram
// series. Percentiles are interpolated over this window, so precision is
// exact for up to DefaultMaxObservations samples and becomes a sliding
// window beyond it.
const DefaultMaxObservations = 10000

// DefaultBuckets are the cumulative histogram bucket upper bounds used for
// exposition. Chosen for latency-in-seconds style measurements.
var DefaultBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// Registry is the in-memory metric store. Series are created lazily on first
// write and keyed by (name, canonical label encoding); creation is
// idempotent. One mutex suffices because all mutation arrives through the
// Forwarder's single worker; reads (Snapshot, Percentile) may come from any
// goroutine.
type Registry struct {
	mu sync.Mutex

	counters   map[string]*counterSeries
	gauges     map[string]*gaugeSeries
	histograms map[string]*histogramSeries

	maxObservations int
	buckets         []float64
	createdAt       time.Time
}

type counterSeries struct {
	name   string
	labels LabelSet
	value  float64
}

type gaugeSeries struct {
	name   string
	labels LabelSet
	value  float64
}

type histogramSeries struct {
	name   string
	labels LabelSet

	// observations is a bounded window; the oldest sample is dropped once
	// maxObservations is reached. count and sum cover all samples ever
	// observed, not just the window.
	observations []float64
	count        uint64
	sum          float64
	min          float64
	max          float64
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithMaxObservations overrides the per-histogram raw sample window.
func WithMaxObservations(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxObservations = n
		}
	}
}

// WithBuckets overrides the exposition bucket bounds. Bounds must be sorted
// ascending.
func WithBuckets(bounds []float64) RegistryOption {
	return func(r *Registry) {
		if len(bounds) > 0 {
			r.buckets = append([]float64(nil), bounds...)
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		counters:        make(map[string]*counterSeries),
		gauges:          make(map[string]*gaugeSeries),
		histograms:      make(map[string]*histogramSeries),
		maxObservations: DefaultMaxObservations,
		buckets:         DefaultBuckets,
		createdAt:       time.Now(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Increment adds amount to a counter series, creating it on first use.
// Negative amounts are ignored; counters are monotonic.
func (r *Registry) Increment(name string, labels map[string]string, amount float64) {
	if amount < 0 {
		return
	}
	ls := NewLabelSet(labels)
	key := seriesKey(name, ls)

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.counters[key]
	if !ok {
		s = &counterSeries{name: name, labels: ls}
		r.counters[key] = s
	}
	s.value += amount
}

// SetGauge sets a gauge series to value, creating it on first use.
func (r *Registry) SetGauge(name string, labels map[string]string, value float64) {
	ls := NewLabelSet(labels)
	key := seriesKey(name, ls)

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.gauges[key]
	if !ok {
		s = &gaugeSeries{name: name, labels: ls}
		r.gauges[key] = s
	}
	s.value = value
}

// Observe records a sample into a histogram series, creating it on first
// use. The raw window is bounded; count/sum/min/max always cover every
// sample.
func (r *Registry) Observe(name string, labels map[string]string, value float64) {
	ls := NewLabelSet(labels)
	key := seriesKey(name, ls)

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.histograms[key]
	if !ok {
		s = &histogramSeries{name: name, labels: ls, min: math.Inf(1), max: math.Inf(-1)}
		r.histograms[key] = s
	}
	s.count++
	s.sum += value
	if value < s.min {
		s.min = value
	}
	if value > s.max {
		s.max = value
	}
	if len(s.observations) >= r.maxObservations {
		s.observations = s.observations[1:]
	}
	s.observations = append(s.observations, value)
}

// CounterValue returns the current value of a counter series, or zero if the
// series does not exist.
func (r *Registry) CounterValue(name string, labels map[string]string) float64 {
	key := seriesKey(name, NewLabelSet(labels))
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.counters[key]; ok {
		return s.value
	}
	return 0
}

// GaugeValue returns the current value of a gauge series.
func (r *Registry) GaugeValue(name string, labels map[string]string) (float64, bool) {
	key := seriesKey(name, NewLabelSet(labels))
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.gauges[key]; ok {
		return s.value, true
	}
	return 0, false
}

// Percentile answers a percentile query (p in [0,1]) by linear interpolation
// over the sorted raw observation window. Returns false if the series does
// not exist or holds no samples.
func (r *Registry) Percentile(name string, labels map[string]string, p float64) (float64, bool) {
	key := seriesKey(name, NewLabelSet(labels))

	r.mu.Lock()
	s, ok := r.histograms[key]
	if !ok || len(s.observations) == 0 {
		r.mu.Unlock()
		return 0, false
	}
	obs := append([]float64(nil), s.observations...)
	r.mu.Unlock()

	sort.Float64s(obs)
	return interpolate(obs, p), true
}

func interpolate(sorted []float64, p float64) float64 {
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	rank := p * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// HistogramStat is the point-in-time summary of one histogram series.
type HistogramStat struct {
	Name   string
	Labels LabelSet
	Count  uint64
	Sum    float64
	Min    float64
	Max    float64
	Mean   float64
	P50    float64
	P90    float64
	P95    float64
	P99    float64

	// Buckets maps each upper bound to the cumulative count of windowed
	// observations at or below it, scaled to the total count.
	Buckets map[float64]uint64
}

// SeriesValue is a counter or gauge sample in a snapshot.
type SeriesValue struct {
	Name   string
	Labels LabelSet
	Value  float64
}

// Snapshot is a consistent copy of the whole registry.
type Snapshot struct {
	Counters   []SeriesValue
	Gauges     []SeriesValue
	Histograms []HistogramStat
	TakenAt    time.Time
}

// SeriesCount returns the number of live series across all kinds.
func (r *Registry) SeriesCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.counters) + len(r.gauges) + len(r.histograms)
}

// Snapshot copies every series under the lock, then computes derived
// statistics outside it.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	snap := Snapshot{TakenAt: time.Now()}
	for _, s := range r.counters {
		snap.Counters = append(snap.Counters, SeriesValue{Name: s.name, Labels: s.labels, Value: s.value})
	}
	for _, s := range r.gauges {
		snap.Gauges = append(snap.Gauges, SeriesValue{Name: s.name, Labels: s.labels, Value: s.value})
	}
	type histCopy struct {
		name   string
		labels LabelSet
		obs    []float64
		count  uint64
		sum    float64
		min    float64
		max    float64
	}
	hists := make([]histCopy, 0, len(r.histograms))
	for _, s := range r.histograms {
		hists = append(hists, histCopy{
			name:   s.name,
			labels: s.labels,
			obs:    append([]float64(nil), s.observations...),
			count:  s.count,
			sum:    s.sum,
			min:    s.min,
			max:    s.max,
		})
	}
	buckets := r.buckets
	r.mu.Unlock()

	for _, h := range hists {
		stat := HistogramStat{
			Name:   h.name,
			Labels: h.labels,
			Count:  h.count,
			Sum:    h.sum,
			Min:    h.min,
			Max:    h.max,
		}
		if h.count > 0 {
			stat.Mean = h.sum / float64(h.count)
		}
		if len(h.obs) > 0 {
			sort.Float64s(h.obs)
			stat.P50 = interpolate(h.obs, 0.50)
			stat.P90 = interpolate(h.obs, 0.90)
			stat.P95 = interpolate(h.obs, 0.95)
			stat.P99 = interpolate(h.obs, 0.99)
			stat.Buckets = cumulativeBuckets(h.obs, buckets, h.count)
		}
		snap.Histograms = append(snap.Histograms, stat)
	}

	sortSnapshot(&snap)
	return snap
}

// cumulativeBuckets counts windowed observations per bucket and scales the
// result to the lifetime count so exposition stays consistent with _count.
func cumulativeBuckets(sorted []float64, bounds []float64, total uint64) map[float64]uint64 {
	out := make(map[float64]uint64, len(bounds))
	windowTotal := uint64(len(sorted))
	for _, bound := range bounds {
		idx := sort.SearchFloat64s(sorted, bound)
		// SearchFloat64s finds the first index > bound only for strictly
		// greater values; walk forward over equal samples (le semantics).
		for idx < len(sorted) && sorted[idx] <= bound {
			idx++
		}
		le := uint64(idx)
		if windowTotal > 0 && total != windowTotal {
			le = uint64(float64(le) / float64(windowTotal) * float64(total))
		}
		out[bound] = le
	}
	return out
}

func sortSnapshot(s *Snapshot) {
	sort.Slice(s.Counters, func(i, j int) bool {
		return seriesKey(s.Counters[i].Name, s.Counters[i].Labels) < seriesKey(s.Counters[j].Name, s.Counters[j].Labels)
	})
	sort.Slice(s.Gauges, func(i, j int) bool {
		return seriesKey(s.Gauges[i].Name, s.Gauges[i].Labels) < seriesKey(s.Gauges[j].Name, s.Gauges[j].Labels)
	})
	sort.Slice(s.Histograms, func(i, j int) bool {
		return seriesKey(s.Histograms[i].Name, s.Histograms[i].Labels) < seriesKey(s.Histograms[j].Name, s.Histograms[j].Labels)
	})
}
