package metrics

import (
	"math"
	"sync"
)

// Delta normalization turns raw metric deltas into comparable z-scores using
// robust statistics (median and MAD). The per-entity parameters are
// deployment tunables loaded from configuration, not baked-in constants: a
// parameter table that fits one deployment's traffic is meaningless in
// another's, so operators override it per entity type and can hot-reload it.

// NormalizationParams holds the robust location/scale pair for one entity
// type.
type NormalizationParams struct {
	Median float64 `yaml:"median" json:"median"`
	MAD    float64 `yaml:"mad" json:"mad"`
}

// madScale converts MAD to a standard-deviation-consistent estimator for
// normally distributed data.
const madScale = 0.6745

// Normalizer computes z-scores for metric deltas per entity type.
type Normalizer struct {
	mu       sync.RWMutex
	params   map[string]NormalizationParams
	fallback NormalizationParams
}

// NewNormalizer builds a normalizer from a parameter table. fallback is used
// for entity types without an entry; a zero-valued fallback treats unknown
// entities as already normalized (score = delta).
func NewNormalizer(params map[string]NormalizationParams, fallback NormalizationParams) *Normalizer {
	table := make(map[string]NormalizationParams, len(params))
	for k, v := range params {
		table[k] = v
	}
	return &Normalizer{params: table, fallback: fallback}
}

// Normalize returns the robust z-score of delta for the given entity type.
// A zero MAD disables scaling to avoid division blowups on degenerate
// parameters.
func (n *Normalizer) Normalize(entityType string, delta float64) float64 {
	n.mu.RLock()
	p, ok := n.params[entityType]
	if !ok {
		p = n.fallback
	}
	n.mu.RUnlock()

	if p.MAD == 0 {
		return delta - p.Median
	}
	return madScale * (delta - p.Median) / p.MAD
}

// IsAnomalous reports whether the normalized delta exceeds threshold in
// absolute value.
func (n *Normalizer) IsAnomalous(entityType string, delta, threshold float64) bool {
	return math.Abs(n.Normalize(entityType, delta)) > threshold
}

// Update atomically replaces the parameter table. Called by the config
// watcher on hot reload.
func (n *Normalizer) Update(params map[string]NormalizationParams) {
	table := make(map[string]NormalizationParams, len(params))
	for k, v := range params {
		table[k] = v
	}
	n.mu.Lock()
	n.params = table
	n.mu.Unlock()
}
