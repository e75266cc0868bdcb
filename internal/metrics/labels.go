// Package metrics implements the in-memory metrics registry, the
// non-blocking async forwarder in front of it, and the Prometheus exposition
// bridge. Business code talks to the Forwarder; the Registry itself is only
// mutated by the forwarder's single worker goroutine.
package metrics

import (
	"sort"
	"strings"
)

// LabelSet is an immutable, ordered set of label pairs. All hashing and
// series lookup goes through Encode, so the canonical form (sorted by key)
// is defined in exactly one place.
type LabelSet struct {
	keys   []string
	values []string
}

// NewLabelSet canonicalizes a label map into sorted order. A nil or empty
// map yields the zero LabelSet.
func NewLabelSet(labels map[string]string) LabelSet {
	if len(labels) == 0 {
		return LabelSet{}
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = labels[k]
	}
	return LabelSet{keys: keys, values: values}
}

// Len returns the number of label pairs.
func (s LabelSet) Len() int { return len(s.keys) }

// Keys returns the sorted label keys.
func (s LabelSet) Keys() []string { return s.keys }

// Values returns the label values in key order.
func (s LabelSet) Values() []string { return s.values }

// Map rebuilds a plain map from the set.
func (s LabelSet) Map() map[string]string {
	if len(s.keys) == 0 {
		return nil
	}
	m := make(map[string]string, len(s.keys))
	for i, k := range s.keys {
		m[k] = s.values[i]
	}
	return m
}

// Encode renders the canonical text form, e.g. `region="eu",tier="pro"`.
// Equal label maps always encode identically regardless of insertion order.
func (s LabelSet) Encode() string {
	if len(s.keys) == 0 {
		return ""
	}
	var b strings.Builder
	for i, k := range s.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(s.values[i])
		b.WriteByte('"')
	}
	return b.String()
}

// seriesKey identifies one series inside the registry maps.
func seriesKey(name string, labels LabelSet) string {
	enc := labels.Encode()
	if enc == "" {
		return name
	}
	return name + "{" + enc + "}"
}
