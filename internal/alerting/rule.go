// Package alerting evaluates registered rules against zero-argument
// predicates and fans fired alerts out to pluggable channels, with cooldown,
// hourly-cap, and aggregation gates keeping the noise down.
package alerting

import (
	"time"
)

// Level is the alert severity carried to channels.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Rule couples a predicate with its noise-reduction parameters. Rules are
// long-lived; the mutable state below is touched only by the manager's
// evaluation path under the manager's lock.
type Rule struct {
	// Name uniquely identifies the rule.
	Name string
	// Predicate is evaluated without arguments; closures capture whatever
	// state they need (tracker stats, registry values, cache stats).
	Predicate func() bool
	// Message describes what firing means, included in every alert.
	Message string
	Level   Level
	// Channels receive the alert on firing.
	Channels []Channel

	// Cooldown is the minimum wait after a firing before the rule may fire
	// again. Zero disables the gate.
	Cooldown time.Duration
	// MaxPerHour caps firings per rolling hour. Zero disables the gate.
	MaxPerHour int
	// AggregationWindow and AggregationCount require AggregationCount
	// predicate-true evaluations within the window before firing.
	// AggregationCount <= 1 disables the gate.
	AggregationWindow time.Duration
	AggregationCount  int

	// Evaluation state, owned by the manager.
	lastFired time.Time
	hourStart time.Time
	hourCount int
	pending   []time.Time
}

// Alert is one immutable fired instance.
type Alert struct {
	ID       string            `json:"id"`
	RuleName string            `json:"rule"`
	Level    Level             `json:"level"`
	Message  string            `json:"message"`
	FiredAt  time.Time         `json:"fired_at"`
	Details  map[string]string `json:"details,omitempty"`
}

// DispatchResult records the outcome of delivering an alert to one channel.
type DispatchResult struct {
	Channel string `json:"channel"`
	Error   string `json:"error,omitempty"`
}

// HistoryEntry pairs an alert with its dispatch outcomes in the bounded
// history ring.
type HistoryEntry struct {
	Alert   Alert            `json:"alert"`
	Results []DispatchResult `json:"results"`
}
