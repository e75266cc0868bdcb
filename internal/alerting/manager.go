package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"watchtower/internal/logging"
)

// DefaultHistorySize bounds the alert history ring.
const DefaultHistorySize = 256

// Manager owns the registered rules and runs the per-rule state machine:
// idle -> predicate true + all gates pass -> fired -> state update -> idle.
// One mutex guards rule state and history, held briefly per evaluation;
// channel dispatch happens outside the lock.
type Manager struct {
	mu      sync.Mutex
	rules   map[string]*Rule
	order   []string
	history []HistoryEntry
	histMax int

	logger *logging.Logger
	now    func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithHistorySize overrides the history ring capacity.
func WithHistorySize(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.histMax = n
		}
	}
}

// WithClock injects a clock. Test hook.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates an empty alert manager.
func NewManager(logger *logging.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		rules:   make(map[string]*Rule),
		histMax: DefaultHistorySize,
		logger:  logger.Named("alerting"),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds or replaces a rule. Replacing resets the rule's evaluation
// state.
func (m *Manager) Register(rule Rule) error {
	if rule.Name == "" {
		return fmt.Errorf("alerting: rule name required")
	}
	if rule.Predicate == nil {
		return fmt.Errorf("alerting: rule %q has no predicate", rule.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rules[rule.Name]; !exists {
		m.order = append(m.order, rule.Name)
	}
	m.rules[rule.Name] = &rule
	return nil
}

// EvaluateAll runs every rule once, in registration order, and returns the
// alerts fired this pass. A panicking predicate or failing channel never
// stops the loop.
func (m *Manager) EvaluateAll() []Alert {
	m.mu.Lock()
	names := append([]string(nil), m.order...)
	m.mu.Unlock()

	var fired []Alert
	for _, name := range names {
		if alert, ok := m.evaluate(name); ok {
			fired = append(fired, alert)
		}
	}
	return fired
}

// evaluate runs one rule through the gates. The predicate runs outside the
// lock since it is arbitrary caller code.
func (m *Manager) evaluate(name string) (Alert, bool) {
	m.mu.Lock()
	rule, ok := m.rules[name]
	m.mu.Unlock()
	if !ok {
		return Alert{}, false
	}

	if !m.safePredicate(rule) {
		return Alert{}, false
	}

	now := m.now()

	m.mu.Lock()
	if !m.gatesPassLocked(rule, now) {
		m.mu.Unlock()
		return Alert{}, false
	}
	rule.lastFired = now
	rule.hourCount++
	channels := append([]Channel(nil), rule.Channels...)
	alert := Alert{
		ID:       uuid.NewString(),
		RuleName: rule.Name,
		Level:    rule.Level,
		Message:  rule.Message,
		FiredAt:  now,
	}
	m.mu.Unlock()

	results := m.dispatch(alert, channels)

	m.mu.Lock()
	m.appendHistoryLocked(HistoryEntry{Alert: alert, Results: results})
	m.mu.Unlock()

	return alert, true
}

func (m *Manager) safePredicate(rule *Rule) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("alert predicate panicked",
				zap.String("rule", rule.Name),
				zap.Any("panic", r),
			)
			result = false
		}
	}()
	return rule.Predicate()
}

// gatesPassLocked applies the noise-reduction gates in order: cooldown,
// hourly cap, aggregation. All must pass.
func (m *Manager) gatesPassLocked(rule *Rule, now time.Time) bool {
	// Cooldown.
	if rule.Cooldown > 0 && !rule.lastFired.IsZero() && now.Sub(rule.lastFired) < rule.Cooldown {
		return false
	}

	// Rolling hourly cap. The counter resets once 3600s have elapsed since
	// its own reset, not since the last firing.
	if rule.MaxPerHour > 0 {
		if rule.hourStart.IsZero() || now.Sub(rule.hourStart) >= time.Hour {
			rule.hourStart = now
			rule.hourCount = 0
		}
		if rule.hourCount >= rule.MaxPerHour {
			return false
		}
	}

	// Aggregation: collect predicate-true ticks, prune stale ones, fire only
	// at the threshold, then clear.
	if rule.AggregationCount > 1 {
		rule.pending = append(rule.pending, now)
		cutoff := now.Add(-rule.AggregationWindow)
		kept := rule.pending[:0]
		for _, ts := range rule.pending {
			if !ts.Before(cutoff) {
				kept = append(kept, ts)
			}
		}
		rule.pending = kept
		if len(rule.pending) < rule.AggregationCount {
			return false
		}
		rule.pending = nil
	}

	return true
}

// dispatch fans the alert out. Each channel gets its own bounded attempt; a
// failure or panic in one channel never blocks delivery to the rest.
func (m *Manager) dispatch(alert Alert, channels []Channel) []DispatchResult {
	results := make([]DispatchResult, 0, len(channels))
	for _, ch := range channels {
		res := DispatchResult{Channel: ch.Name()}
		if err := m.safeSend(ch, alert); err != nil {
			res.Error = err.Error()
			m.logger.Warn("alert channel dispatch failed",
				zap.String("rule", alert.RuleName),
				zap.String("channel", ch.Name()),
				zap.Error(err),
			)
		}
		results = append(results, res)
	}
	return results
}

func (m *Manager) safeSend(ch Channel, alert Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel panicked: %v", r)
		}
	}()
	return ch.Send(alert)
}

func (m *Manager) appendHistoryLocked(entry HistoryEntry) {
	m.history = append(m.history, entry)
	if len(m.history) > m.histMax {
		m.history = m.history[len(m.history)-m.histMax:]
	}
}

// History returns a copy of the history ring, oldest first.
func (m *Manager) History() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HistoryEntry(nil), m.history...)
}

// Start launches the periodic evaluation loop.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	ctx, m.cancel = context.WithCancel(ctx)
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.EvaluateAll()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the evaluation loop, waiting up to timeout.
func (m *Manager) Stop(timeout time.Duration) error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	select {
	case <-m.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("alerting: evaluation loop did not stop in time")
	}
}
