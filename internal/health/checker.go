// Package health runs named component checks, folds them into an overall
// status, and serves the liveness/readiness HTTP surface.
package health

import (
	"context"
	"sync"
	"time"
)

// CheckStatus is the verdict of one component check.
type CheckStatus string

const (
	CheckPass CheckStatus = "pass"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// Status is the aggregate over all checks.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentCheck is produced fresh on every evaluation.
type ComponentCheck struct {
	Component string         `json:"component"`
	Status    CheckStatus    `json:"status"`
	Message   string         `json:"message,omitempty"`
	Latency   time.Duration  `json:"latency_ns"`
	Details   map[string]any `json:"details,omitempty"`
}

// Checker evaluates one component. Implementations must be side-effect free;
// the aggregator may call them concurrently with anything else.
type Checker func(ctx context.Context) ComponentCheck

// Report is one full evaluation.
type Report struct {
	Status    Status           `json:"status"`
	Checks    []ComponentCheck `json:"checks"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
}

// Aggregator owns the registered checks.
type Aggregator struct {
	mu       sync.Mutex
	names    []string
	checkers map[string]Checker
	started  time.Time
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		checkers: make(map[string]Checker),
		started:  time.Now(),
	}
}

// Register adds or replaces a named check. Evaluation preserves registration
// order so reports are stable.
func (a *Aggregator) Register(name string, checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.checkers[name]; !exists {
		a.names = append(a.names, name)
	}
	a.checkers[name] = checker
}

// Evaluate runs every check and folds the verdicts: any fail makes the
// aggregate unhealthy; otherwise any warn makes it degraded; otherwise
// healthy. A panicking check counts as a fail rather than taking the
// endpoint down.
func (a *Aggregator) Evaluate(ctx context.Context) Report {
	a.mu.Lock()
	names := append([]string(nil), a.names...)
	checkers := make(map[string]Checker, len(a.checkers))
	for k, v := range a.checkers {
		checkers[k] = v
	}
	started := a.started
	a.mu.Unlock()

	report := Report{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(started).Round(time.Second).String(),
	}
	for _, name := range names {
		check := runChecker(ctx, name, checkers[name])
		report.Checks = append(report.Checks, check)
		switch check.Status {
		case CheckFail:
			report.Status = StatusUnhealthy
		case CheckWarn:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

func runChecker(ctx context.Context, name string, checker Checker) (check ComponentCheck) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			check = ComponentCheck{
				Component: name,
				Status:    CheckFail,
				Message:   "check panicked",
				Latency:   time.Since(start),
			}
		}
	}()
	check = checker(ctx)
	if check.Component == "" {
		check.Component = name
	}
	if check.Latency == 0 {
		check.Latency = time.Since(start)
	}
	return check
}
