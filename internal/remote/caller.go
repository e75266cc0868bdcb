// Package remote composes the substrate around an expensive remote call:
// result cache in front, circuit breaker around the call, error tracker and
// metrics on the failure path. Business errors still propagate to the
// caller; this package never swallows them.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"watchtower/internal/cache"
	"watchtower/internal/errtrack"
	"watchtower/internal/logging"
	"watchtower/internal/metrics"
)

// ErrCircuitOpen is returned when the breaker refuses the call without
// invoking the remote side.
var ErrCircuitOpen = errors.New("remote: circuit open")

// CallFunc performs the actual remote call.
type CallFunc func(ctx context.Context, d cache.Descriptor) (string, error)

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig mirrors conservative production settings: the breaker
// only trips once enough requests have been seen to judge a failure rate.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// Caller is the guarded entry point for one class of expensive calls.
type Caller struct {
	call    CallFunc
	cb      *gobreaker.CircuitBreaker
	cache   *cache.Cache
	tracker *errtrack.Tracker
	emit    *metrics.Forwarder
	logger  *logging.Logger
}

// NewCaller wires the guard stack. cache, tracker, and emit may each be nil
// to disable that concern.
func NewCaller(cfg BreakerConfig, call CallFunc, resultCache *cache.Cache, tracker *errtrack.Tracker, emit *metrics.Forwarder, logger *logging.Logger) *Caller {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Caller{
		call:    call,
		cache:   resultCache,
		tracker: tracker,
		emit:    emit,
		logger:  logger.Named("remote." + cfg.Name),
	}

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			c.increment("breaker_transitions_total", map[string]string{"to": to.String()})
		},
	})
	return c
}

// Do resolves the descriptor: cache first, then the breaker-guarded call.
// Successful results are cached; failures are captured and counted before
// being returned unchanged to the caller.
func (c *Caller) Do(ctx context.Context, d cache.Descriptor) (string, error) {
	if c.cache != nil {
		if value, ok := c.cache.Get(d); ok {
			c.increment("remote_cache_hits_total", nil)
			return value, nil
		}
		c.increment("remote_cache_misses_total", nil)
	}

	start := time.Now()
	result, err := c.cb.Execute(func() (any, error) {
		return c.call(ctx, d)
	})
	c.observeDuration("remote_call_seconds", time.Since(start))

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.increment("remote_calls_total", map[string]string{"outcome": "rejected"})
			return "", ErrCircuitOpen
		}
		c.increment("remote_calls_total", map[string]string{"outcome": "failure"})
		if c.tracker != nil {
			c.tracker.Capture(err, map[string]string{"model": d.Model})
		}
		return "", err
	}

	value := result.(string)
	c.increment("remote_calls_total", map[string]string{"outcome": "success"})
	if c.cache != nil {
		c.cache.Set(d, value)
	}
	return value, nil
}

func (c *Caller) increment(name string, labels map[string]string) {
	if c.emit != nil {
		c.emit.Increment(name, labels, 1)
	}
}

func (c *Caller) observeDuration(name string, d time.Duration) {
	if c.emit != nil {
		c.emit.ObserveDuration(name, nil, d)
	}
}
