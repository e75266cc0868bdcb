package metrics

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"watchtower/internal/logging"
)

// Metric emission must never add latency or deadlock risk on the request
// path, so the usual lock-then-mutate pattern is inverted: callers enqueue a
// command and return, and a single owner goroutine applies commands to the
// registry. Overflow drops the command and counts the drop; it never blocks
// past the enqueue timeout and never retries.

type commandKind uint8

const (
	cmdIncrement commandKind = iota
	cmdGauge
	cmdObserve
)

// MetricCommand is an enqueued write intent. Owned by the queue until the
// worker applies and discards it.
type MetricCommand struct {
	kind   commandKind
	name   string
	labels map[string]string
	value  float64
}

// DefaultEnqueueTimeout bounds how long a caller may wait on a full queue.
const DefaultEnqueueTimeout = 2 * time.Millisecond

// DefaultQueueSize is the bounded command queue capacity.
const DefaultQueueSize = 4096

// ErrStopTimeout is returned when the worker does not drain within the stop
// deadline.
var ErrStopTimeout = errors.New("metrics: forwarder worker did not stop in time")

// Forwarder exposes the registry's write surface with non-blocking
// semantics. One Forwarder owns one worker goroutine.
type Forwarder struct {
	registry *Registry
	queue    chan MetricCommand
	timeout  time.Duration
	logger   *logging.Logger

	dropped       atomic.Uint64
	applyFailures atomic.Uint64

	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
}

// ForwarderOption customizes a Forwarder.
type ForwarderOption func(*Forwarder)

// WithQueueSize overrides the bounded queue capacity.
func WithQueueSize(n int) ForwarderOption {
	return func(f *Forwarder) {
		if n > 0 {
			f.queue = make(chan MetricCommand, n)
		}
	}
}

// WithEnqueueTimeout overrides how long enqueue may block before dropping.
func WithEnqueueTimeout(d time.Duration) ForwarderOption {
	return func(f *Forwarder) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewForwarder creates a forwarder in front of registry. Start must be
// called before commands are applied; enqueueing works immediately.
func NewForwarder(registry *Registry, logger *logging.Logger, opts ...ForwarderOption) *Forwarder {
	if logger == nil {
		logger = logging.NewNop()
	}
	f := &Forwarder{
		registry: registry,
		queue:    make(chan MetricCommand, DefaultQueueSize),
		timeout:  DefaultEnqueueTimeout,
		logger:   logger.Named("metrics.forwarder"),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Increment enqueues a counter increment.
func (f *Forwarder) Increment(name string, labels map[string]string, amount float64) {
	f.enqueue(MetricCommand{kind: cmdIncrement, name: name, labels: labels, value: amount})
}

// SetGauge enqueues a gauge set.
func (f *Forwarder) SetGauge(name string, labels map[string]string, value float64) {
	f.enqueue(MetricCommand{kind: cmdGauge, name: name, labels: labels, value: value})
}

// Observe enqueues a histogram observation.
func (f *Forwarder) Observe(name string, labels map[string]string, value float64) {
	f.enqueue(MetricCommand{kind: cmdObserve, name: name, labels: labels, value: value})
}

// ObserveDuration enqueues a duration observation in seconds.
func (f *Forwarder) ObserveDuration(name string, labels map[string]string, d time.Duration) {
	f.Observe(name, labels, d.Seconds())
}

// enqueue attempts a fast non-blocking send, then one bounded wait. On
// timeout the command is dropped and counted; dropping is deliberately not
// followed by a metric emission about the drop, which would recurse.
func (f *Forwarder) enqueue(cmd MetricCommand) {
	select {
	case f.queue <- cmd:
		return
	default:
	}

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()
	select {
	case f.queue <- cmd:
	case <-timer.C:
		f.dropped.Add(1)
	}
}

// Dropped returns how many commands were dropped on overflow.
func (f *Forwarder) Dropped() uint64 { return f.dropped.Load() }

// ApplyFailures returns how many commands failed while being applied.
func (f *Forwarder) ApplyFailures() uint64 { return f.applyFailures.Load() }

// QueueDepth returns the number of commands currently waiting.
func (f *Forwarder) QueueDepth() int { return len(f.queue) }

// Start launches the single worker goroutine. Calling Start twice is a
// no-op.
func (f *Forwarder) Start(ctx context.Context) {
	if !f.started.CompareAndSwap(false, true) {
		return
	}
	ctx, f.cancel = context.WithCancel(ctx)
	go f.run(ctx)
}

func (f *Forwarder) run(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case cmd := <-f.queue:
			f.apply(cmd)
		case <-ctx.Done():
			f.drain()
			return
		}
	}
}

// drain applies whatever is already queued without waiting for more.
func (f *Forwarder) drain() {
	for {
		select {
		case cmd := <-f.queue:
			f.apply(cmd)
		default:
			return
		}
	}
}

// apply executes one command. A panic here is swallowed and counted so a
// single bad command cannot stall the worker.
func (f *Forwarder) apply(cmd MetricCommand) {
	defer func() {
		if r := recover(); r != nil {
			f.applyFailures.Add(1)
			f.logger.Warn("metric command apply failed",
				zap.String("metric", cmd.name),
				zap.Any("panic", r),
			)
		}
	}()

	switch cmd.kind {
	case cmdIncrement:
		f.registry.Increment(cmd.name, cmd.labels, cmd.value)
	case cmdGauge:
		f.registry.SetGauge(cmd.name, cmd.labels, cmd.value)
	case cmdObserve:
		f.registry.Observe(cmd.name, cmd.labels, cmd.value)
	}
}

// Stop cancels the worker, lets it drain the queue, and waits up to timeout
// for it to exit.
func (f *Forwarder) Stop(timeout time.Duration) error {
	if !f.started.Load() {
		return nil
	}
	f.cancel()
	select {
	case <-f.done:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}
