package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"watchtower/internal/logging"
)

// bridgeCollector adapts a Registry snapshot into Prometheus const metrics
// so promhttp can render the standard exposition format (# HELP/# TYPE plus
// _bucket/_sum/_count for histograms) without the registry depending on
// Prometheus types anywhere else.
type bridgeCollector struct {
	registry  *Registry
	namespace string
}

// Describe sends no descriptors, making this an unchecked collector; the
// series set is dynamic and only known at scrape time.
func (c *bridgeCollector) Describe(chan<- *prometheus.Desc) {}

func (c *bridgeCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.registry.Snapshot()

	for _, s := range snap.Counters {
		desc := prometheus.NewDesc(
			c.fqName(s.Name),
			"Counter "+s.Name,
			s.Labels.Keys(), nil,
		)
		m, err := prometheus.NewConstMetric(desc, prometheus.CounterValue, s.Value, s.Labels.Values()...)
		if err != nil {
			continue
		}
		ch <- m
	}

	for _, s := range snap.Gauges {
		desc := prometheus.NewDesc(
			c.fqName(s.Name),
			"Gauge "+s.Name,
			s.Labels.Keys(), nil,
		)
		m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, s.Value, s.Labels.Values()...)
		if err != nil {
			continue
		}
		ch <- m
	}

	for _, h := range snap.Histograms {
		desc := prometheus.NewDesc(
			c.fqName(h.Name),
			"Histogram "+h.Name,
			h.Labels.Keys(), nil,
		)
		m, err := prometheus.NewConstHistogram(desc, h.Count, h.Sum, h.Buckets, h.Labels.Values()...)
		if err != nil {
			continue
		}
		ch <- m
	}
}

func (c *bridgeCollector) fqName(name string) string {
	name = sanitizeMetricName(name)
	if c.namespace == "" {
		return name
	}
	return c.namespace + "_" + name
}

// sanitizeMetricName maps arbitrary series names onto the exposition
// charset [a-zA-Z0-9_:].
func sanitizeMetricName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			b.WriteRune(r)
		case r >= '0' && r <= '9' && i > 0:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// NewPrometheusRegistry builds a Prometheus registry serving the given
// Registry's series via the bridge collector.
func NewPrometheusRegistry(registry *Registry, namespace string) *prometheus.Registry {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(&bridgeCollector{registry: registry, namespace: namespace})
	return promReg
}

// ExporterServer serves GET /metrics in Prometheus exposition format plus a
// trivial GET /health, on its own listener separate from the health surface.
type ExporterServer struct {
	server *http.Server
	logger *logging.Logger
	errCh  chan error
}

// NewExporterServer builds the exporter listener. namespace prefixes every
// exported metric name.
func NewExporterServer(addr string, registry *Registry, namespace string, logger *logging.Logger) *ExporterServer {
	if logger == nil {
		logger = logging.NewNop()
	}
	promReg := NewPrometheusRegistry(registry, namespace)

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return &ExporterServer{
		server: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger.Named("metrics.exporter"),
		errCh:  make(chan error, 1),
	}
}

// Handler exposes the underlying handler for embedding in tests.
func (s *ExporterServer) Handler() http.Handler { return s.server.Handler }

// Start begins listening in a background goroutine.
func (s *ExporterServer) Start() {
	s.logger.Info("metrics exporter listening", zap.String("addr", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("exporter server failed", zap.Error(err))
			s.errCh <- err
		}
	}()
}

// Stop shuts the listener down gracefully within ctx's deadline.
func (s *ExporterServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
