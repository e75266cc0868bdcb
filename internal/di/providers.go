// Package di is the Wire composition root: one provider per component, all
// parameterized by *config.Config. Regenerate wire_gen.go with
// `wire ./internal/di` after changing providers.
package di

import (
	"github.com/google/wire"

	"watchtower/internal/alerting"
	"watchtower/internal/app"
	"watchtower/internal/cache"
	"watchtower/internal/config"
	"watchtower/internal/errtrack"
	"watchtower/internal/health"
	"watchtower/internal/logging"
	"watchtower/internal/metrics"
)

// AppSet wires the whole component graph.
var AppSet = wire.NewSet(
	provideLogger,
	provideRegistry,
	provideForwarder,
	provideNormalizer,
	provideCache,
	provideTracker,
	provideAlertManager,
	provideAggregator,
	provideServers,
	provideApp,
)

func provideLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(cfg.Logging)
}

func provideRegistry(cfg *config.Config) *metrics.Registry {
	return metrics.NewRegistry(metrics.WithMaxObservations(cfg.Metrics.MaxObservations))
}

func provideForwarder(cfg *config.Config, registry *metrics.Registry, logger *logging.Logger) *metrics.Forwarder {
	return metrics.NewForwarder(registry, logger,
		metrics.WithQueueSize(cfg.Metrics.QueueSize),
		metrics.WithEnqueueTimeout(cfg.Metrics.EnqueueTimeout),
	)
}

func provideNormalizer(cfg *config.Config) *metrics.Normalizer {
	return metrics.NewNormalizer(cfg.Normalization, metrics.NormalizationParams{})
}

func provideCache(cfg *config.Config, logger *logging.Logger) (*cache.Cache, error) {
	return cache.New(cache.Options{
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        cfg.Cache.TTL,
		Dir:        cfg.Cache.Dir,
	}, logger)
}

func provideTracker(cfg *config.Config, logger *logging.Logger) *errtrack.Tracker {
	return errtrack.NewTracker(cfg.Errors.MaxRecords, logger)
}

func provideAlertManager(cfg *config.Config, logger *logging.Logger) *alerting.Manager {
	return alerting.NewManager(logger, alerting.WithHistorySize(cfg.Alerting.HistorySize))
}

// provideAggregator registers the default checks; callers add their own after
// injection.
func provideAggregator(cfg *config.Config, registry *metrics.Registry) *health.Aggregator {
	agg := health.NewAggregator()
	agg.Register("resources", health.ResourceCheck(cfg.Health.Resources))
	agg.Register("metrics_registry", health.RegistrySelfCheck(registry, cfg.Health.MaxSeries))
	for _, dir := range cfg.Health.RequiredDirs {
		agg.Register("dir:"+dir, health.DirectoryCheck(dir))
	}
	return agg
}

func provideServers(cfg *config.Config, aggregator *health.Aggregator, registry *metrics.Registry, logger *logging.Logger) app.Servers {
	return app.Servers{
		Health:   health.NewServer(cfg.Health.Addr, aggregator, logger),
		Exporter: metrics.NewExporterServer(cfg.Metrics.ExporterAddr, registry, cfg.Metrics.Namespace, logger),
	}
}

func provideApp(
	cfg *config.Config,
	logger *logging.Logger,
	registry *metrics.Registry,
	forwarder *metrics.Forwarder,
	normalizer *metrics.Normalizer,
	resultCache *cache.Cache,
	tracker *errtrack.Tracker,
	alerts *alerting.Manager,
	aggregator *health.Aggregator,
	servers app.Servers,
) *app.App {
	return &app.App{
		Config:     cfg,
		Logger:     logger,
		Registry:   registry,
		Forwarder:  forwarder,
		Normalizer: normalizer,
		Cache:      resultCache,
		Tracker:    tracker,
		Alerts:     alerts,
		Health:     aggregator,
		Servers:    servers,
	}
}
