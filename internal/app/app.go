// Package app owns the assembled component graph and its lifecycle. All
// components are built once, injected explicitly, and torn down in reverse
// order; the only process-wide state is the optional Default() accessor.
package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"watchtower/internal/alerting"
	"watchtower/internal/cache"
	"watchtower/internal/config"
	"watchtower/internal/errtrack"
	"watchtower/internal/health"
	"watchtower/internal/logging"
	"watchtower/internal/metrics"
)

const shutdownGrace = 10 * time.Second

// App holds every component of the substrate.
type App struct {
	Config     *config.Config
	Logger     *logging.Logger
	Registry   *metrics.Registry
	Forwarder  *metrics.Forwarder
	Normalizer *metrics.Normalizer
	Cache      *cache.Cache
	Tracker    *errtrack.Tracker
	Alerts     *alerting.Manager
	Health     *health.Aggregator
	Servers    Servers

	watcher *config.Watcher
	cancel  context.CancelFunc
}

// Servers groups the HTTP listeners so App stays flat.
type Servers struct {
	Health   *health.Server
	Exporter *metrics.ExporterServer
}

// DefaultAlertChannels builds the channel list the config enables. The log
// channel is always present so every alert lands somewhere.
func (a *App) DefaultAlertChannels() []alerting.Channel {
	channels := []alerting.Channel{alerting.NewLogChannel(a.Logger)}
	if a.Config.Alerting.Email != nil {
		channels = append(channels, alerting.NewEmailChannel(*a.Config.Alerting.Email))
	}
	if url := a.Config.Alerting.ChatWebhookURL; url != "" {
		channels = append(channels, alerting.NewChatWebhookChannel(url))
	}
	if url := a.Config.Alerting.WebhookURL; url != "" {
		channels = append(channels, alerting.NewWebhookChannel(url))
	}
	return channels
}

// WatchConfig enables hot reload of the tunable sections from path.
func (a *App) WatchConfig(path string) error {
	w, err := config.NewWatcher(path, a.Logger)
	if err != nil {
		return err
	}
	w.OnReload(func(cfg *config.Config) {
		a.Normalizer.Update(cfg.Normalization)
	})
	a.watcher = w
	return nil
}

// Start launches the background workers and listeners.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	a.Forwarder.Start(ctx)
	a.Alerts.Start(ctx, a.Config.Alerting.EvaluationInterval)
	a.Servers.Health.Start()
	a.Servers.Exporter.Start()
	if a.watcher != nil {
		a.watcher.Start(ctx)
	}
	a.Logger.Info("watchtower started",
		zap.String("environment", string(a.Config.Environment)),
		zap.String("health_addr", a.Config.Health.Addr),
		zap.String("exporter_addr", a.Config.Metrics.ExporterAddr),
	)
}

// Stop tears the graph down in reverse start order. Listeners close first so
// no new work arrives, then workers drain.
func (a *App) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	var errs []error
	if err := a.Servers.Exporter.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Servers.Health.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.Alerts.Stop(shutdownGrace); err != nil {
		errs = append(errs, err)
	}
	if err := a.Forwarder.Stop(shutdownGrace); err != nil {
		errs = append(errs, err)
	}
	a.Logger.Info("watchtower stopped", zap.Int("errors", len(errs)))
	a.Logger.Sync()
	return errors.Join(errs...)
}
