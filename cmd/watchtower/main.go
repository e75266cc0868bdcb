// Command watchtower runs the observability substrate as a standalone
// process: metrics forwarder, alert evaluation loop, health and exporter
// listeners, with config hot reload.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"watchtower/internal/alerting"
	"watchtower/internal/app"
	"watchtower/internal/config"
	"watchtower/internal/di"
	"watchtower/internal/health"
)

func main() {
	configPath := flag.String("config", os.Getenv("WATCHTOWER_CONFIG"), "path to config YAML")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	a, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("initialize: %v", err)
	}
	if err := app.Init(a); err != nil {
		log.Fatalf("install default app: %v", err)
	}

	if *configPath != "" {
		if err := a.WatchConfig(*configPath); err != nil {
			a.Logger.Warn("config hot reload disabled", zap.Error(err))
		}
	}

	registerBuiltinAlerts(a)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Start(ctx)

	<-ctx.Done()
	a.Logger.Info("shutdown signal received")
	if err := app.Teardown(); err != nil {
		a.Logger.Error("shutdown finished with errors", zap.Error(err))
		os.Exit(1)
	}
}

// registerBuiltinAlerts wires the substrate's self-monitoring rules: the
// pipeline alerting on its own failure modes.
func registerBuiltinAlerts(a *app.App) {
	channels := a.DefaultAlertChannels()

	mustRegister(a, alerting.Rule{
		Name:      "metric-commands-dropped",
		Predicate: func() bool { return a.Forwarder.Dropped() > 0 },
		Message:   "metric forwarder is dropping commands under load",
		Level:     alerting.LevelWarning,
		Channels:  channels,
		Cooldown:  10 * time.Minute,
	})
	mustRegister(a, alerting.Rule{
		Name:      "unresolved-errors-high",
		Predicate: func() bool { return a.Tracker.UnresolvedCount() > 50 },
		Message:   "unresolved tracked errors exceed 50",
		Level:     alerting.LevelCritical,
		Channels:  channels,
		Cooldown:  30 * time.Minute,
	})
	mustRegister(a, alerting.Rule{
		Name:       "health-unhealthy",
		Predicate:  func() bool { return a.Health.Evaluate(context.Background()).Status == health.StatusUnhealthy },
		Message:    "aggregate health is unhealthy",
		Level:      alerting.LevelCritical,
		Channels:   channels,
		Cooldown:   5 * time.Minute,
		MaxPerHour: 6,
	})
}

func mustRegister(a *app.App, rule alerting.Rule) {
	if err := a.Alerts.Register(rule); err != nil {
		log.Fatalf("register alert rule %s: %v", rule.Name, err)
	}
}
