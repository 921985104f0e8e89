// cmd/nvahad/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Trigsy1/ha-nva-fo-danat/internal/alert"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/azure"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/clock"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/config"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/controller"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/decision"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/metrics"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/probe"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/routes"
	"github.com/Trigsy1/ha-nva-fo-danat/internal/topology"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("configuration invalid", zap.Error(err))
	}

	clients, err := azure.NewClients(cfg.SubscriptionID, cfg.UDRTag, nil, logger)
	if err != nil {
		logger.Fatal("azure client setup failed", zap.Error(err))
	}

	pair := cfg.Pair()
	var prober probe.Prober
	switch cfg.Monitor {
	case config.MonitorVMStatus:
		prober = probe.NewVMStatusProber(clients, pair, logger)
	case config.MonitorTCPPort:
		prober = probe.NewTCPProber(pair, probe.DefaultTCPTimeout, logger)
	}
	logger.Info("monitor configured",
		zap.String("mode", cfg.Monitor),
		zap.Int("tries", cfg.Tries),
		zap.Int("delay_seconds", cfg.Delay))

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	notifier := alert.MultiNotifier{alert.NewLogNotifier(logger)}
	if cfg.AlertWebhook != "" {
		notifier = append(notifier, alert.NewWebhookNotifier(cfg.AlertWebhook, logger))
	}

	ctrl := controller.New(
		decision.Policy{FailoverEnabled: cfg.FailoverEnabled, FailbackEnabled: cfg.FailbackEnabled},
		topology.NewDiscoverer(clients, clients, pair, cfg.SubscriptionID, logger),
		probe.NewAggregator(prober, cfg.Tries, cfg.ProbeDelay(), clock.New(), m, logger),
		routes.NewUpdater(clients, notifier, m, logger),
		notifier,
		m,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := ctrl.Run(ctx)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("run finished",
		zap.String("run_id", result.RunID),
		zap.Stringer("action", result.Action),
		zap.Int("changed_tables", result.ChangedTables))
}
