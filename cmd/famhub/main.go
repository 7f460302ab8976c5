package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"famhub/internal/api"
	"famhub/internal/bootstrap"
	"famhub/internal/config"
	"famhub/internal/database"
	"famhub/internal/events"
	"famhub/internal/indicator"
	"famhub/internal/logging"
	"famhub/internal/metrics"
	"famhub/internal/models"
	"famhub/internal/network"
	"famhub/internal/remote"
	"famhub/internal/service"
	"famhub/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, base, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := logging.Component(base, "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, logger)

	storage, err := bootstrap.OpenStorage(ctx, cfg, logging.Component(base, "storage"))
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Storage.Driver).Msg("open storage")
		return err
	}
	defer storage.Close()

	queue := bootstrap.NewQueue(storage, cfg)
	defer queue.Close()

	client, closeRemote, err := remote.New(ctx, cfg.Remote, logging.Component(base, "remote"))
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Remote.Driver).Msg("init remote client")
		return err
	}
	defer closeRemote()

	eventBus := events.NewEventBus()
	logEvents(eventBus, logging.Component(base, "events"))
	monitor := initMonitor(cfg, eventBus, logging.Component(base, "network"))
	go monitor.Start(ctx)

	runner := worker.NewSyncRunner(queue, client, worker.Options{
		ActionTimeout: cfg.Sync.ActionTimeout,
		Events:        eventBus,
		Logger:        logging.Component(base, "sync"),
	})

	ind, err := indicator.New(ctx, monitor, queue, runner, indicator.Options{
		DisplayTimeout:  cfg.Indicator.DisplayTimeout,
		SyncOnReconnect: cfg.SyncOnReconnect(),
		Events:          eventBus,
		Logger:          logging.Component(base, "indicator"),
	})
	if err != nil {
		logger.Error().Err(err).Msg("init offline indicator")
		return err
	}
	defer ind.Close()

	actions := service.NewActionService(queue, client, monitor, eventBus, logging.Component(base, "actions"))

	startBackups(ctx, cfg, storage, logging.Component(base, "backup"))

	snap := ind.Snapshot()
	logger.Info().
		Str("storage", storage.Driver).
		Str("remote", cfg.Remote.Driver).
		Str("state", string(snap.State)).
		Int("queued", snap.QueuedCount).
		Msg("famhub agent started")

	if !cfg.API.Enabled {
		<-ctx.Done()
		logger.Info().Msg("shutdown signal received")
		return nil
	}

	httpServer := api.NewHTTPServer(cfg.API, ind, actions, monitor, logging.Component(base, "http"))
	return serve(ctx, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, closer, nil
}

func initMonitor(cfg *config.Config, eventBus *events.EventBus, logger *zerolog.Logger) *network.Monitor {
	opts := network.Options{
		Online:   cfg.AssumeOnline(),
		Interval: cfg.Network.ProbeInterval,
		Backoff: network.Backoff{
			Initial: cfg.Network.ProbeInterval,
			Max:     cfg.Network.MaxProbeInterval,
			Factor:  cfg.Network.OfflineBackoff,
		},
		Events: eventBus,
		Logger: logger,
	}
	if cfg.Network.ProbeURL != "" {
		opts.Prober = network.NewHTTPProber(cfg.Network.ProbeURL, cfg.Network.ProbeTimeout)
	} else {
		logger.Info().Msg("no probe url configured, connectivity changes come from the API only")
	}
	return network.NewMonitor(opts)
}

// logEvents records sync outcomes so a drain pass can be followed in the logs.
func logEvents(eventBus *events.EventBus, logger *zerolog.Logger) {
	for _, eventType := range []string{events.EventSyncCompleted, events.EventSyncFailed, events.EventActionQueued} {
		eventBus.Subscribe(eventType, func(event *events.Event) error {
			logger.Info().Str("event", event.Type).RawJSON("payload", event.Payload).Msg("domain event")
			return nil
		})
	}
}

func startBackups(ctx context.Context, cfg *config.Config, storage *bootstrap.Storage, logger *zerolog.Logger) {
	if storage.DB == nil {
		if cfg.Backup.Enabled {
			logger.Warn().Str("driver", storage.Driver).Msg("backups need a sqlite file, skipping")
		}
		return
	}
	go database.NewBackupService(storage.DB.Path(), cfg.Backup, logger).Start(ctx)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server stopped")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), models.ShutdownTimeout*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
