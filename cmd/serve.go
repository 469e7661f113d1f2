package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/EventMosaicProject/em-collector/internal/api"
	"github.com/EventMosaicProject/em-collector/internal/collector"
	"github.com/EventMosaicProject/em-collector/internal/config"
	"github.com/EventMosaicProject/em-collector/internal/events"
	"github.com/EventMosaicProject/em-collector/internal/fileops"
	"github.com/EventMosaicProject/em-collector/internal/gdelt"
	"github.com/EventMosaicProject/em-collector/internal/kafka"
	"github.com/EventMosaicProject/em-collector/internal/logger"
	"github.com/EventMosaicProject/em-collector/internal/pipeline"
	"github.com/EventMosaicProject/em-collector/internal/retry"
	"github.com/EventMosaicProject/em-collector/internal/scheduler"
	"github.com/EventMosaicProject/em-collector/internal/storage"
	"github.com/EventMosaicProject/em-collector/internal/store"
)

// shutdownTimeout bounds how long the HTTP server drains on exit.
const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the collector service with schedulers and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg *config.Config) error {
	log := logger.Must(cfg.Logger)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApplication(ctx, cfg, log)
	if err != nil {
		return err
	}

	app.publisher.Start(ctx)
	app.bus.Start(ctx)
	app.scheduler.Start()

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.NewRouter(ctx, app.coordinator, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", logger.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", logger.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("http server failed", logger.Error(err))
	}

	// Stop accepting new work, then drain in dependency order: ticks
	// first, then the event bus, then the producer flush.
	app.scheduler.Stop()
	cancel()
	app.bus.Stop()
	app.publisher.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", logger.Error(err))
	}

	if err := app.redis.Close(); err != nil {
		log.Warn("redis close failed", logger.Error(err))
	}

	log.Info("collector stopped")
	return nil
}

// application bundles the wired components the serve command manages.
type application struct {
	redis       redisCloser
	publisher   *kafka.Publisher
	bus         *events.Bus
	coordinator *collector.Coordinator
	scheduler   *scheduler.Scheduler
}

type redisCloser interface {
	Close() error
}

// buildApplication wires every component of the ingestion pipeline.
// Construction order follows the dependency graph: stores and object
// storage first, then publisher, listener, pipeline, coordinator, and
// the schedulers on top.
func buildApplication(ctx context.Context, cfg *config.Config, log logger.Logger) (*application, error) {
	rdb, err := store.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	hashes := store.NewHashStore(rdb, cfg.Gdelt.HashTTL, log)
	status := store.NewStatusStore(rdb, cfg.Gdelt.StatusTTL, log)

	objects, err := storage.New(ctx, cfg.Minio, log)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("initialize object store: %w", err)
	}

	publisher, err := kafka.NewPublisher(cfg.Kafka, status, log)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("initialize kafka publisher: %w", err)
	}

	resolver := gdelt.NewTopicResolver(cfg.Kafka)
	listener := events.NewListener(resolver, status, publisher, log)
	bus := events.NewBus(listener, log)

	fops := fileops.New(cfg.Gdelt.HTTPConnectTimeout, cfg.Gdelt.HTTPReadTimeout, log)
	processor := pipeline.NewProcessor(fops, hashes, objects, bus, resolver, cfg.Gdelt.DownloadDir, log)

	coordinator := collector.NewCoordinator(
		cfg.Gdelt.ManifestURL,
		cfg.Gdelt.HTTPConnectTimeout,
		cfg.Gdelt.HTTPReadTimeout,
		retry.Config{
			MaxAttempts:  cfg.Gdelt.RetryMaxAttempts,
			InitialDelay: cfg.Gdelt.RetryInitialDelay,
			MaxDelay:     cfg.Gdelt.RetryMaxDelay,
			Multiplier:   2.0,
		},
		hashes,
		processor,
		log,
	)

	retryJob := scheduler.NewRetryJob(status, resolver, publisher, log)
	sched, err := scheduler.New(coordinator, retryJob, cfg.Gdelt.CheckInterval, cfg.Gdelt.RetryInterval, log)
	if err != nil {
		publisher.Close()
		rdb.Close()
		return nil, fmt.Errorf("initialize scheduler: %w", err)
	}

	return &application{
		redis:       rdb,
		publisher:   publisher,
		bus:         bus,
		coordinator: coordinator,
		scheduler:   sched,
	}, nil
}
