package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/EventMosaicProject/em-collector/internal/config"
	"github.com/EventMosaicProject/em-collector/internal/logger"
)

func newCollectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run a single manifest check and exit",
		Long: `Performs one ingestion tick: fetches the manifest, processes every
new or changed archive, and waits for the event bus and producer to
drain before exiting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			return runCollect(cfg)
		},
	}
}

func runCollect(cfg *config.Config) error {
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

	err = app.coordinator.Tick(ctx)

	app.bus.Stop()
	app.publisher.Close()
	if closeErr := app.redis.Close(); closeErr != nil {
		log.Warn("redis close failed", logger.Error(closeErr))
	}

	return err
}
