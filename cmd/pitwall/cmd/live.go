package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pitwall/pitwall/internal/collections"
	"github.com/pitwall/pitwall/internal/config"
	"github.com/pitwall/pitwall/internal/lifecycle"
	"github.com/pitwall/pitwall/internal/platform/docstore"
	"github.com/pitwall/pitwall/internal/platform/nats"
	"github.com/pitwall/pitwall/internal/platform/objstore"
	"github.com/pitwall/pitwall/internal/realtime"
	"github.com/pitwall/pitwall/internal/schedule"
)

func liveCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Ingest the next scheduled session from the live feed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := slog.Default()

			store, err := docstore.Connect(ctx, docstore.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase}, logger)
			if err != nil {
				return fmt.Errorf("connecting document store: %w", err)
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := store.Close(closeCtx); err != nil {
					logger.Warn("closing document store", "error", err)
				}
			}()

			runner := realtime.NewRunner(
				realtime.Config{Year: year, FeedToken: cfg.FeedToken},
				schedule.NewClient("", logger),
				collections.NewRegistry(),
				store,
				logger,
			)

			if cfg.NATSURL != "" {
				pub, err := nats.Connect(nats.Config{URL: cfg.NATSURL}, logger)
				if err != nil {
					return fmt.Errorf("connecting fan-out: %w", err)
				}
				defer func() {
					if err := pub.Close(); err != nil {
						logger.Warn("closing fan-out", "error", err)
					}
				}()
				runner.WithPublisher(pub)
			}

			if cfg.S3Endpoint != "" {
				archive, err := objstore.Connect(ctx, objstore.Config{
					Endpoint:  cfg.S3Endpoint,
					AccessKey: cfg.S3AccessKey,
					SecretKey: cfg.S3SecretKey,
					UseSSL:    cfg.S3SSL,
					Bucket:    cfg.RawBucket,
				}, logger)
				if err != nil {
					return fmt.Errorf("connecting raw archive: %w", err)
				}
				runner.WithArchive(archive)
			}

			if cfg.RedisAddr != "" {
				coordinator, err := lifecycle.NewCoordinator(lifecycle.Config{Addr: cfg.RedisAddr}, logger)
				if err != nil {
					return fmt.Errorf("connecting lifecycle coordinator: %w", err)
				}
				defer func() {
					if err := coordinator.Close(); err != nil {
						logger.Warn("closing lifecycle coordinator", "error", err)
					}
				}()
				runner.WithCoordinator(coordinator)
			}

			return runner.Run(ctx)
		},
	}
	cmd.Flags().IntVar(&year, "year", time.Now().UTC().Year(), "Championship year to watch")
	return cmd
}
