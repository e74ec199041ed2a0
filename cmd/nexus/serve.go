package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/nexus/internal/adapters/driven/storage"
	"github.com/custodia-labs/nexus/internal/adapters/driving/http"
	"github.com/custodia-labs/nexus/internal/core/services"
	"github.com/custodia-labs/nexus/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the task worker in one process",
	Long: `Run the HTTP API and the task worker together. This is the only mode
that works with the in-memory task queue.

Examples:
  # Local development against Ollama
  nexus serve

  # With a config file
  nexus serve --config /etc/nexus/nexus.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), true, true)
	},
}

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run only the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), true, false)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the task worker and scheduler",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), false, true)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, apiCmd, workerCmd)
}

// run starts the requested roles and blocks until SIGINT or SIGTERM.
func run(parent context.Context, api, work bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if !work && cfg.Queue.Backend == "memory" {
		logger.Warn("api mode with the memory queue: submitted tasks are never processed")
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	logger.Info("nexus starting", "version", version, "api", api, "worker", work)

	if work {
		w := worker.NewWorker(worker.WorkerConfig{
			TaskQueue: a.runtime.Queue(),
			Ingester:  a.ingestion,
			Slack:     a.slack,
			Scheduler: services.NewScheduler(services.SchedulerConfig{
				TaskQueue: a.runtime.Queue(),
				Lock:      a.runtime.Lock(),
				Logger:    logger,
				Tasks:     a.scheduledTasks(),
			}),
			Logger:         logger,
			Concurrency:    cfg.Worker.Concurrency,
			DequeueTimeout: cfg.Worker.DequeueTimeout,
			IngestTimeout:  cfg.Worker.IngestTimeout,
			SlackTimeout:   cfg.Worker.SlackTimeout,
			ScanTimeout:    cfg.Worker.ScanTimeout,
		})
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
		defer w.Stop()

		if cfg.Storage.Watch {
			watcher, err := storage.NewWatcher(storage.WatcherConfig{
				Store:       a.objects,
				Submitter:   a.ingestion,
				SettleDelay: cfg.Storage.SettleDelay,
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			if err := watcher.Start(ctx); err != nil {
				return err
			}
			defer watcher.Stop()
		}
	}

	if !api {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		return nil
	}

	server := http.NewServer(http.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		Version:           version,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		QueryTimeout:      cfg.Server.QueryTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		RateLimit:         cfg.Server.RateLimit,
		RateBurst:         cfg.Server.RateBurst,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		Logger:            logger,
	}, http.Services{
		Catalog:   a.catalog,
		Query:     a.query,
		Ingestion: a.ingestion,
		Slack:     a.slack,
		Tokens:    a.tokens,
		Readiness: a.runtime,
	})
	return server.Start(ctx)
}
