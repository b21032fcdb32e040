/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the budget engine server: HTTP API, cron sweep
  scheduler and, when AMQP_URL is set, the progress-event consumer.

STARTUP SEQUENCE:
  1. Load configuration (.env, BUDGET_CONFIG YAML, environment, flags)
  2. Build the logger
  3. Open the SQLite store (migrations run on open)
  4. Create API handler and router
  5. Start the sweep scheduler
  6. Connect to AMQP (optional) and consume progress messages
  7. Serve until SIGINT/SIGTERM or a component fails

COMMAND-LINE FLAGS:
  --port   HTTP server port (overrides PORT)
  --db     SQLite database path (overrides DB_PATH)
           Use ":memory:" for an in-memory database
  --sweep-on-start  Run a full sweep before serving

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections, wait for active requests (30s)
  2. Stop the scheduler, waiting for a running sweep
  3. Run pending coalesced recomputes, then close the store

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - messaging/client.go: AMQP topology
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/budget-engine/api"
	"github.com/warp/budget-engine/config"
	"github.com/warp/budget-engine/logging"
	"github.com/warp/budget-engine/messaging"
	"github.com/warp/budget-engine/store/sqlite"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stderr))
}

// execute runs the root command and reports any error on stderr, since
// cobra's own error printing is silenced.
func execute(args []string, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		port         string
		dbPath       string
		sweepOnStart bool
	)
	cmd := &cobra.Command{
		Use:           "budget-server",
		Short:         "Budget time-phasing and S-curve API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg, sweepOnStart)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "HTTP server port (overrides PORT)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides DB_PATH)")
	cmd.Flags().BoolVar(&sweepOnStart, "sweep-on-start", false, "run a full recompute before serving")
	return cmd
}

func run(cfg *config.Config, sweepOnStart bool) error {
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(logger)
	logger = logging.WithComponent(logger, "server")

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to initialize database", "error", err, "path", cfg.DBPath)
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional broker: the notifier must exist before the handler.
	var amqpClient *messaging.Client
	if cfg.AMQPEnabled() {
		amqpClient, err = messaging.DialWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, 5, logger)
		if err != nil {
			logger.Error("failed to connect to AMQP", "error", err)
			return err
		}
		defer amqpClient.Close()
	}

	opts := api.Options{Debounce: cfg.RecomputeDebounce, Logger: slog.Default()}
	if amqpClient != nil {
		opts.Notifier = amqpClient
	}
	handler := api.NewHandler(store, opts)

	if sweepOnStart {
		if _, err := handler.Sweeper.Run(ctx, api.TriggerManual); err != nil {
			logger.Warn("startup sweep failed", "error", err)
		}
	}

	var scheduler *api.SweepScheduler
	if cfg.SweepSchedule != "" {
		scheduler, err = api.NewSweepScheduler(handler.Sweeper, cfg.SweepSchedule, slog.Default())
		if err != nil {
			return err
		}
		scheduler.Start()
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(handler, api.RouterOptions{CORSOrigins: cfg.CORSOrigins}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.DBPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	if amqpClient != nil {
		consumer := messaging.NewHandler(handler.Aggregator, amqpClient, slog.Default())
		g.Go(func() error {
			err := amqpClient.Consume(gctx, consumer)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if scheduler != nil {
			scheduler.Stop(shutdownCtx)
		}
		if flushErr := handler.Flush(shutdownCtx); flushErr != nil {
			logger.Warn("pending recomputes failed during shutdown", "error", flushErr)
		}
		handler.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
