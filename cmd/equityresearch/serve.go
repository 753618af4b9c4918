package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/equityresearch/pkg/api"
	"github.com/codeready-toolchain/equityresearch/pkg/cleanup"
	"github.com/codeready-toolchain/equityresearch/pkg/database"
	"github.com/codeready-toolchain/equityresearch/pkg/events"
	"github.com/codeready-toolchain/equityresearch/pkg/history"
	"github.com/codeready-toolchain/equityresearch/pkg/mcp"
	"github.com/codeready-toolchain/equityresearch/pkg/metrics"
	"github.com/codeready-toolchain/equityresearch/pkg/queue"
	"github.com/codeready-toolchain/equityresearch/pkg/services"
	"github.com/codeready-toolchain/equityresearch/pkg/session"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and research workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts, port)
		},
	}
	cmd.Flags().StringVar(&port, "port", getEnv("HTTP_PORT", "8080"), "HTTP listen port")
	return cmd
}

func serve(ctx context.Context, opts *globalOptions, httpPort string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	slog.Info("Starting equity research service",
		"http_port", httpPort,
		"config_dir", opts.configDir,
		"demo", opts.demo)

	// 1. Configuration
	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}

	// 2. History store: PostgreSQL when configured, in-memory otherwise
	var (
		dbClient *database.Client
		store    history.Store
	)
	if database.Configured() {
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			return err
		}
		dbClient, err = database.NewClient(ctx, dbConfig)
		if err != nil {
			return err
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		store = history.NewPostgresStore(dbClient)
		slog.Info("Connected to PostgreSQL database")
	} else {
		store = history.NewMemoryStore()
		slog.Warn("DB_HOST not set, research history is kept in memory only")
	}

	// 3. Research pipeline
	m := metrics.New()
	p, err := newPipeline(cfg, opts.demo, m)
	if err != nil {
		return err
	}
	defer p.Close()

	warningsService := services.NewSystemWarningsService()
	var healthChecker *mcp.HealthChecker
	if p.factory != nil {
		healthChecker = mcp.NewHealthChecker(p.factory, cfg.MCPServerRegistry)
		// Startup check: unreachable servers surface as system warnings
		// instead of blocking startup.
		go func() {
			checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			statuses := healthChecker.Check(checkCtx)
			for _, st := range statuses {
				m.ToolServerProbed(st.ServerID, st.Healthy)
			}
			warningsService.RecordToolServerHealth(statuses)
		}()
	}

	// 4. Sessions, streaming and workers
	sessions := session.NewManager()
	connManager := events.NewConnectionManager(sessions, 10*time.Second, cfg.Streaming.KeepaliveInterval)

	workerPool := queue.NewWorkerPool(cfg.Queue, queue.NewResearchExecutor(p.engine),
		queue.WithHistory(store), queue.WithMetrics(m))
	workerPool.Start(ctx)

	researchService := services.NewResearchService(sessions, workerPool, store, cfg.Streaming.KeepaliveInterval)

	cleanupService := cleanup.NewService(cfg.Streaming, cfg.Retention, sessions, store)
	cleanupService.Start(ctx)
	defer cleanupService.Stop()

	// 5. HTTP server
	httpServer := api.NewServer(cfg, dbClient, researchService, workerPool, connManager)
	if healthChecker != nil {
		httpServer.SetHealthChecker(healthChecker)
	}
	httpServer.SetWarningsService(warningsService)
	httpServer.SetMetrics(m)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Equity research service started", "workers", cfg.Queue.WorkerCount)

	// 6. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case serveErr = <-errCh:
		slog.Error("Server error triggered shutdown", "error", serveErr)
	}

	// 7. Graceful shutdown: workers first so running sessions can finish
	// and deliver their terminal events to connected clients.
	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer workerCancel()

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, cancelling running sessions")
		workerPool.AbandonRunning()
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return serveErr
}
