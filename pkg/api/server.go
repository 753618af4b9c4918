// Package api exposes the research service over HTTP: session start and
// cancel, Server-Sent Events progress streams, a WebSocket endpoint, stored
// report history, health and metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/equityresearch/pkg/config"
	"github.com/codeready-toolchain/equityresearch/pkg/database"
	"github.com/codeready-toolchain/equityresearch/pkg/events"
	"github.com/codeready-toolchain/equityresearch/pkg/mcp"
	"github.com/codeready-toolchain/equityresearch/pkg/metrics"
	"github.com/codeready-toolchain/equityresearch/pkg/queue"
	"github.com/codeready-toolchain/equityresearch/pkg/services"
)

// PoolHealthSource reports worker pool health. Implemented by *queue.WorkerPool.
type PoolHealthSource interface {
	Health() *queue.PoolHealth
}

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg             *config.Config
	dbClient        *database.Client // nil when history is kept in memory
	researchService *services.ResearchService
	workerPool      PoolHealthSource
	connManager     *events.ConnectionManager

	healthChecker  *mcp.HealthChecker // nil in demo mode
	warningService *services.SystemWarningsService
	metrics        *metrics.Metrics
}

// NewServer creates the server and registers all routes.
func NewServer(
	cfg *config.Config,
	dbClient *database.Client,
	researchService *services.ResearchService,
	workerPool PoolHealthSource,
	connManager *events.ConnectionManager,
) *Server {
	s := &Server{
		echo:            echo.New(),
		cfg:             cfg,
		dbClient:        dbClient,
		researchService: researchService,
		workerPool:      workerPool,
		connManager:     connManager,
	}
	s.setupRoutes()
	return s
}

// SetHealthChecker enables on-demand tool server probes.
func (s *Server) SetHealthChecker(h *mcp.HealthChecker) { s.healthChecker = h }

// SetWarningsService enables system warnings in health output.
func (s *Server) SetWarningsService(w *services.SystemWarningsService) { s.warningService = w }

// SetMetrics enables the /metrics endpoint and probe metrics.
func (s *Server) SetMetrics(m *metrics.Metrics) { s.metrics = m }

func (s *Server) setupRoutes() {
	e := s.echo
	e.Use(securityHeaders())
	e.Use(requestLogger(slog.Default().With("component", "api")))

	e.GET("/health", s.healthHandler)
	e.GET("/metrics", s.metricsHandler)

	e.POST("/research/stock", s.startStockHandler)
	e.POST("/research/sector", s.startSectorHandler)
	e.GET("/research/progress/:id", s.progressHandler)
	e.GET("/research/:id", s.getSessionHandler)
	e.POST("/research/:id/cancel", s.cancelSessionHandler)

	e.GET("/history", s.listHistoryHandler)
	e.GET("/history/:id", s.getHistoryHandler)

	e.GET("/system/warnings", s.systemWarningsHandler)
	e.GET("/system/tool-servers", s.toolServersHandler)
	e.GET("/system/agents", s.agentsHandler)

	e.GET("/ws", s.wsHandler)
}

// ServeHTTP makes Server usable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr and blocks until the server stops. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.StartWithListener(ln)
}

// StartWithListener serves on an existing listener (useful for tests).
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the HTTP server. Open progress streams are
// closed when ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	err := s.httpServer.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return s.httpServer.Close()
	}
	return err
}
