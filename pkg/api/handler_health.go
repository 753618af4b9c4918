package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/equityresearch/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health.
// Only the service's own components (database, worker_pool) are checked.
// Tool servers and the LLM provider are external and excluded so an outage
// there doesn't get the service restarted; see /system/tool-servers.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := &HealthResponse{
		Status:    healthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   version.Full(),
		Checks:    make(map[string]HealthCheck),
		Sessions:  make(map[string]int),
	}

	if s.dbClient != nil {
		dbHealth, err := s.dbClient.Health(reqCtx)
		resp.Database = dbHealth
		if err != nil {
			resp.Status = healthStatusUnhealthy
			resp.Checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			resp.Checks["database"] = HealthCheck{Status: healthStatusHealthy}
		}
	} else {
		resp.Checks["database"] = HealthCheck{Status: healthStatusHealthy, Message: "in-memory history"}
	}

	if s.workerPool != nil {
		poolHealth := s.workerPool.Health()
		resp.WorkerPool = poolHealth
		if poolHealth != nil && !poolHealth.IsHealthy {
			if resp.Status == healthStatusHealthy {
				resp.Status = healthStatusDegraded
			}
			resp.Checks["worker_pool"] = HealthCheck{Status: healthStatusDegraded, Message: "no workers running"}
		} else {
			resp.Checks["worker_pool"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	for status, n := range s.researchService.SessionCounts() {
		resp.Sessions[string(status)] = n
	}
	if s.warningService != nil {
		resp.Warnings = s.warningService.GetWarnings()
	}

	httpStatus := http.StatusOK
	if resp.Status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, resp)
}

// metricsHandler handles GET /metrics.
func (s *Server) metricsHandler(c *echo.Context) error {
	if s.metrics == nil {
		return c.JSON(http.StatusNotFound, &ErrorResponse{Error: "metrics disabled"})
	}
	s.metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
