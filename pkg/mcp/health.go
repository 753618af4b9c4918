package mcp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/equityresearch/pkg/config"
)

// HealthStatus is the outcome of probing one tool server.
type HealthStatus struct {
	ServerID  string    `json:"server_id"`
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	Error     string    `json:"error,omitempty"`
	ToolCount int       `json:"tool_count"`
}

// HealthChecker probes configured tool servers on demand by connecting,
// listing tools and disconnecting.
type HealthChecker struct {
	factory  *ClientFactory
	registry *config.MCPServerRegistry

	// Serializes probes so concurrent callers don't spawn duplicate servers.
	probeMu sync.Mutex

	mu       sync.RWMutex
	statuses map[string]*HealthStatus

	logger *slog.Logger
}

// NewHealthChecker creates a checker for every server in registry.
func NewHealthChecker(factory *ClientFactory, registry *config.MCPServerRegistry) *HealthChecker {
	return &HealthChecker{
		factory:  factory,
		registry: registry,
		statuses: make(map[string]*HealthStatus),
		logger:   slog.Default().With("component", "mcp-health"),
	}
}

// Check probes every server and returns the fresh statuses in server ID order.
func (h *HealthChecker) Check(ctx context.Context) []HealthStatus {
	h.probeMu.Lock()
	defer h.probeMu.Unlock()

	ids := h.registry.ServerIDs()
	out := make([]HealthStatus, 0, len(ids))
	for _, id := range ids {
		status := h.probe(ctx, id)
		h.mu.Lock()
		h.statuses[id] = &status
		h.mu.Unlock()
		out = append(out, status)
	}
	return out
}

func (h *HealthChecker) probe(ctx context.Context, serverID string) HealthStatus {
	status := HealthStatus{ServerID: serverID, LastCheck: time.Now()}

	probeCtx, cancel := context.WithTimeout(ctx, ConnectTimeout+ProbeTimeout)
	defer cancel()

	pool, err := h.factory.Acquire(probeCtx, []string{serverID})
	if err != nil {
		status.Error = err.Error()
		h.logger.Warn("Tool server unhealthy", "server", serverID, "error", err)
		return status
	}
	defer func() { _ = pool.Close() }()

	listCtx, listCancel := context.WithTimeout(probeCtx, ProbeTimeout)
	defer listCancel()
	tools, err := pool.client.ListTools(listCtx, serverID)
	if err != nil {
		status.Error = err.Error()
		h.logger.Warn("Tool server unhealthy", "server", serverID, "error", err)
		return status
	}

	status.Healthy = true
	status.ToolCount = len(tools)
	return status
}

// Statuses returns the result of the last Check, in no particular order.
func (h *HealthChecker) Statuses() []HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]HealthStatus, 0, len(h.statuses))
	for _, s := range h.statuses {
		out = append(out, *s)
	}
	return out
}
