package api

import (
	"time"

	"github.com/codeready-toolchain/equityresearch/pkg/database"
	"github.com/codeready-toolchain/equityresearch/pkg/history"
	"github.com/codeready-toolchain/equityresearch/pkg/mcp"
	"github.com/codeready-toolchain/equityresearch/pkg/queue"
	"github.com/codeready-toolchain/equityresearch/pkg/services"
)

// StartResponse is returned by POST /research/stock and /research/sector.
type StartResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// CancelResponse is returned by POST /research/:id/cancel.
type CancelResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// HistoryListResponse is returned by GET /history.
type HistoryListResponse struct {
	Reports []history.Record `json:"reports"`
	Count   int              `json:"count"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string                    `json:"status"`
	Timestamp  time.Time                 `json:"timestamp"`
	Version    string                    `json:"version"`
	Checks     map[string]HealthCheck    `json:"checks"`
	Database   *database.HealthStatus    `json:"database,omitempty"`
	WorkerPool *queue.PoolHealth         `json:"worker_pool,omitempty"`
	Sessions   map[string]int            `json:"sessions"`
	Warnings   []*services.SystemWarning `json:"warnings,omitempty"`
}

// HealthCheck is the status of one component.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemWarningsResponse is returned by GET /system/warnings.
type SystemWarningsResponse struct {
	Warnings []*services.SystemWarning `json:"warnings"`
}

// ToolServersResponse is returned by GET /system/tool-servers.
type ToolServersResponse struct {
	Servers []mcp.HealthStatus `json:"servers"`
}

// AgentsResponse is returned by GET /system/agents.
type AgentsResponse struct {
	Agents []AgentInfo `json:"agents"`
}

// AgentInfo describes one configured analyst.
type AgentInfo struct {
	Name       string   `json:"name"`
	Label      string   `json:"label"`
	MCPServers []string `json:"mcp_servers"`
	MaxTurns   int      `json:"max_turns"`
	Model      string   `json:"model,omitempty"`
}
