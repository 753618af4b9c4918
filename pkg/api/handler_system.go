package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/equityresearch/pkg/mcp"
	"github.com/codeready-toolchain/equityresearch/pkg/services"
)

// toolServerProbeTimeout bounds one /system/tool-servers request.
const toolServerProbeTimeout = 90 * time.Second

// systemWarningsHandler handles GET /system/warnings.
func (s *Server) systemWarningsHandler(c *echo.Context) error {
	response := SystemWarningsResponse{
		Warnings: []*services.SystemWarning{},
	}
	if s.warningService != nil {
		response.Warnings = s.warningService.GetWarnings()
	}
	return c.JSON(http.StatusOK, response)
}

// toolServersHandler handles GET /system/tool-servers.
//
// Probes every configured tool server by connecting and listing its tools.
// Results feed the tool_server_up metric and the system warnings. With
// ?cached=true the last probe results are returned without probing.
func (s *Server) toolServersHandler(c *echo.Context) error {
	response := ToolServersResponse{
		Servers: []mcp.HealthStatus{},
	}
	if s.healthChecker == nil {
		return c.JSON(http.StatusOK, response)
	}

	if c.QueryParam("cached") == "true" {
		response.Servers = append(response.Servers, s.healthChecker.Statuses()...)
	} else {
		ctx, cancel := context.WithTimeout(c.Request().Context(), toolServerProbeTimeout)
		defer cancel()
		response.Servers = append(response.Servers, s.healthChecker.Check(ctx)...)
		for _, st := range response.Servers {
			s.metrics.ToolServerProbed(st.ServerID, st.Healthy)
		}
		if s.warningService != nil {
			s.warningService.RecordToolServerHealth(response.Servers)
		}
	}

	sort.Slice(response.Servers, func(i, j int) bool {
		return response.Servers[i].ServerID < response.Servers[j].ServerID
	})
	return c.JSON(http.StatusOK, response)
}

// agentsHandler handles GET /system/agents.
func (s *Server) agentsHandler(c *echo.Context) error {
	response := AgentsResponse{Agents: []AgentInfo{}}
	if s.cfg == nil || s.cfg.AgentRegistry == nil {
		return c.JSON(http.StatusOK, response)
	}

	model := ""
	if s.cfg.LLM != nil {
		model = s.cfg.LLM.Model
	}
	for _, name := range s.cfg.AgentRegistry.Names() {
		a, err := s.cfg.GetAgent(name)
		if err != nil {
			continue
		}
		info := AgentInfo{
			Name:       name,
			Label:      a.Label,
			MCPServers: append([]string{}, a.MCPServers...),
			MaxTurns:   a.MaxTurns,
			Model:      model,
		}
		if a.Model != "" {
			info.Model = a.Model
		}
		response.Agents = append(response.Agents, info)
	}
	return c.JSON(http.StatusOK, response)
}
