package config

import (
	"fmt"
	"regexp"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	// MCP servers first: agents reference them.
	if err := v.validateMCPServers(); err != nil {
		return fmt.Errorf("MCP server validation failed: %w", err)
	}

	if err := v.validateAgents(); err != nil {
		return fmt.Errorf("agent validation failed: %w", err)
	}

	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("LLM validation failed: %w", err)
	}

	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}

	if err := v.validateStreaming(); err != nil {
		return fmt.Errorf("streaming validation failed: %w", err)
	}

	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateAgents() error {
	for _, name := range []string{
		AgentFinancial, AgentTechnical, AgentNews, AgentComparative,
		AgentReport, AgentStrategic, AgentSector, AgentPortfolio,
	} {
		if !v.cfg.AgentRegistry.Has(name) {
			return NewValidationError("agent", name, "", ErrAgentNotFound)
		}
	}

	for name, agent := range v.cfg.AgentRegistry.GetAll() {
		if agent.Label == "" {
			return NewValidationError("agent", name, "label", ErrMissingRequiredField)
		}
		if agent.MaxTurns < 1 {
			return NewValidationError("agent", name, "max_turns", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
		}
		if agent.FallbackMaxTurns < 0 {
			return NewValidationError("agent", name, "fallback_max_turns", fmt.Errorf("%w: must be non-negative", ErrInvalidValue))
		}
		for _, serverID := range agent.MCPServers {
			if !v.cfg.MCPServerRegistry.Has(serverID) {
				return NewValidationError("agent", name, "mcp_servers", fmt.Errorf("MCP server '%s' not found", serverID))
			}
		}
	}

	return nil
}

func (v *ConfigValidator) validateMCPServers() error {
	for id, server := range v.cfg.MCPServerRegistry.GetAll() {
		t := server.Transport
		if !t.Type.IsValid() {
			return NewValidationError("mcp_server", id, "transport.type", fmt.Errorf("%w: %q", ErrInvalidValue, t.Type))
		}
		switch t.Type {
		case TransportTypeStdio:
			if t.Command == "" {
				return NewValidationError("mcp_server", id, "transport.command", ErrMissingRequiredField)
			}
		case TransportTypeHTTP, TransportTypeSSE:
			if t.URL == "" {
				return NewValidationError("mcp_server", id, "transport.url", ErrMissingRequiredField)
			}
		}
		if t.Timeout < 0 {
			return NewValidationError("mcp_server", id, "transport.timeout", fmt.Errorf("%w: must be non-negative", ErrInvalidValue))
		}
		if err := validateMasking(server.DataMasking); err != nil {
			return NewValidationError("mcp_server", id, "data_masking", err)
		}
	}
	return nil
}

func validateMasking(m *MaskingConfig) error {
	if m == nil || !m.Enabled {
		return nil
	}
	builtin := GetBuiltinConfig()
	for _, group := range m.PatternGroups {
		if _, ok := builtin.PatternGroups[group]; !ok {
			return fmt.Errorf("%w: unknown pattern group %q", ErrInvalidValue, group)
		}
	}
	for _, name := range m.Patterns {
		if _, ok := builtin.MaskingPatterns[name]; !ok {
			return fmt.Errorf("%w: unknown pattern %q", ErrInvalidValue, name)
		}
	}
	for i, p := range m.CustomPatterns {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return fmt.Errorf("%w: custom_patterns[%d]: %v", ErrInvalidValue, i, err)
		}
	}
	return nil
}

func (v *ConfigValidator) validateLLM() error {
	llm := v.cfg.LLM
	if !llm.Type.IsValid() {
		return NewValidationError("llm", string(llm.Type), "type", fmt.Errorf("%w: %q", ErrInvalidValue, llm.Type))
	}
	if llm.Model == "" {
		return NewValidationError("llm", string(llm.Type), "model", ErrMissingRequiredField)
	}
	if llm.Type == LLMProviderTypeAzureOpenAI && llm.BaseURL == "" {
		return NewValidationError("llm", string(llm.Type), "base_url", ErrMissingRequiredField)
	}
	if llm.RequestTimeout <= 0 {
		return NewValidationError("llm", string(llm.Type), "request_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateQueue() error {
	q := v.cfg.Queue
	if q.WorkerCount < 1 {
		return NewValidationError("queue", "queue", "worker_count", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if q.MaxQueuedSessions < 1 {
		return NewValidationError("queue", "queue", "max_queued_sessions", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if q.SessionTimeout <= 0 {
		return NewValidationError("queue", "queue", "session_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if q.GracefulShutdownTimeout <= 0 {
		return NewValidationError("queue", "queue", "graceful_shutdown_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateStreaming() error {
	s := v.cfg.Streaming
	if s.KeepaliveInterval <= 0 {
		return NewValidationError("streaming", "streaming", "keepalive_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if s.CleanupGrace < 0 {
		return NewValidationError("streaming", "streaming", "cleanup_grace", fmt.Errorf("%w: must be non-negative", ErrInvalidValue))
	}
	if s.CleanupInterval <= 0 {
		return NewValidationError("streaming", "streaming", "cleanup_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateRetention() error {
	r := v.cfg.Retention
	if r.HistoryRetentionDays < 1 {
		return NewValidationError("retention", "retention", "history_retention_days", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if r.PurgeInterval <= 0 {
		return NewValidationError("retention", "retention", "purge_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}
