package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	agents, err := mergeAgents(GetBuiltinConfig().Agents, nil)
	require.NoError(t, err)
	servers, err := mergeMCPServers(GetBuiltinConfig().MCPServers, nil)
	require.NoError(t, err)
	return &Config{
		LLM:               DefaultLLMConfig(),
		Queue:             DefaultQueueConfig(),
		Streaming:         DefaultStreamingConfig(),
		Retention:         DefaultRetentionConfig(),
		AgentRegistry:     NewAgentRegistry(agents),
		MCPServerRegistry: NewMCPServerRegistry(servers),
	}
}

func TestValidateAll(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
		errMsg string
	}{
		{
			name:   "builtin configuration is valid",
			mutate: func(*Config) {},
		},
		{
			name: "stdio server without command",
			mutate: func(cfg *Config) {
				s, _ := cfg.GetMCPServer(ServerMarketData)
				s.Transport.Command = ""
			},
			errMsg: "transport.command",
		},
		{
			name: "http server without url",
			mutate: func(cfg *Config) {
				s, _ := cfg.GetMCPServer(ServerWebSearch)
				s.Transport = TransportConfig{Type: TransportTypeHTTP}
			},
			errMsg: "transport.url",
		},
		{
			name: "unknown transport type",
			mutate: func(cfg *Config) {
				s, _ := cfg.GetMCPServer(ServerWebSearch)
				s.Transport.Type = "carrier-pigeon"
			},
			errMsg: "transport.type",
		},
		{
			name: "unknown masking group",
			mutate: func(cfg *Config) {
				s, _ := cfg.GetMCPServer(ServerWebSearch)
				s.DataMasking = &MaskingConfig{Enabled: true, PatternGroups: []string{"everything"}}
			},
			errMsg: "data_masking",
		},
		{
			name: "invalid custom masking pattern",
			mutate: func(cfg *Config) {
				s, _ := cfg.GetMCPServer(ServerMarketData)
				s.DataMasking = &MaskingConfig{Enabled: true, CustomPatterns: []MaskingPattern{{Pattern: "([a-z"}}}
			},
			errMsg: "custom_patterns[0]",
		},
		{
			name: "disabled masking is not checked",
			mutate: func(cfg *Config) {
				s, _ := cfg.GetMCPServer(ServerMarketData)
				s.DataMasking = &MaskingConfig{Enabled: false, Patterns: []string{"nope"}}
			},
		},
		{
			name: "agent with zero turn budget",
			mutate: func(cfg *Config) {
				a, _ := cfg.GetAgent(AgentTechnical)
				a.MaxTurns = 0
			},
			errMsg: "max_turns",
		},
		{
			name: "agent without label",
			mutate: func(cfg *Config) {
				a, _ := cfg.GetAgent(AgentStrategic)
				a.Label = ""
			},
			errMsg: "label",
		},
		{
			name: "required agent missing",
			mutate: func(cfg *Config) {
				all := cfg.AgentRegistry.GetAll()
				delete(all, AgentPortfolio)
				cfg.AgentRegistry = NewAgentRegistry(all)
			},
			errMsg: "agent not found",
		},
		{
			name: "invalid llm provider",
			mutate: func(cfg *Config) {
				cfg.LLM.Type = "mystery"
			},
			errMsg: "LLM validation failed",
		},
		{
			name: "azure without base url",
			mutate: func(cfg *Config) {
				cfg.LLM.Type = LLMProviderTypeAzureOpenAI
			},
			errMsg: "base_url",
		},
		{
			name: "no workers",
			mutate: func(cfg *Config) {
				cfg.Queue.WorkerCount = 0
			},
			errMsg: "worker_count",
		},
		{
			name: "zero keepalive",
			mutate: func(cfg *Config) {
				cfg.Streaming.KeepaliveInterval = 0
			},
			errMsg: "keepalive_interval",
		},
		{
			name: "zero retention",
			mutate: func(cfg *Config) {
				cfg.Retention.HistoryRetentionDays = 0
			},
			errMsg: "history_retention_days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := NewValidator(cfg).ValidateAll()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
