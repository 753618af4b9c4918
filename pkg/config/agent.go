package config

import (
	"fmt"
	"sort"
	"sync"
)

// Built-in analyst agent names.
const (
	AgentFinancial   = "FinancialAnalyst"
	AgentTechnical   = "TechnicalAnalyst"
	AgentNews        = "NewsAnalyst"
	AgentComparative = "ComparativeAnalyst"
	AgentReport      = "ReportGenerator"
	AgentStrategic   = "StrategicAnalyst"
	AgentSector      = "SectorAnalyst"
	AgentPortfolio   = "PortfolioStrategist"
)

// AgentConfig defines one analyst agent: who it is, which tool servers it
// may use and how many tool rounds it gets before it must answer.
type AgentConfig struct {
	// Label identifies the agent in progress events ("Financial Analyst").
	Label string `yaml:"label,omitempty"`

	Description string `yaml:"description,omitempty"`

	// Instructions is the system prompt.
	Instructions string `yaml:"instructions,omitempty"`

	// MCPServers lists the tool servers this agent may call. Empty means
	// the agent works from its prompt alone.
	MCPServers []string `yaml:"mcp_servers,omitempty"`

	// MaxTurns is the hard cap on LLM turns for one run.
	MaxTurns int `yaml:"max_turns,omitempty"`

	// FallbackMaxTurns is the residual budget for a recovery run after the
	// primary run exhausted MaxTurns. Zero disables the recovery run.
	FallbackMaxTurns int `yaml:"fallback_max_turns,omitempty"`

	// Model overrides the LLM model for this agent.
	Model string `yaml:"model,omitempty"`
}

// AgentRegistry stores agent configurations in memory with thread-safe access
type AgentRegistry struct {
	agents map[string]*AgentConfig
	mu     sync.RWMutex
}

// NewAgentRegistry creates a new agent registry
func NewAgentRegistry(agents map[string]*AgentConfig) *AgentRegistry {
	copied := make(map[string]*AgentConfig, len(agents))
	for k, v := range agents {
		copied[k] = v
	}
	return &AgentRegistry{agents: copied}
}

// Get retrieves an agent configuration by name (thread-safe)
func (r *AgentRegistry) Get(name string) (*AgentConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, exists := r.agents[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return agent, nil
}

// GetAll returns all agent configurations (thread-safe, returns copy)
func (r *AgentRegistry) GetAll() map[string]*AgentConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*AgentConfig, len(r.agents))
	for k, v := range r.agents {
		result[k] = v
	}
	return result
}

// Has checks if an agent exists in the registry (thread-safe)
func (r *AgentRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.agents[name]
	return exists
}

// Len returns the number of agents in the registry (thread-safe)
func (r *AgentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Names returns all agent names sorted alphabetically.
func (r *AgentRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
