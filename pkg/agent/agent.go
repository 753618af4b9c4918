// Package agent provides the LLM agent runtime used by the research
// pipelines: a static agent definition, a provider-neutral LLM client
// interface and a tool-calling loop bounded by a turn budget.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/codeready-toolchain/equityresearch/pkg/config"
)

// ErrMaxTurnsExceeded is matched (errors.Is) by every turn budget failure.
var ErrMaxTurnsExceeded = errors.New("max turns exceeded")

// ErrEmptyResponse is returned when the model finishes without text or tool calls.
var ErrEmptyResponse = errors.New("LLM returned an empty response")

// MaxTurnsError reports that an agent used its whole turn budget without
// producing a final answer.
type MaxTurnsError struct {
	Agent    string
	MaxTurns int
}

func (e *MaxTurnsError) Error() string {
	return fmt.Sprintf("Max turns (%d) exceeded for %s", e.MaxTurns, e.Agent)
}

// Is makes errors.Is(err, ErrMaxTurnsExceeded) true.
func (e *MaxTurnsError) Is(target error) bool {
	return target == ErrMaxTurnsExceeded
}

// Definition is the static description of one agent.
type Definition struct {
	Name         string
	Label        string
	Instructions string
	Model        string
	MCPServers   []string
}

// NewDefinition builds a Definition from agent configuration. Server
// instructions are appended to the agent's own instructions.
func NewDefinition(name string, cfg *config.AgentConfig, servers *config.MCPServerRegistry) Definition {
	instructions := cfg.Instructions
	for _, id := range cfg.MCPServers {
		if servers == nil {
			break
		}
		if s, err := servers.Get(id); err == nil && s.Instructions != "" {
			instructions += "\n\n" + s.Instructions
		}
	}
	return Definition{
		Name:         name,
		Label:        cfg.Label,
		Instructions: instructions,
		Model:        cfg.Model,
		MCPServers:   append([]string(nil), cfg.MCPServers...),
	}
}

// Runner runs one agent to completion.
//
// maxTurns is a hard cap on LLM calls. tools may be nil for agents that
// work from the prompt alone. Errors are either *MaxTurnsError or a
// transport/provider failure.
type Runner interface {
	Run(ctx context.Context, def Definition, prompt string, tools ToolExecutor, maxTurns int) (string, error)
}

// TokenUsage aggregates token consumption across multiple LLM calls.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Add accumulates u into the receiver. A nil u is ignored.
func (t *TokenUsage) Add(u *TokenUsage) {
	if u == nil {
		return
	}
	t.InputTokens += u.InputTokens
	t.OutputTokens += u.OutputTokens
	t.TotalTokens += u.TotalTokens
}
