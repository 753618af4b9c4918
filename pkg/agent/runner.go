package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// ToolLoopRunner implements Runner as a multi-turn native function calling
// loop. Each turn is one LLM call; tool calls in the reply are executed and
// their results appended before the next turn. A reply without tool calls
// is the final answer.
type ToolLoopRunner struct {
	llm                LLMClient
	maxToolResultChars int
	logger             *slog.Logger
}

// NewToolLoopRunner creates a runner. maxToolResultChars <= 0 disables truncation.
func NewToolLoopRunner(llm LLMClient, maxToolResultChars int) *ToolLoopRunner {
	return &ToolLoopRunner{
		llm:                llm,
		maxToolResultChars: maxToolResultChars,
		logger:             slog.Default().With("component", "agent-runner"),
	}
}

var _ Runner = (*ToolLoopRunner)(nil)

// Run executes the loop until the model answers or the turn budget is spent.
func (r *ToolLoopRunner) Run(ctx context.Context, def Definition, prompt string, tools ToolExecutor, maxTurns int) (string, error) {
	if maxTurns < 1 {
		return "", fmt.Errorf("invalid turn budget %d for %s", maxTurns, def.Name)
	}

	var toolDefs []ToolDefinition
	if tools != nil {
		var err error
		toolDefs, err = tools.ListTools(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list tools: %w", err)
		}
	}

	messages := []ConversationMessage{
		{Role: RoleSystem, Content: systemPrompt(def)},
		{Role: RoleUser, Content: prompt},
	}
	state := &TurnState{MaxTurns: maxTurns}
	log := r.logger.With("agent", def.Name)
	start := time.Now()

	for !state.Exhausted() {
		state.CurrentTurn++

		resp, err := r.llm.Generate(ctx, &GenerateInput{
			Agent:    def.Name,
			Model:    def.Model,
			Messages: messages,
			Tools:    toolDefs,
		})
		if err != nil {
			return "", fmt.Errorf("%s turn %d: %w", def.Name, state.CurrentTurn, err)
		}
		state.RecordResponse(resp)

		if len(resp.ToolCalls) == 0 {
			if strings.TrimSpace(resp.Text) == "" {
				return "", fmt.Errorf("%s turn %d: %w", def.Name, state.CurrentTurn, ErrEmptyResponse)
			}
			log.Debug("Agent finished",
				"turns", state.CurrentTurn,
				"tool_calls", state.ToolCalls,
				"tool_errors", state.ToolErrors,
				"total_tokens", state.Usage.TotalTokens,
				"duration", time.Since(start))
			return resp.Text, nil
		}

		messages = append(messages, ConversationMessage{
			Role:      RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			result := r.executeToolCall(ctx, tools, tc)
			state.RecordToolResult(result)
			messages = append(messages, ConversationMessage{
				Role:       RoleTool,
				Content:    result.Content,
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}
	}

	log.Info("Agent exhausted its turn budget",
		"max_turns", maxTurns,
		"tool_calls", state.ToolCalls,
		"duration", time.Since(start))
	return "", &MaxTurnsError{Agent: def.Name, MaxTurns: maxTurns}
}

// executeToolCall runs one call. Failures become error results fed back to
// the model rather than aborting the run.
func (r *ToolLoopRunner) executeToolCall(ctx context.Context, tools ToolExecutor, tc ToolCall) *ToolResult {
	if tools == nil {
		return &ToolResult{
			CallID:  tc.ID,
			Name:    tc.Name,
			Content: fmt.Sprintf("Tool %q is not available: this agent has no tools.", tc.Name),
			IsError: true,
		}
	}

	result, err := tools.Execute(ctx, tc)
	if err != nil {
		r.logger.Warn("Tool execution failed", "tool", tc.Name, "error", err)
		return &ToolResult{
			CallID:  tc.ID,
			Name:    tc.Name,
			Content: fmt.Sprintf("Tool execution failed: %s", err),
			IsError: true,
		}
	}

	if r.maxToolResultChars > 0 && len(result.Content) > r.maxToolResultChars {
		result.Content = truncateUTF8(result.Content, r.maxToolResultChars) + "\n[truncated]"
	}
	return result
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func systemPrompt(def Definition) string {
	if def.Instructions != "" {
		return def.Instructions
	}
	return fmt.Sprintf("You are the %s.", def.Label)
}
