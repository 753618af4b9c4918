package agent

import "context"

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// LLMClient is the provider-neutral interface to a chat model with native
// function calling.
type LLMClient interface {
	// Generate sends the conversation and returns the model's next message.
	Generate(ctx context.Context, input *GenerateInput) (*LLMResponse, error)

	// Close releases provider resources.
	Close() error
}

// GenerateInput is one completion request.
type GenerateInput struct {
	Agent    string // agent name, for logging and offline clients
	Model    string // empty = client default
	Messages []ConversationMessage
	Tools    []ToolDefinition // nil = no tools
}

// LLMResponse is the model's reply to one GenerateInput.
type LLMResponse struct {
	Text      string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// ConversationMessage is the Go-side message type.
type ConversationMessage struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // For assistant messages
	ToolCallID string     // For tool result messages
	ToolName   string     // For tool result messages
}

// ToolDefinition describes a tool available to the LLM.
type ToolDefinition struct {
	Name             string // "server.tool"
	Description      string
	ParametersSchema string // JSON Schema
}

// ToolCall represents an LLM's request to call a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON
}
