package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/codeready-toolchain/equityresearch/pkg/config"
)

// emptyParametersSchema is sent for tools that publish no input schema.
var emptyParametersSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// OpenAIClient implements LLMClient on the OpenAI chat completions API.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

var _ LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client from LLM configuration. The API key is
// read from the environment variable named by cfg.APIKeyEnv.
func NewOpenAIClient(cfg *config.LLMConfig) (*OpenAIClient, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("LLM API key not set: environment variable %s is empty", cfg.APIKeyEnv)
	}

	var clientCfg openai.ClientConfig
	switch cfg.Type {
	case config.LLMProviderTypeAzureOpenAI:
		clientCfg = openai.DefaultAzureConfig(apiKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
	default:
		clientCfg = openai.DefaultConfig(apiKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	}

	return newOpenAIClient(openai.NewClientWithConfig(clientCfg), cfg.Model, cfg.RequestTimeout), nil
}

func newOpenAIClient(client *openai.Client, model string, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{client: client, model: model, timeout: timeout}
}

// Generate sends one chat completion request.
func (c *OpenAIClient) Generate(ctx context.Context, input *GenerateInput) (*LLMResponse, error) {
	model := input.Model
	if model == "" {
		model = c.model
	}

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(input.Messages),
		Tools:    toOpenAITools(input.Tools),
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai API error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	msg := resp.Choices[0].Message
	out := &LLMResponse{
		Text: msg.Content,
		Usage: &TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      decodeToolName(tc.Function.Name),
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// Close is a no-op; the HTTP client holds no long-lived resources.
func (c *OpenAIClient) Close() error { return nil }

func toOpenAIMessages(messages []ConversationMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      encodeToolName(tc.Name),
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		params := emptyParametersSchema
		if t.ParametersSchema != "" {
			params = json.RawMessage(t.ParametersSchema)
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        encodeToolName(t.Name),
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

// Function names may not contain dots, so "server.tool" travels as "server__tool".
func encodeToolName(name string) string {
	return strings.Replace(name, ".", "__", 1)
}

func decodeToolName(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return strings.Replace(name, "__", ".", 1)
}
