package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"

	"github.com/codeready-toolchain/equityresearch/pkg/agent"
)

var _ agent.ToolExecutor = (*ToolExecutor)(nil)

// ToolExecutor implements agent.ToolExecutor over a subset of the servers
// connected by a Client. Tool names are "server.tool".
type ToolExecutor struct {
	client    *Client
	serverIDs []string
	masker    ResultMasker
}

// NewToolExecutor creates an executor restricted to serverIDs. Results are
// passed through masker when it is non-nil.
func NewToolExecutor(client *Client, serverIDs []string, masker ResultMasker) *ToolExecutor {
	return &ToolExecutor{client: client, serverIDs: append([]string(nil), serverIDs...), masker: masker}
}

// Execute routes one call to its server. Routing, argument and tool errors
// are returned as error results for the model to read.
func (e *ToolExecutor) Execute(ctx context.Context, call agent.ToolCall) (*agent.ToolResult, error) {
	errResult := func(content string) *agent.ToolResult {
		return &agent.ToolResult{CallID: call.ID, Name: call.Name, Content: content, IsError: true}
	}

	serverID, toolName, err := e.resolveToolCall(NormalizeToolName(call.Name))
	if err != nil {
		return errResult(err.Error()), nil
	}

	args, err := parseArguments(call.Arguments)
	if err != nil {
		return errResult(fmt.Sprintf("Failed to parse tool arguments: %s", err)), nil
	}

	result, err := e.client.CallTool(ctx, serverID, toolName, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return errResult(fmt.Sprintf("Tool execution failed: %s", err)), nil
	}

	content := extractTextContent(result)
	if e.masker != nil {
		content = e.masker.MaskToolResult(content, serverID)
	}
	return &agent.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: content,
		IsError: result.IsError,
	}, nil
}

// ListTools returns the tools of every server the executor may use.
// A server that fails to list is skipped.
func (e *ToolExecutor) ListTools(ctx context.Context) ([]agent.ToolDefinition, error) {
	var all []agent.ToolDefinition
	for _, serverID := range e.serverIDs {
		tools, err := e.client.ListTools(ctx, serverID)
		if err != nil {
			slog.Warn("Failed to list tools", "server", serverID, "error", err)
			continue
		}
		for _, tool := range tools {
			all = append(all, agent.ToolDefinition{
				Name:             serverID + "." + tool.Name,
				Description:      tool.Description,
				ParametersSchema: marshalSchema(tool.InputSchema),
			})
		}
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func (e *ToolExecutor) resolveToolCall(name string) (serverID, toolName string, err error) {
	serverID, toolName, err = SplitToolName(name)
	if err != nil {
		return "", "", err
	}
	if !slices.Contains(e.serverIDs, serverID) {
		return "", "", fmt.Errorf("tool server %q is not available to this analyst. Available servers: %s",
			serverID, strings.Join(e.serverIDs, ", "))
	}
	return serverID, toolName, nil
}

// parseArguments decodes tool arguments. Models occasionally emit YAML or
// relaxed JSON, which the YAML decoder also accepts.
func parseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		if args == nil {
			args = map[string]any{}
		}
		return args, nil
	}

	if err := yaml.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if args == nil {
		return nil, fmt.Errorf("arguments must be a JSON object, got %q", raw)
	}
	return args, nil
}

// extractTextContent joins the text parts of a result. Other content kinds
// are dropped.
func extractTextContent(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		} else {
			slog.Debug("Skipping non-text tool content", "content_type", fmt.Sprintf("%T", c))
		}
	}
	return strings.Join(parts, "\n")
}

func marshalSchema(schema any) string {
	if schema == nil {
		return ""
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return ""
	}
	return string(data)
}
