package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/equityresearch/pkg/agent"
	"github.com/codeready-toolchain/equityresearch/pkg/config"
)

var emptySchema = json.RawMessage(`{"type":"object"}`)

func textResult(s string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: s}}}
}

// connectInMemory starts an in-memory MCP server exposing tools and returns
// a client session connected to it.
func connectInMemory(t *testing.T, name string, tools map[string]mcpsdk.ToolHandler) *mcpsdk.ClientSession {
	t.Helper()

	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: name, Version: "test"}, nil)
	for toolName, handler := range tools {
		server.AddTool(&mcpsdk.Tool{
			Name:        toolName,
			Description: "test tool: " + toolName,
			InputSchema: emptySchema,
		}, handler)
	}

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
	go func() { _ = server.Run(context.Background(), serverTransport) }()

	sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "equityresearch-test", Version: "test"}, nil)
	session, err := sdkClient.Connect(context.Background(), clientTransport, nil)
	require.NoError(t, err)
	return session
}

func marketDataTools() map[string]mcpsdk.ToolHandler {
	return map[string]mcpsdk.ToolHandler{
		"get_quote": func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			var args map[string]any
			_ = json.Unmarshal(req.Params.Arguments, &args)
			symbol, _ := args["symbol"].(string)
			return textResult("quote for " + symbol + ": 187.20"), nil
		},
		"get_history": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "no data for range"}},
				IsError: true,
			}, nil
		},
	}
}

func newInjectedClient(t *testing.T) *Client {
	t.Helper()
	c := newClient(config.NewMCPServerRegistry(nil))
	c.InjectSession("yahoo-finance", connectInMemory(t, "yahoo-finance", marketDataTools()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_ListToolsCached(t *testing.T) {
	c := newInjectedClient(t)
	ctx := context.Background()

	tools, err := c.ListTools(ctx, "yahoo-finance")
	require.NoError(t, err)
	require.Len(t, tools, 2)

	again, err := c.ListTools(ctx, "yahoo-finance")
	require.NoError(t, err)
	assert.Equal(t, tools, again)
}

func TestClient_CallTool(t *testing.T) {
	c := newInjectedClient(t)

	result, err := c.CallTool(context.Background(), "yahoo-finance", "get_quote", map[string]any{"symbol": "AAPL"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "quote for AAPL: 187.20", extractTextContent(result))

	result, err = c.CallTool(context.Background(), "yahoo-finance", "get_history", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestClient_NoSession(t *testing.T) {
	c := newClient(config.NewMCPServerRegistry(nil))

	_, err := c.ListTools(context.Background(), "missing")
	assert.ErrorContains(t, err, "no session")

	_, err = c.CallTool(context.Background(), "missing", "tool", nil)
	assert.ErrorContains(t, err, "no session")
}

func TestClient_ConnectUnknownServerIsSetupError(t *testing.T) {
	c := newClient(config.NewMCPServerRegistry(nil))

	err := c.Connect(context.Background(), []string{"yahoo-finance"})
	require.Error(t, err)

	var setupErr *SetupError
	require.True(t, errors.As(err, &setupErr))
	assert.Equal(t, "yahoo-finance", setupErr.ServerID)
	assert.ErrorIs(t, err, config.ErrMCPServerNotFound)
}

func TestClient_ConnectFailureClosesEarlierSessions(t *testing.T) {
	c := newClient(config.NewMCPServerRegistry(map[string]*config.MCPServerConfig{
		"broken": {Transport: config.TransportConfig{Type: config.TransportTypeStdio}},
	}))
	c.InjectSession("yahoo-finance", connectInMemory(t, "yahoo-finance", marketDataTools()))

	err := c.Connect(context.Background(), []string{"yahoo-finance", "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires command")
	assert.Empty(t, c.ConnectedServers())
}

func TestClient_Close(t *testing.T) {
	c := newInjectedClient(t)
	assert.Equal(t, []string{"yahoo-finance"}, c.ConnectedServers())

	require.NoError(t, c.Close())
	assert.False(t, c.HasSession("yahoo-finance"))
	require.NoError(t, c.Close())
}

func TestToolExecutor(t *testing.T) {
	c := newInjectedClient(t)
	exec := NewToolExecutor(c, []string{"yahoo-finance"}, nil)
	ctx := context.Background()

	defs, err := exec.ListTools(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
		assert.JSONEq(t, `{"type":"object"}`, d.ParametersSchema)
	}
	assert.ElementsMatch(t, []string{"yahoo-finance.get_quote", "yahoo-finance.get_history"}, names)

	tests := []struct {
		name        string
		call        agent.ToolCall
		wantError   bool
		wantContent string
	}{
		{
			name:        "dotted name with JSON args",
			call:        agent.ToolCall{ID: "1", Name: "yahoo-finance.get_quote", Arguments: `{"symbol":"MSFT"}`},
			wantContent: "quote for MSFT",
		},
		{
			name:        "wire name with YAML args",
			call:        agent.ToolCall{ID: "2", Name: "yahoo-finance__get_quote", Arguments: "symbol: NVDA"},
			wantContent: "quote for NVDA",
		},
		{
			name:        "tool reported error",
			call:        agent.ToolCall{ID: "3", Name: "yahoo-finance.get_history"},
			wantError:   true,
			wantContent: "no data",
		},
		{
			name:        "server not available",
			call:        agent.ToolCall{ID: "4", Name: "brave-search.search"},
			wantError:   true,
			wantContent: "not available",
		},
		{
			name:        "malformed name",
			call:        agent.ToolCall{ID: "5", Name: "get_quote"},
			wantError:   true,
			wantContent: "invalid tool name",
		},
		{
			name:        "unparseable arguments",
			call:        agent.ToolCall{ID: "6", Name: "yahoo-finance.get_quote", Arguments: "just words"},
			wantError:   true,
			wantContent: "Failed to parse",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := exec.Execute(ctx, tt.call)
			require.NoError(t, err)
			assert.Equal(t, tt.wantError, result.IsError)
			assert.Contains(t, result.Content, tt.wantContent)
			assert.Equal(t, tt.call.ID, result.CallID)
		})
	}
}

type maskerFunc func(content, serverID string) string

func (f maskerFunc) MaskToolResult(content, serverID string) string { return f(content, serverID) }

func TestToolExecutor_MasksResults(t *testing.T) {
	c := newInjectedClient(t)
	var seenServer string
	exec := NewToolExecutor(c, []string{"yahoo-finance"}, maskerFunc(func(content, serverID string) string {
		seenServer = serverID
		return strings.ReplaceAll(content, "MSFT", "[MASKED]")
	}))

	result, err := exec.Execute(context.Background(), agent.ToolCall{ID: "1", Name: "yahoo-finance.get_quote", Arguments: `{"symbol":"MSFT"}`})
	require.NoError(t, err)
	assert.Equal(t, "yahoo-finance", seenServer)
	assert.Contains(t, result.Content, "quote for [MASKED]")
	assert.NotContains(t, result.Content, "MSFT")
}

func TestParseArguments(t *testing.T) {
	args, err := parseArguments("")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = parseArguments("null")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = parseArguments(`{"symbol":"AAPL","period":"1y"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"symbol": "AAPL", "period": "1y"}, args)

	args, err = parseArguments("{symbol: AAPL}")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", args["symbol"])

	_, err = parseArguments("[1, 2]")
	assert.Error(t, err)
}
