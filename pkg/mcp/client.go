// Package mcp connects research runs to external tool servers (market data,
// web search) over the Model Context Protocol and exposes their tools to
// the agent runtime.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeready-toolchain/equityresearch/pkg/config"
	"github.com/codeready-toolchain/equityresearch/pkg/version"
)

// SetupError reports that a tool server could not be connected. It aborts
// the research run that needed the server and is never retried.
type SetupError struct {
	ServerID string
	Err      error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("failed to connect to tool server %q: %v", e.ServerID, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// Client holds MCP sessions for the servers of one research run.
// Safe for concurrent use.
type Client struct {
	registry *config.MCPServerRegistry

	mu       sync.RWMutex
	sessions map[string]*mcpsdk.ClientSession // serverID → session
	timeouts map[string]time.Duration         // serverID → per-call timeout

	toolCache   map[string][]*mcpsdk.Tool
	toolCacheMu sync.RWMutex

	// Per-server mutex serializing connect and reconnect.
	reinitMu sync.Map // serverID → *sync.Mutex

	logger *slog.Logger
}

func newClient(registry *config.MCPServerRegistry) *Client {
	return &Client{
		registry:  registry,
		sessions:  make(map[string]*mcpsdk.ClientSession),
		timeouts:  make(map[string]time.Duration),
		toolCache: make(map[string][]*mcpsdk.Tool),
		logger:    slog.Default().With("component", "mcp-client"),
	}
}

// Connect connects every listed server. The first failure closes whatever
// was already connected and returns a *SetupError.
func (c *Client) Connect(ctx context.Context, serverIDs []string) error {
	for _, serverID := range serverIDs {
		if err := c.ConnectServer(ctx, serverID); err != nil {
			c.logger.Error("Tool server failed to connect", "server", serverID, "error", err)
			_ = c.Close()
			return &SetupError{ServerID: serverID, Err: err}
		}
	}
	return nil
}

// ConnectServer connects a single server. Returns nil if already connected.
func (c *Client) ConnectServer(ctx context.Context, serverID string) error {
	mu := c.serverMutex(serverID)
	mu.Lock()
	defer mu.Unlock()

	return c.connectServerLocked(ctx, serverID)
}

func (c *Client) serverMutex(serverID string) *sync.Mutex {
	muI, _ := c.reinitMu.LoadOrStore(serverID, &sync.Mutex{})
	return muI.(*sync.Mutex)
}

// connectServerLocked performs the handshake. Caller holds the server mutex.
func (c *Client) connectServerLocked(ctx context.Context, serverID string) error {
	if c.HasSession(serverID) {
		return nil
	}

	serverCfg, err := c.registry.Get(serverID)
	if err != nil {
		return err
	}

	transport, err := createTransport(serverCfg.Transport)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	session, err := sdkClient.Connect(initCtx, transport, nil)
	if err != nil {
		// Stdio transports own a child process.
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		return err
	}

	c.mu.Lock()
	c.sessions[serverID] = session
	c.timeouts[serverID] = callTimeout(serverCfg.Transport.Timeout)
	c.mu.Unlock()

	c.logger.Info("Tool server connected", "server", serverID)
	return nil
}

func callTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		seconds = config.DefaultToolTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// ListTools returns the tools of one server, cached after the first call.
func (c *Client) ListTools(ctx context.Context, serverID string) ([]*mcpsdk.Tool, error) {
	// Lock ordering: never acquire c.mu while holding toolCacheMu.
	c.toolCacheMu.RLock()
	if cached, ok := c.toolCache[serverID]; ok {
		c.toolCacheMu.RUnlock()
		return cached, nil
	}
	c.toolCacheMu.RUnlock()

	session, timeout, err := c.session(serverID)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := session.ListTools(opCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools from %q: %w", serverID, err)
	}

	tools := result.Tools
	if tools == nil {
		tools = []*mcpsdk.Tool{}
	}
	c.toolCacheMu.Lock()
	c.toolCache[serverID] = tools
	c.toolCacheMu.Unlock()

	return tools, nil
}

// CallTool executes one tool. Transport failures get a single retry after a
// jittered backoff, reconnecting first when the session looks broken.
func (c *Client) CallTool(ctx context.Context, serverID, toolName string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	params := &mcpsdk.CallToolParams{
		Name:      toolName,
		Arguments: args,
	}

	result, err := c.callToolOnce(ctx, serverID, params)
	if err == nil {
		return result, nil
	}

	action := ClassifyError(err)
	if action == NoRetry {
		return nil, err
	}

	c.logger.Info("Tool call failed, retrying",
		"server", serverID, "tool", toolName, "action", action, "error", err)

	backoff := RetryBackoffMin + time.Duration(rand.Int64N(int64(RetryBackoffMax-RetryBackoffMin)))
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if action == RetryNewSession {
		if err := c.reconnect(ctx, serverID); err != nil {
			return nil, fmt.Errorf("reconnect to %q failed: %w", serverID, err)
		}
	}

	result, err = c.callToolOnce(ctx, serverID, params)
	if err != nil {
		return nil, fmt.Errorf("retry failed for %s.%s: %w", serverID, toolName, err)
	}
	return result, nil
}

func (c *Client) callToolOnce(ctx context.Context, serverID string, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error) {
	session, timeout, err := c.session(serverID)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return session.CallTool(opCtx, params)
}

func (c *Client) session(serverID string) (*mcpsdk.ClientSession, time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	session, ok := c.sessions[serverID]
	if !ok {
		return nil, 0, fmt.Errorf("no session for server %q", serverID)
	}
	timeout, ok := c.timeouts[serverID]
	if !ok {
		timeout = callTimeout(0)
	}
	return session, timeout, nil
}

// reconnect tears down and re-creates the session for one server.
func (c *Client) reconnect(ctx context.Context, serverID string) error {
	mu := c.serverMutex(serverID)
	mu.Lock()
	defer mu.Unlock()

	c.mu.Lock()
	if session, ok := c.sessions[serverID]; ok {
		_ = session.Close()
		delete(c.sessions, serverID)
	}
	c.mu.Unlock()

	c.invalidateToolCache(serverID)

	reinitCtx, cancel := context.WithTimeout(ctx, ReconnectTimeout)
	defer cancel()

	return c.connectServerLocked(reinitCtx, serverID)
}

// Close disconnects every server. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var firstErr error
	for _, id := range ids {
		if err := c.sessions[id].Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session %q: %w", id, err)
		}
		c.logger.Debug("Tool server disconnected", "server", id)
	}
	c.sessions = make(map[string]*mcpsdk.ClientSession)
	c.timeouts = make(map[string]time.Duration)

	// mu → toolCacheMu is the only permitted order.
	c.toolCacheMu.Lock()
	c.toolCache = make(map[string][]*mcpsdk.Tool)
	c.toolCacheMu.Unlock()

	return firstErr
}

func (c *Client) invalidateToolCache(serverID string) {
	c.toolCacheMu.Lock()
	delete(c.toolCache, serverID)
	c.toolCacheMu.Unlock()
}

// HasSession reports whether a server is connected.
func (c *Client) HasSession(serverID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sessions[serverID]
	return ok
}

// ConnectedServers returns the connected server IDs, sorted.
func (c *Client) ConnectedServers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
