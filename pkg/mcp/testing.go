package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeready-toolchain/equityresearch/pkg/config"
)

// InjectSession registers an already connected session, bypassing the
// transport. For tests wiring in-memory servers.
func (c *Client) InjectSession(serverID string, session *mcpsdk.ClientSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[serverID] = session
}

// NewTestClientFactory returns a factory whose Acquire calls injectFn
// instead of connecting. injectFn may return an error to simulate a setup
// failure.
func NewTestClientFactory(registry *config.MCPServerRegistry, injectFn func(c *Client, serverIDs []string) error) *ClientFactory {
	if registry == nil {
		registry = config.NewMCPServerRegistry(nil)
	}
	return &ClientFactory{
		registry: registry,
		connectFn: func(_ context.Context, c *Client, serverIDs []string) error {
			return injectFn(c, serverIDs)
		},
	}
}
