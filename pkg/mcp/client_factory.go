package mcp

import (
	"context"
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/equityresearch/pkg/agent"
	"github.com/codeready-toolchain/equityresearch/pkg/config"
)

// ResultMasker redacts tool result content. Implemented by *masking.Service.
type ResultMasker interface {
	MaskToolResult(content, serverID string) string
}

// ClientFactory acquires tool server pools for research runs.
type ClientFactory struct {
	registry *config.MCPServerRegistry
	masker   ResultMasker

	// connectFn replaces the real handshake in tests.
	connectFn func(ctx context.Context, c *Client, serverIDs []string) error
}

// NewClientFactory creates a factory over the configured servers. masker
// may be nil to return tool results unmodified.
func NewClientFactory(registry *config.MCPServerRegistry, masker ResultMasker) *ClientFactory {
	return &ClientFactory{registry: registry, masker: masker}
}

// Acquire connects every listed server once and returns the pool that owns
// the connections. A connection failure closes anything already connected
// and returns a *SetupError. The caller must Close the pool.
func (f *ClientFactory) Acquire(ctx context.Context, serverIDs []string) (*ToolServerPool, error) {
	client := newClient(f.registry)

	connect := f.connectFn
	if connect == nil {
		connect = func(ctx context.Context, c *Client, ids []string) error { return c.Connect(ctx, ids) }
	}
	if err := connect(ctx, client, serverIDs); err != nil {
		_ = client.Close()
		return nil, err
	}

	slog.Debug("Tool server pool acquired", "servers", serverIDs)
	return &ToolServerPool{client: client, serverIDs: append([]string(nil), serverIDs...), masker: f.masker}, nil
}

// ToolServerPool is the set of tool servers connected for one research run.
// Analysts running in sequence share it; Close disconnects everything.
type ToolServerPool struct {
	client    *Client
	serverIDs []string
	masker    ResultMasker
	closeOnce sync.Once
	closeErr  error
}

// Executor returns a tool executor limited to serverIDs. Servers not in the
// pool are ignored. With no arguments it exposes every pooled server.
func (p *ToolServerPool) Executor(serverIDs ...string) agent.ToolExecutor {
	if len(serverIDs) == 0 {
		return NewToolExecutor(p.client, p.serverIDs, p.masker)
	}
	allowed := make([]string, 0, len(serverIDs))
	for _, id := range serverIDs {
		if p.client.HasSession(id) {
			allowed = append(allowed, id)
		}
	}
	return NewToolExecutor(p.client, allowed, p.masker)
}

// Servers returns the pooled server IDs.
func (p *ToolServerPool) Servers() []string {
	return append([]string(nil), p.serverIDs...)
}

// Close disconnects every server. Later calls return the first result.
func (p *ToolServerPool) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.client.Close()
	})
	return p.closeErr
}
