package research

import (
	"context"

	"github.com/codeready-toolchain/equityresearch/pkg/agent"
	"github.com/codeready-toolchain/equityresearch/pkg/mcp"
)

// AcquireFromFactory connects tool servers through an MCP client factory.
func AcquireFromFactory(f *mcp.ClientFactory) AcquireFunc {
	return func(ctx context.Context, serverIDs []string) (ToolServers, error) {
		pool, err := f.Acquire(ctx, serverIDs)
		if err != nil {
			return nil, err
		}
		return pool, nil
	}
}

// NoToolServers connects nothing; every agent runs without tools. Used in
// demo mode.
func NoToolServers(context.Context, []string) (ToolServers, error) {
	return noServers{}, nil
}

type noServers struct{}

func (noServers) Executor(...string) agent.ToolExecutor { return nil }
func (noServers) Close() error                          { return nil }
