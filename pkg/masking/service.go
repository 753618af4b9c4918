// Package masking redacts secrets from tool server results before they are
// handed to an analyst, and so before they can reach a report.
package masking

import (
	"log/slog"
	"sync"

	"github.com/codeready-toolchain/equityresearch/pkg/config"
)

// Service applies data masking to MCP tool results. Created once at startup
// and safe for concurrent use; the only state is the compiled patterns.
type Service struct {
	registry             *config.MCPServerRegistry
	patterns             map[string]*CompiledPattern // Built-in + custom compiled patterns
	patternGroups        map[string][]string         // Group name → pattern names
	serverCustomPatterns map[string][]string         // serverID → custom pattern keys

	mu       sync.RWMutex
	resolved map[string][]*CompiledPattern // serverID → patterns, filled lazily
}

// NewService creates a masking service. All patterns are compiled eagerly;
// invalid ones are logged and skipped.
func NewService(registry *config.MCPServerRegistry) *Service {
	s := &Service{
		registry:             registry,
		patterns:             make(map[string]*CompiledPattern),
		patternGroups:        config.GetBuiltinConfig().PatternGroups,
		serverCustomPatterns: make(map[string][]string),
		resolved:             make(map[string][]*CompiledPattern),
	}

	s.compileBuiltinPatterns()
	s.compileCustomPatterns()

	slog.Info("Masking service initialized",
		"builtin_patterns", len(config.GetBuiltinConfig().MaskingPatterns),
		"compiled_patterns", len(s.patterns))
	return s
}

// MaskToolResult applies the server's masking to tool result content.
// Servers without masking enabled pass through unchanged.
func (s *Service) MaskToolResult(content, serverID string) string {
	if content == "" {
		return content
	}
	patterns := s.patternsFor(serverID)
	if len(patterns) == 0 {
		return content
	}

	masked := content
	for _, p := range patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	if masked != content {
		slog.Debug("Masked tool result", "server", serverID)
	}
	return masked
}

func (s *Service) patternsFor(serverID string) []*CompiledPattern {
	s.mu.RLock()
	patterns, ok := s.resolved[serverID]
	s.mu.RUnlock()
	if ok {
		return patterns
	}

	serverCfg, err := s.registry.Get(serverID)
	if err == nil && serverCfg.DataMasking != nil && serverCfg.DataMasking.Enabled {
		patterns = s.resolvePatterns(serverCfg.DataMasking, serverID)
	}

	s.mu.Lock()
	s.resolved[serverID] = patterns
	s.mu.Unlock()
	return patterns
}
