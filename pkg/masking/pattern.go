package masking

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/codeready-toolchain/equityresearch/pkg/config"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// compileBuiltinPatterns compiles all built-in regex patterns from config.
// Invalid patterns are logged and skipped.
func (s *Service) compileBuiltinPatterns() {
	for name, pattern := range config.GetBuiltinConfig().MaskingPatterns {
		compiled, err := regexp.Compile(pattern.Pattern)
		if err != nil {
			slog.Error("Failed to compile built-in masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		s.patterns[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: pattern.Replacement,
			Description: pattern.Description,
		}
	}
}

// compileCustomPatterns compiles custom patterns from all MCP server configs.
// Custom patterns are keyed as "custom:{serverID}:{index}" to avoid collisions.
func (s *Service) compileCustomPatterns() {
	for serverID, serverCfg := range s.registry.GetAll() {
		if serverCfg.DataMasking == nil || !serverCfg.DataMasking.Enabled {
			continue
		}
		for i, pattern := range serverCfg.DataMasking.CustomPatterns {
			name := fmt.Sprintf("custom:%s:%d", serverID, i)
			compiled, err := regexp.Compile(pattern.Pattern)
			if err != nil {
				slog.Error("Failed to compile custom masking pattern, skipping",
					"pattern", name, "server", serverID, "error", err)
				continue
			}
			s.patterns[name] = &CompiledPattern{
				Name:        name,
				Regex:       compiled,
				Replacement: pattern.Replacement,
				Description: pattern.Description,
			}
			s.serverCustomPatterns[serverID] = append(s.serverCustomPatterns[serverID], name)
		}
	}
}

// resolvePatterns expands a server's MaskingConfig into a deduplicated,
// ordered list: group members first, then named patterns, then the server's
// custom patterns.
func (s *Service) resolvePatterns(cfg *config.MaskingConfig, serverID string) []*CompiledPattern {
	seen := make(map[string]bool)
	var resolved []*CompiledPattern
	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		if cp, ok := s.patterns[name]; ok {
			resolved = append(resolved, cp)
		}
	}

	for _, groupName := range cfg.PatternGroups {
		for _, name := range s.patternGroups[groupName] {
			add(name)
		}
	}
	for _, name := range cfg.Patterns {
		add(name)
	}
	for _, name := range s.serverCustomPatterns[serverID] {
		add(name)
	}
	return resolved
}
