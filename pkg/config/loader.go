package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the configuration file looked up in the config directory.
const ConfigFileName = "research.yaml"

// ResearchYAMLConfig represents the complete research.yaml file structure
type ResearchYAMLConfig struct {
	LLM        *LLMConfig                 `yaml:"llm"`
	MCPServers map[string]MCPServerConfig `yaml:"mcp_servers"`
	Agents     map[string]AgentConfig     `yaml:"agents"`
	Queue      *QueueConfig               `yaml:"queue"`
	Streaming  *StreamingConfig           `yaml:"streaming"`
	Retention  *RetentionConfig           `yaml:"retention"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Load research.yaml from configDir (optional; built-ins apply when absent)
//  2. Expand {{.VAR}} environment templates
//  3. Merge user configuration over built-in agents, servers and defaults
//  4. Apply per-server defaults (tool timeout) and expand built-in env templates
//  5. Build registries and validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"agents", stats.Agents,
		"mcp_servers", stats.MCPServers,
		"llm_model", cfg.LLM.Model,
		"workers", cfg.Queue.WorkerCount)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	userConfig, err := loader.loadResearchYAML()
	if err != nil {
		if !errors.Is(err, ErrConfigNotFound) {
			return nil, NewLoadError(ConfigFileName, err)
		}
		slog.Info("No configuration file found, using built-in defaults",
			"file", filepath.Join(configDir, ConfigFileName))
		userConfig = &ResearchYAMLConfig{}
	}

	builtin := GetBuiltinConfig()

	agents, err := mergeAgents(builtin.Agents, userConfig.Agents)
	if err != nil {
		return nil, err
	}
	mcpServers, err := mergeMCPServers(builtin.MCPServers, userConfig.MCPServers)
	if err != nil {
		return nil, err
	}
	for _, server := range mcpServers {
		applyServerDefaults(server)
	}

	llmCfg := DefaultLLMConfig()
	if err := mergeSection(llmCfg, userConfig.LLM); err != nil {
		return nil, fmt.Errorf("failed to merge llm config: %w", err)
	}
	queueCfg := DefaultQueueConfig()
	if err := mergeSection(queueCfg, userConfig.Queue); err != nil {
		return nil, fmt.Errorf("failed to merge queue config: %w", err)
	}
	streamingCfg := DefaultStreamingConfig()
	if err := mergeSection(streamingCfg, userConfig.Streaming); err != nil {
		return nil, fmt.Errorf("failed to merge streaming config: %w", err)
	}
	retentionCfg := DefaultRetentionConfig()
	if err := mergeSection(retentionCfg, userConfig.Retention); err != nil {
		return nil, fmt.Errorf("failed to merge retention config: %w", err)
	}

	return &Config{
		configDir:         configDir,
		LLM:               llmCfg,
		Queue:             queueCfg,
		Streaming:         streamingCfg,
		Retention:         retentionCfg,
		AgentRegistry:     NewAgentRegistry(agents),
		MCPServerRegistry: NewMCPServerRegistry(mcpServers),
	}, nil
}

// mergeSection overlays the non-zero fields of a user section onto its defaults.
func mergeSection[T any](dst *T, src *T) error {
	if src == nil {
		return nil
	}
	return mergo.Merge(dst, src, mergo.WithOverride)
}

func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadResearchYAML() (*ResearchYAMLConfig, error) {
	var config ResearchYAMLConfig
	config.MCPServers = make(map[string]MCPServerConfig)
	config.Agents = make(map[string]AgentConfig)

	if err := l.loadYAML(ConfigFileName, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
