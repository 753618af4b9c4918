package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/equityresearch/pkg/agent"
	"github.com/codeready-toolchain/equityresearch/pkg/config"
	"github.com/codeready-toolchain/equityresearch/pkg/masking"
	"github.com/codeready-toolchain/equityresearch/pkg/mcp"
	"github.com/codeready-toolchain/equityresearch/pkg/metrics"
	"github.com/codeready-toolchain/equityresearch/pkg/research"
	"github.com/codeready-toolchain/equityresearch/pkg/version"
)

// demoDelay paces demo replies so progress streams look realistic.
var demoDelay = 300 * time.Millisecond

type globalOptions struct {
	configDir string
	demo      bool
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "equityresearch",
		Short:         "Multi-analyst equity research service",
		Long:          "equityresearch runs LLM analyst pipelines over financial tool servers and produces structured research reports for single companies and whole sectors.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(cmd.ErrOrStderr(), os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
			loadEnvFile(opts.configDir)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configDir, "config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	rootCmd.PersistentFlags().BoolVar(&opts.demo, "demo", false,
		"Use canned LLM replies and no tool servers (runs offline)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newStockCmd(opts),
		newSectorCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "equityresearch %s\n", version.Full())
		},
	}
}

// setupLogging installs the default slog logger. format "json" selects the
// JSON handler; anything else is text.
func setupLogging(w io.Writer, level, format string) {
	handlerOpts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadEnvFile(configDir string) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
		return
	}
	slog.Info("Loaded environment", "path", envPath)
}

// pipeline is the research engine plus the tool server plumbing behind it.
type pipeline struct {
	engine  *research.Engine
	factory *mcp.ClientFactory // nil in demo mode
	llm     agent.LLMClient
}

func (p *pipeline) Close() {
	if err := p.llm.Close(); err != nil {
		slog.Error("Error closing LLM client", "error", err)
	}
}

// newPipeline builds the engine. Demo mode swaps the LLM for canned replies
// and connects no tool servers.
func newPipeline(cfg *config.Config, demo bool, m *metrics.Metrics) (*pipeline, error) {
	var (
		llm     agent.LLMClient
		acquire research.AcquireFunc
		factory *mcp.ClientFactory
	)
	if demo {
		llm = agent.NewDemoClient(demoDelay)
		acquire = research.NoToolServers
		slog.Info("Demo mode: using canned analyst replies, tool servers disabled")
	} else {
		client, err := agent.NewOpenAIClient(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
		llm = client
		factory = mcp.NewClientFactory(cfg.MCPServerRegistry, masking.NewService(cfg.MCPServerRegistry))
		acquire = research.AcquireFromFactory(factory)
		slog.Info("LLM client initialized", "model", cfg.LLM.Model)
	}

	runner := agent.NewToolLoopRunner(llm, cfg.LLM.MaxToolResultChars)
	var engineOpts []research.Option
	if m != nil {
		engineOpts = append(engineOpts, research.WithObserver(m))
	}
	return &pipeline{
		engine:  research.NewEngine(runner, cfg, acquire, engineOpts...),
		factory: factory,
		llm:     llm,
	}, nil
}

func loadConfig(ctx context.Context, opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Initialize(ctx, opts.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}
	stats := cfg.Stats()
	slog.Info("Configuration loaded",
		"config_dir", cfg.ConfigDir(), "agents", stats.Agents, "mcp_servers", stats.MCPServers,
		"server_ids", cfg.AllMCPServerIDs())
	return cfg, nil
}
