// Package research runs the multi-analyst research pipelines: the
// single-company pipeline (four analysts, synthesis, strategic take) and
// the sector pipeline (discovery, per-company fan-out, portfolio ranking).
//
// Pipelines are sequential. Cancellation is cooperative: a Tracker is
// polled at checkpoints before every stage and every company, so a stage
// already running always finishes before a cancel request takes effect.
package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/equityresearch/pkg/agent"
	"github.com/codeready-toolchain/equityresearch/pkg/config"
)

// Tracker receives progress from a pipeline and answers cancellation checks.
type Tracker interface {
	// Progress reports a human-readable step. agent is the analyst label
	// or empty.
	Progress(message, agent string)
	// Cancelled reports whether cancellation was requested.
	Cancelled() bool
}

// ToolServers is a connected set of tool servers shared by the stages of
// one run.
type ToolServers interface {
	// Executor returns tools limited to serverIDs, or nil for no tools.
	Executor(serverIDs ...string) agent.ToolExecutor
	Close() error
}

// AcquireFunc connects the listed servers. Errors abort the run.
type AcquireFunc func(ctx context.Context, serverIDs []string) (ToolServers, error)

// Stage outcomes reported to an Observer.
const (
	OutcomeSuccess  = "success"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// Observer is notified when an analyst stage finishes.
type Observer interface {
	StageFinished(agentName, outcome string, duration time.Duration)
}

// Engine runs research pipelines. It holds no per-run state and is safe
// for concurrent use by several sessions.
type Engine struct {
	runner   agent.Runner
	agents   *config.AgentRegistry
	servers  *config.MCPServerRegistry
	acquire  AcquireFunc
	observer Observer
	now      func() time.Time
	logger   *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithObserver registers a stage observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over the configured agents.
func NewEngine(runner agent.Runner, cfg *config.Config, acquire AcquireFunc, opts ...Option) *Engine {
	e := &Engine{
		runner:  runner,
		agents:  cfg.AgentRegistry,
		servers: cfg.MCPServerRegistry,
		acquire: acquire,
		now:     time.Now,
		logger:  slog.Default().With("component", "research"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// checkpoint returns ErrCancelled once cancellation has been requested, or
// the context error once the session deadline has passed.
func checkpoint(ctx context.Context, tr Tracker) error {
	if tr.Cancelled() {
		return ErrCancelled
	}
	return ctx.Err()
}

// serversFor returns the union of the agents' tool servers in first-use order.
func (e *Engine) serversFor(agentNames ...string) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, name := range agentNames {
		cfg, err := e.agents.Get(name)
		if err != nil {
			continue
		}
		for _, id := range cfg.MCPServers {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (e *Engine) label(agentName string) string {
	if cfg, err := e.agents.Get(agentName); err == nil && cfg.Label != "" {
		return cfg.Label
	}
	return agentName
}

// run executes one agent with the given turn budget. A nil pool or an
// agent without servers runs without tools.
func (e *Engine) run(ctx context.Context, pool ToolServers, agentName, prompt string, maxTurns int) (string, error) {
	cfg, err := e.agents.Get(agentName)
	if err != nil {
		return "", err
	}
	if maxTurns <= 0 {
		maxTurns = cfg.MaxTurns
	}

	var tools agent.ToolExecutor
	if pool != nil && len(cfg.MCPServers) > 0 {
		tools = pool.Executor(cfg.MCPServers...)
	}
	return e.runner.Run(ctx, agent.NewDefinition(agentName, cfg, e.servers), prompt, tools, maxTurns)
}

func (e *Engine) observe(agentName, outcome string, start time.Time) {
	if e.observer != nil {
		e.observer.StageFinished(agentName, outcome, time.Since(start))
	}
}

// analystStage runs one analyst bracketed by started/completed progress.
// Failures never escape: the output becomes "<name> analysis unavailable
// due to error: <cause>". An agent with a fallback budget that exhausts
// its turns gets one more run told to answer from partial findings.
func (e *Engine) analystStage(ctx context.Context, tr Tracker, pool ToolServers, agentName, analysisName, symbol, prompt string) string {
	label := e.label(agentName)
	start := time.Now()
	tr.Progress(label+" started...", label)

	out, err := e.run(ctx, pool, agentName, prompt, 0)
	if err == nil {
		tr.Progress(label+" completed", label)
		e.observe(agentName, OutcomeSuccess, start)
		return out
	}

	if cfg, cfgErr := e.agents.Get(agentName); cfgErr == nil && cfg.FallbackMaxTurns > 0 && errors.Is(err, agent.ErrMaxTurnsExceeded) {
		return e.fallbackStage(ctx, tr, pool, agentName, label, symbol, cfg.FallbackMaxTurns, start)
	}

	e.logger.Warn("Analyst failed", "agent", agentName, "symbol", symbol, "error", err)
	tr.Progress(fmt.Sprintf("%s encountered an error: %s", label, err), label)
	e.observe(agentName, OutcomeError, start)
	return fmt.Sprintf("%s analysis unavailable due to error: %s", analysisName, err)
}

// SparseCoverageText replaces the news analysis when both the primary and
// the fallback runs fail.
const SparseCoverageText = "News coverage in the last 30 days appears sparse; unable to retrieve detailed articles after multiple attempts."

func (e *Engine) fallbackStage(ctx context.Context, tr Tracker, pool ToolServers, agentName, label, symbol string, budget int, start time.Time) string {
	tr.Progress(label+" hit the time limit while gathering fresh coverage; providing limited update.", label)

	out, err := e.run(ctx, pool, agentName, fallbackPrompt(symbol), budget)
	if err != nil {
		e.logger.Warn("Analyst fallback failed", "agent", agentName, "symbol", symbol, "error", err)
		tr.Progress(label+" reported that recent coverage is sparse.", label)
		e.observe(agentName, OutcomeError, start)
		return SparseCoverageText
	}

	tr.Progress(label+" provided a limited recent news summary.", label)
	e.observe(agentName, OutcomeFallback, start)
	return out
}

// containedStage runs a stage whose failure becomes placeholder
// text so the pipeline can still assemble a bundle.
func (e *Engine) containedStage(ctx context.Context, pool ToolServers, agentName, what, prompt string) (string, error) {
	start := time.Now()
	out, err := e.run(ctx, pool, agentName, prompt, 0)
	if err != nil {
		e.logger.Warn("Stage failed", "agent", agentName, "error", err)
		e.observe(agentName, OutcomeError, start)
		return fmt.Sprintf("%s unavailable due to error: %s", what, err), err
	}
	e.observe(agentName, OutcomeSuccess, start)
	return out, nil
}
