package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/equityresearch/pkg/config"
)

// stockAnalysts are the tool-using analysts of the single-company pipeline, in run order.
var stockAnalysts = []string{
	config.AgentFinancial,
	config.AgentTechnical,
	config.AgentNews,
	config.AgentComparative,
}

// ResearchStock connects the analysts' tool servers and researches one
// company. A connection failure returns a *SetupError; a cancellation
// observed at a checkpoint returns ErrCancelled. Any other failure is
// contained in the bundle.
func (e *Engine) ResearchStock(ctx context.Context, tr Tracker, sessionID, symbol, exchange string) (*ReportBundle, error) {
	tr.Progress(fmt.Sprintf("Starting research on %s...", symbol), "")
	if err := checkpoint(ctx, tr); err != nil {
		return nil, err
	}

	tr.Progress("Connecting to MCP servers...", "")
	pool, err := e.acquire(ctx, e.serversFor(stockAnalysts...))
	if err != nil {
		return nil, &SetupError{Stage: "connect tool servers", Err: err}
	}
	defer func() {
		if err := pool.Close(); err != nil {
			e.logger.Warn("Failed to close tool servers", "session_id", sessionID, "error", err)
		}
	}()
	tr.Progress("Servers connected!", "")

	return e.researchWithServers(ctx, tr, pool, sessionID, symbol, exchange)
}

// researchWithServers runs the single-company pipeline on already
// connected servers: four analysts, synthesis, strategic take, assembly.
func (e *Engine) researchWithServers(ctx context.Context, tr Tracker, pool ToolServers, sessionID, symbol, exchange string) (*ReportBundle, error) {
	if err := checkpoint(ctx, tr); err != nil {
		return nil, err
	}
	full := NormalizeSymbol(symbol, exchange)
	now := e.now()

	prompts := map[string]string{
		config.AgentFinancial:   fundamentalPrompt(full, now),
		config.AgentTechnical:   technicalPrompt(full, now),
		config.AgentNews:        newsPrompt(full, now),
		config.AgentComparative: comparativePrompt(full, now),
	}
	analysisNames := map[string]string{
		config.AgentFinancial:   "Financial",
		config.AgentTechnical:   "Technical",
		config.AgentNews:        "News",
		config.AgentComparative: "Comparative",
	}

	outputs := make(map[string]string, len(stockAnalysts))
	for _, name := range stockAnalysts {
		if err := checkpoint(ctx, tr); err != nil {
			return nil, err
		}
		outputs[name] = e.analystStage(ctx, tr, pool, name, analysisNames[name], full, prompts[name])
	}

	if err := checkpoint(ctx, tr); err != nil {
		return nil, err
	}
	reportLabel := e.label(config.AgentReport)
	tr.Progress(reportLabel+" started...", reportLabel)
	synthesis, err := e.containedStage(ctx, pool, config.AgentReport, "Report generation",
		synthesisPrompt(full,
			outputs[config.AgentFinancial],
			outputs[config.AgentTechnical],
			outputs[config.AgentNews],
			outputs[config.AgentComparative]))
	if err != nil {
		tr.Progress(fmt.Sprintf("%s encountered an error: %s", reportLabel, err), reportLabel)
	} else {
		tr.Progress(reportLabel+" completed", reportLabel)
	}

	if err := checkpoint(ctx, tr); err != nil {
		return nil, err
	}
	strategicLabel := e.label(config.AgentStrategic)
	tr.Progress("Generating final report...", strategicLabel)
	strategic, err := e.containedStage(ctx, pool, config.AgentStrategic, "Strategic analysis", strategicPrompt(full, synthesis))
	if err != nil {
		tr.Progress(fmt.Sprintf("%s encountered an error: %s", strategicLabel, err), strategicLabel)
	}

	if err := checkpoint(ctx, tr); err != nil {
		return nil, err
	}
	sections := SplitSections(synthesis)
	bundle := &ReportBundle{
		FullReport: synthesis + "\n\n---\n\n" + strategic,
		Sections:   newSections(sections, strategic),
		Analyses: Analyses{
			Financial:   outputs[config.AgentFinancial],
			Technical:   outputs[config.AgentTechnical],
			News:        outputs[config.AgentNews],
			Comparative: outputs[config.AgentComparative],
			Strategic:   strategic,
		},
		Sources: Sources{
			NewsLinks: ExtractLinks(outputs[config.AgentNews] + "\n" + sections[HeadingNews]),
		},
		Metadata: Metadata{
			GeneratedAt: e.now().Format(TimestampLayout),
			Symbol:      full,
			Exchange:    exchange,
			SessionID:   sessionID,
			Type:        TypeStock,
		},
	}

	tr.Progress("Research completed successfully!", strategicLabel)
	e.logger.Info("Company research finished",
		"session_id", sessionID, "symbol", full,
		"sections", countNonEmpty(bundle.Sections), "links", len(bundle.Sources.NewsLinks))
	return bundle, nil
}

func countNonEmpty(s Sections) int {
	n := 0
	for _, v := range []string{s.ExecutiveSummary, s.Fundamental, s.Technical, s.News, s.Comparison, s.Synthesis, s.Risk, s.Strategic} {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}
