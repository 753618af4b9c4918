package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/equityresearch/pkg/agent"
	"github.com/codeready-toolchain/equityresearch/pkg/config"
)

func TestResearchStock_HappyPath(t *testing.T) {
	runner := newFakeRunner().
		on(config.AgentNews, func(string, int) (string, error) {
			return "see https://news.example.com/first and https://shared.example.com/a.", nil
		}).
		on(config.AgentReport, func(string, int) (string, error) {
			return reportText("AAPL"), nil
		})
	acq := &fakeAcquirer{}
	tr := &recordingTracker{}
	obs := &recordingObserver{}
	e := newTestEngine(t, runner, acq, WithObserver(obs))

	bundle, err := e.ResearchStock(context.Background(), tr, "stock_AAPL_1", "AAPL", "US")
	require.NoError(t, err)

	assert.Equal(t, []string{
		config.AgentFinancial, config.AgentTechnical, config.AgentNews, config.AgentComparative,
		config.AgentReport, config.AgentStrategic,
	}, runner.agents())

	require.Len(t, acq.requests, 1)
	assert.Equal(t, []string{config.ServerMarketData, config.ServerWebSearch}, acq.requests[0])
	assert.Equal(t, 1, acq.pools[0].closed)

	for _, c := range runner.calls {
		switch c.agent {
		case config.AgentReport, config.AgentStrategic:
			assert.False(t, c.hasTools, c.agent)
			assert.Equal(t, 3, c.maxTurns, c.agent)
		default:
			assert.True(t, c.hasTools, c.agent)
		}
	}
	assert.Equal(t, 20, runner.callsFor(config.AgentFinancial)[0].maxTurns)
	assert.Equal(t, 14, runner.callsFor(config.AgentNews)[0].maxTurns)

	synthesis := runner.callsFor(config.AgentReport)[0].prompt
	assert.Contains(t, synthesis, "## FUNDAMENTAL ANALYSIS\nFinancialAnalyst output")
	assert.Contains(t, synthesis, "## PEER COMPARISON ANALYSIS\nComparativeAnalyst output")
	assert.Contains(t, runner.callsFor(config.AgentStrategic)[0].prompt, "## Executive Summary")

	assert.Equal(t, reportText("AAPL")+"\n\n---\n\nStrategicAnalyst output", bundle.FullReport)
	assert.Equal(t, "Executive Summary for AAPL", bundle.Sections.ExecutiveSummary)
	assert.Equal(t, "Risk Assessment for AAPL", bundle.Sections.Risk)
	assert.Equal(t, "StrategicAnalyst output", bundle.Sections.Strategic)
	assert.Equal(t, "FinancialAnalyst output", bundle.Analyses.Financial)
	assert.Equal(t, "StrategicAnalyst output", bundle.Analyses.Strategic)
	assert.Equal(t, []string{
		"https://news.example.com/first",
		"https://shared.example.com/a",
		"https://news.example.com/AAPL",
	}, bundle.Sources.NewsLinks)
	assert.Equal(t, Metadata{
		GeneratedAt: "2026-03-14 09:30:00",
		Symbol:      "AAPL",
		Exchange:    "US",
		SessionID:   "stock_AAPL_1",
		Type:        TypeStock,
	}, bundle.Metadata)

	assert.Equal(t, []string{
		"Starting research on AAPL...",
		"Connecting to MCP servers...",
		"Servers connected!",
		"Financial Analyst started...",
		"Financial Analyst completed",
		"Technical Analyst started...",
		"Technical Analyst completed",
		"News Analyst started...",
		"News Analyst completed",
		"Risk Analyst started...",
		"Risk Analyst completed",
		"Report Generator started...",
		"Report Generator completed",
		"Generating final report...",
		"Research completed successfully!",
	}, tr.messages())

	assert.Equal(t, []string{OutcomeSuccess}, obs.outcomes[config.AgentFinancial])
	assert.Equal(t, []string{OutcomeSuccess}, obs.outcomes[config.AgentStrategic])
}

func TestResearchStock_IndianExchangeSuffix(t *testing.T) {
	runner := newFakeRunner()
	e := newTestEngine(t, runner, &fakeAcquirer{})

	bundle, err := e.ResearchStock(context.Background(), &recordingTracker{}, "s", "RELIANCE", "NSE")
	require.NoError(t, err)
	assert.Equal(t, "RELIANCE.NS", bundle.Metadata.Symbol)
	assert.Equal(t, "NSE", bundle.Metadata.Exchange)
	assert.Contains(t, runner.callsFor(config.AgentFinancial)[0].prompt, "Stock symbol: RELIANCE.NS")
}

func TestResearchStock_AllAnalystsFail(t *testing.T) {
	boom := func(string, int) (string, error) { return "", errors.New("boom") }
	runner := newFakeRunner().
		on(config.AgentFinancial, boom).
		on(config.AgentTechnical, boom).
		on(config.AgentNews, boom).
		on(config.AgentComparative, boom)
	tr := &recordingTracker{}
	e := newTestEngine(t, runner, &fakeAcquirer{})

	bundle, err := e.ResearchStock(context.Background(), tr, "s", "AAPL", "US")
	require.NoError(t, err)

	assert.Len(t, runner.callsFor(config.AgentReport), 1)
	assert.Len(t, runner.callsFor(config.AgentStrategic), 1)

	assert.Equal(t, "Financial analysis unavailable due to error: boom", bundle.Analyses.Financial)
	assert.Equal(t, "Technical analysis unavailable due to error: boom", bundle.Analyses.Technical)
	assert.Equal(t, "News analysis unavailable due to error: boom", bundle.Analyses.News)
	assert.Equal(t, "Comparative analysis unavailable due to error: boom", bundle.Analyses.Comparative)
	assert.Contains(t, runner.callsFor(config.AgentReport)[0].prompt, "Financial analysis unavailable due to error: boom")
	assert.True(t, tr.has("Financial Analyst encountered an error: boom"))
	assert.True(t, tr.has("Risk Analyst encountered an error: boom"))

	raw, err := json.Marshal(bundle)
	require.NoError(t, err)
	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &top))
	decoded := map[string]map[string]any{}
	for _, key := range []string{"sections", "analyses", "sources", "metadata"} {
		var m map[string]any
		require.NoError(t, json.Unmarshal(top[key], &m), key)
		decoded[key] = m
	}
	assert.Contains(t, top, "full_report")
	for _, key := range []string{"executive_summary", "fundamental", "technical", "news", "comparison", "synthesis", "risk", "strategic"} {
		assert.Contains(t, decoded["sections"], key)
	}
	for _, key := range []string{"financial", "technical", "news", "comparative", "strategic"} {
		assert.Contains(t, decoded["analyses"], key)
	}
	assert.Equal(t, []any{}, decoded["sources"]["news_links"])
}

func TestResearchStock_NewsFallback(t *testing.T) {
	t.Run("fallback answers from partial findings", func(t *testing.T) {
		runner := newFakeRunner().on(config.AgentNews, func(_ string, maxTurns int) (string, error) {
			if maxTurns == 14 {
				return "", fmt.Errorf("run: %w", &agent.MaxTurnsError{Agent: config.AgentNews, MaxTurns: 14})
			}
			return "limited update", nil
		})
		tr := &recordingTracker{}
		obs := &recordingObserver{}
		e := newTestEngine(t, runner, &fakeAcquirer{}, WithObserver(obs))

		bundle, err := e.ResearchStock(context.Background(), tr, "s", "AAPL", "US")
		require.NoError(t, err)

		calls := runner.callsFor(config.AgentNews)
		require.Len(t, calls, 2)
		assert.Equal(t, 4, calls[1].maxTurns)
		assert.Contains(t, calls[1].prompt, "ran out of turns")
		assert.True(t, calls[1].hasTools)

		assert.Equal(t, "limited update", bundle.Analyses.News)
		assert.True(t, tr.has("News Analyst hit the time limit while gathering fresh coverage; providing limited update."))
		assert.True(t, tr.has("News Analyst provided a limited recent news summary."))
		assert.Equal(t, []string{OutcomeFallback}, obs.outcomes[config.AgentNews])
	})

	t.Run("fallback also fails", func(t *testing.T) {
		runner := newFakeRunner().on(config.AgentNews, func(_ string, maxTurns int) (string, error) {
			return "", &agent.MaxTurnsError{Agent: config.AgentNews, MaxTurns: maxTurns}
		})
		tr := &recordingTracker{}
		e := newTestEngine(t, runner, &fakeAcquirer{})

		bundle, err := e.ResearchStock(context.Background(), tr, "s", "AAPL", "US")
		require.NoError(t, err)
		assert.Len(t, runner.callsFor(config.AgentNews), 2)
		assert.Equal(t, SparseCoverageText, bundle.Analyses.News)
		assert.True(t, tr.has("News Analyst reported that recent coverage is sparse."))
	})

	t.Run("no fallback for other analysts", func(t *testing.T) {
		runner := newFakeRunner().on(config.AgentFinancial, func(_ string, maxTurns int) (string, error) {
			return "", &agent.MaxTurnsError{Agent: config.AgentFinancial, MaxTurns: maxTurns}
		})
		e := newTestEngine(t, runner, &fakeAcquirer{})

		bundle, err := e.ResearchStock(context.Background(), &recordingTracker{}, "s", "AAPL", "US")
		require.NoError(t, err)
		assert.Len(t, runner.callsFor(config.AgentFinancial), 1)
		assert.Equal(t, "Financial analysis unavailable due to error: Max turns (20) exceeded for FinancialAnalyst", bundle.Analyses.Financial)
	})
}

func TestResearchStock_SynthesisFailureContained(t *testing.T) {
	runner := newFakeRunner().on(config.AgentReport, func(string, int) (string, error) {
		return "", errors.New("context length exceeded")
	})
	tr := &recordingTracker{}
	e := newTestEngine(t, runner, &fakeAcquirer{})

	bundle, err := e.ResearchStock(context.Background(), tr, "s", "AAPL", "US")
	require.NoError(t, err)

	assert.Len(t, runner.callsFor(config.AgentStrategic), 1)
	assert.Contains(t, runner.callsFor(config.AgentStrategic)[0].prompt, "Report generation unavailable due to error: context length exceeded")
	assert.Empty(t, bundle.Sections.ExecutiveSummary)
	assert.Equal(t, "StrategicAnalyst output", bundle.Sections.Strategic)
	assert.True(t, tr.has("Report Generator encountered an error: context length exceeded"))
}

func TestResearchStock_CancelledBeforeStart(t *testing.T) {
	runner := newFakeRunner()
	acq := &fakeAcquirer{}
	e := newTestEngine(t, runner, acq)

	bundle, err := e.ResearchStock(context.Background(), &recordingTracker{cancelled: true}, "s", "AAPL", "US")
	assert.Nil(t, bundle)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.True(t, IsCancellation(err))
	assert.Empty(t, runner.agents())
	assert.Empty(t, acq.requests)
}

func TestResearchStock_CancelledMidPipeline(t *testing.T) {
	runner := newFakeRunner()
	acq := &fakeAcquirer{}
	tr := &recordingTracker{cancelOn: func(m string) bool { return m == "Technical Analyst completed" }}
	e := newTestEngine(t, runner, acq)

	bundle, err := e.ResearchStock(context.Background(), tr, "s", "AAPL", "US")
	assert.Nil(t, bundle)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, []string{config.AgentFinancial, config.AgentTechnical}, runner.agents())
	assert.False(t, tr.has("News Analyst started..."))
	assert.Equal(t, 1, acq.pools[0].closed)
}

func TestResearchStock_CancelledDuringStrategic(t *testing.T) {
	tr := &recordingTracker{}
	runner := newFakeRunner().on(config.AgentStrategic, func(string, int) (string, error) {
		tr.mu.Lock()
		tr.cancelled = true
		tr.mu.Unlock()
		return "HOLD", nil
	})
	acq := &fakeAcquirer{}
	e := newTestEngine(t, runner, acq)

	bundle, err := e.ResearchStock(context.Background(), tr, "s", "AAPL", "US")
	assert.Nil(t, bundle)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Len(t, runner.callsFor(config.AgentStrategic), 1)
	assert.False(t, tr.has("Research completed successfully!"))
	assert.Equal(t, 1, acq.pools[0].closed)
}

func TestResearchStock_SetupError(t *testing.T) {
	runner := newFakeRunner()
	e := newTestEngine(t, runner, &fakeAcquirer{failOn: 1})

	_, err := e.ResearchStock(context.Background(), &recordingTracker{}, "s", "AAPL", "US")
	var setupErr *SetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Contains(t, err.Error(), "executable file not found")
	assert.False(t, IsCancellation(err))
	assert.Empty(t, runner.agents())
}

func TestResearchStock_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newTestEngine(t, newFakeRunner(), &fakeAcquirer{})

	_, err := e.ResearchStock(ctx, &recordingTracker{}, "s", "AAPL", "US")
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsCancellation(err))
}
