package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/equityresearch/pkg/agent"
	"github.com/codeready-toolchain/equityresearch/pkg/config"
	"github.com/codeready-toolchain/equityresearch/pkg/events"
	"github.com/codeready-toolchain/equityresearch/pkg/research"
	"github.com/codeready-toolchain/equityresearch/pkg/session"
)

func newDemoExecutor(t *testing.T, acquire research.AcquireFunc) *ResearchExecutor {
	t.Helper()
	cfg, err := config.Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)
	runner := agent.NewToolLoopRunner(agent.NewDemoClient(0), 4000)
	return NewResearchExecutor(research.NewEngine(runner, cfg, acquire))
}

func TestResearchExecutor_Stock(t *testing.T) {
	exec := newDemoExecutor(t, research.NoToolServers)
	s := session.NewManager().Create(session.Request{Kind: session.KindStock, Subject: "AAPL", Exchange: "US"})

	result := exec.Execute(context.Background(), s)
	require.Equal(t, session.StatusComplete, result.Status, "error: %v", result.Error)

	bundle, ok := result.Report.(*research.ReportBundle)
	require.True(t, ok)
	assert.Equal(t, "AAPL", bundle.Metadata.Symbol)
	assert.NotEmpty(t, bundle.Sections.ExecutiveSummary)
	assert.Positive(t, s.Channel().Len())
}

func TestResearchExecutor_Sector(t *testing.T) {
	exec := newDemoExecutor(t, research.NoToolServers)
	s := session.NewManager().Create(session.Request{Kind: session.KindSector, Subject: "Technology", Exchange: "US", NumCompanies: 2})

	result := exec.Execute(context.Background(), s)
	require.Equal(t, session.StatusComplete, result.Status, "error: %v", result.Error)

	bundle, ok := result.Report.(*research.SectorReportBundle)
	require.True(t, ok)
	assert.Equal(t, []string{"AAPL", "MSFT"}, bundle.Metadata.Tickers)
	assert.Len(t, bundle.CompanyReports, 2)
}

func TestResearchExecutor_Outcomes(t *testing.T) {
	failing := func(context.Context, []string) (research.ToolServers, error) {
		return nil, assert.AnError
	}

	t.Run("cancelled before start", func(t *testing.T) {
		exec := newDemoExecutor(t, research.NoToolServers)
		s := session.NewManager().Create(session.Request{Kind: session.KindStock, Subject: "AAPL", Exchange: "US"})
		s.RequestCancel()

		result := exec.Execute(context.Background(), s)
		assert.Equal(t, session.StatusCancelled, result.Status)
		assert.True(t, research.IsCancellation(result.Error))
	})

	t.Run("setup failure", func(t *testing.T) {
		exec := newDemoExecutor(t, failing)
		s := session.NewManager().Create(session.Request{Kind: session.KindStock, Subject: "AAPL", Exchange: "US"})

		result := exec.Execute(context.Background(), s)
		assert.Equal(t, session.StatusError, result.Status)
		var setupErr *research.SetupError
		assert.ErrorAs(t, result.Error, &setupErr)
	})

	t.Run("deadline", func(t *testing.T) {
		exec := newDemoExecutor(t, research.NoToolServers)
		s := session.NewManager().Create(session.Request{Kind: session.KindStock, Subject: "AAPL", Exchange: "US"})
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		result := exec.Execute(ctx, s)
		assert.Equal(t, session.StatusTimedOut, result.Status)
	})

	t.Run("unknown kind", func(t *testing.T) {
		exec := newDemoExecutor(t, research.NoToolServers)
		s := session.NewManager().Create(session.Request{Kind: "bond", Subject: "X"})

		result := exec.Execute(context.Background(), s)
		assert.Equal(t, session.StatusError, result.Status)
		assert.EqualError(t, result.Error, `unknown research type "bond"`)
	})
}

func TestResearchExecutor_ThroughPool(t *testing.T) {
	pool := startPool(t, testQueueConfig(), newDemoExecutor(t, research.NoToolServers))
	s := session.NewManager().Create(session.Request{Kind: session.KindStock, Subject: "NVDA", Exchange: "US"})
	require.NoError(t, pool.Submit(s))

	last := waitTerminal(t, s)
	require.Equal(t, events.EventTypeComplete, last.Type, "error: %s", last.Error)
	bundle, ok := last.Report.(*research.ReportBundle)
	require.True(t, ok)
	assert.Equal(t, "NVDA", bundle.Metadata.Symbol)
}
