package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/equityresearch/pkg/config"
	"github.com/codeready-toolchain/equityresearch/pkg/events"
	"github.com/codeready-toolchain/equityresearch/pkg/history"
	"github.com/codeready-toolchain/equityresearch/pkg/metrics"
	"github.com/codeready-toolchain/equityresearch/pkg/session"
)

// executorFunc adapts a function to SessionExecutor.
type executorFunc func(ctx context.Context, s *session.Session) *ExecutionResult

func (f executorFunc) Execute(ctx context.Context, s *session.Session) *ExecutionResult {
	return f(ctx, s)
}

func completeWith(report any) executorFunc {
	return func(_ context.Context, s *session.Session) *ExecutionResult {
		s.Progress("working", "Analyst")
		return &ExecutionResult{Status: session.StatusComplete, Report: report}
	}
}

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		WorkerCount:             2,
		MaxQueuedSessions:       4,
		SessionTimeout:          5 * time.Second,
		GracefulShutdownTimeout: 5 * time.Second,
	}
}

func startPool(t *testing.T, cfg *config.QueueConfig, exec SessionExecutor, opts ...PoolOption) *WorkerPool {
	t.Helper()
	pool := NewWorkerPool(cfg, exec, opts...)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)
	return pool
}

func waitTerminal(t *testing.T, s *session.Session) events.ProgressEvent {
	t.Helper()
	require.Eventually(t, func() bool { return s.Status().IsTerminal() }, 5*time.Second, 10*time.Millisecond)
	evts := s.Channel().Events(0)
	require.NotEmpty(t, evts)
	last := evts[len(evts)-1]
	require.True(t, last.IsTerminal())
	return last
}

func TestPool_CompletesSessionAndStoresHistory(t *testing.T) {
	store := history.NewMemoryStore()
	report := map[string]string{"full_report": "# AAPL"}
	pool := startPool(t, testQueueConfig(), completeWith(report), WithHistory(store), WithMetrics(metrics.New()))

	sessions := session.NewManager()
	s := sessions.Create(session.Request{Kind: session.KindStock, Subject: "AAPL", Exchange: "US", Owner: "alice"})
	require.NoError(t, pool.Submit(s))

	last := waitTerminal(t, s)
	assert.Equal(t, session.StatusComplete, s.Status())
	assert.Equal(t, events.EventTypeComplete, last.Type)
	assert.Equal(t, report, last.Report)

	evts := s.Channel().Events(0)
	require.Len(t, evts, 2)
	assert.Equal(t, "working", evts[0].Message)

	rec, err := store.Get(context.Background(), "alice", s.ID)
	require.NoError(t, err)
	assert.Equal(t, "stock", rec.Kind)
	assert.Equal(t, "AAPL", rec.Subject)
	var stored map[string]string
	require.NoError(t, json.Unmarshal(rec.Report, &stored))
	assert.Equal(t, report, stored)

	require.Eventually(t, func() bool { return pool.Health().SessionsProcessed == 1 }, time.Second, 10*time.Millisecond)
}

func TestPool_FailedSessionIsNotStored(t *testing.T) {
	store := history.NewMemoryStore()
	pool := startPool(t, testQueueConfig(), executorFunc(func(context.Context, *session.Session) *ExecutionResult {
		return &ExecutionResult{Status: session.StatusError, Error: errors.New("Failed to connect to MCP servers")}
	}), WithHistory(store))

	s := session.NewManager().Create(session.Request{Kind: session.KindStock, Subject: "AAPL"})
	require.NoError(t, pool.Submit(s))

	last := waitTerminal(t, s)
	assert.Equal(t, session.StatusError, s.Status())
	assert.Equal(t, events.EventTypeError, last.Type)
	assert.Equal(t, "Failed to connect to MCP servers", last.Error)

	_, err := store.Get(context.Background(), "", s.ID)
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestPool_QueueFull(t *testing.T) {
	cfg := testQueueConfig()
	cfg.MaxQueuedSessions = 1
	pool := NewWorkerPool(cfg, completeWith(nil)) // not started

	sessions := session.NewManager()
	require.NoError(t, pool.Submit(sessions.Create(session.Request{Kind: session.KindStock, Subject: "AAPL"})))
	err := pool.Submit(sessions.Create(session.Request{Kind: session.KindStock, Subject: "MSFT"}))
	assert.ErrorIs(t, err, ErrQueueFull)

	assert.Equal(t, 1, pool.Health().QueueDepth)
	assert.Equal(t, 1, pool.Health().MaxQueued)
}

func TestPool_CancelQueuedSession(t *testing.T) {
	executed := make(chan string, 1)
	pool := NewWorkerPool(testQueueConfig(), executorFunc(func(_ context.Context, s *session.Session) *ExecutionResult {
		executed <- s.ID
		return &ExecutionResult{Status: session.StatusComplete}
	}))

	s := session.NewManager().Create(session.Request{Kind: session.KindStock, Subject: "AAPL"})
	require.NoError(t, pool.Submit(s))

	assert.True(t, pool.Cancel(s))
	assert.Equal(t, session.StatusCancelled, s.Status())
	evts := s.Channel().Events(0)
	require.Len(t, evts, 1)
	assert.Equal(t, events.EventTypeCancelled, evts[0].Type)

	// Already terminal: cancel is a no-op.
	assert.False(t, pool.Cancel(s))

	pool.Start(context.Background())
	defer pool.Stop()
	require.Eventually(t, func() bool { return pool.Health().QueueDepth == 0 }, time.Second, 10*time.Millisecond)

	select {
	case id := <-executed:
		t.Fatalf("cancelled session %s was executed", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPool_CancelRunningSession(t *testing.T) {
	started := make(chan struct{})
	pool := startPool(t, testQueueConfig(), executorFunc(func(ctx context.Context, s *session.Session) *ExecutionResult {
		close(started)
		select {
		case <-s.CancelRequested():
			return &ExecutionResult{Status: session.StatusCancelled}
		case <-ctx.Done():
			return &ExecutionResult{Status: session.StatusError, Error: ctx.Err()}
		}
	}))

	s := session.NewManager().Create(session.Request{Kind: session.KindSector, Subject: "Technology", NumCompanies: 3})
	require.NoError(t, pool.Submit(s))
	<-started

	assert.True(t, pool.Cancel(s))
	last := waitTerminal(t, s)
	assert.Equal(t, session.StatusCancelled, s.Status())
	assert.Equal(t, events.EventTypeCancelled, last.Type)
	assert.Equal(t, "Research cancelled by user", last.Message)
}

func TestPool_SessionTimeout(t *testing.T) {
	cfg := testQueueConfig()
	cfg.SessionTimeout = 50 * time.Millisecond
	pool := startPool(t, cfg, executorFunc(func(ctx context.Context, _ *session.Session) *ExecutionResult {
		<-ctx.Done()
		return &ExecutionResult{Status: session.StatusError, Error: ctx.Err()}
	}))

	s := session.NewManager().Create(session.Request{Kind: session.KindStock, Subject: "AAPL"})
	require.NoError(t, pool.Submit(s))

	last := waitTerminal(t, s)
	assert.Equal(t, session.StatusTimedOut, s.Status())
	assert.Equal(t, events.EventTypeError, last.Type)
	assert.Equal(t, "research timed out after 50ms", last.Error)
}

func TestPool_ExecutorMisbehaviour(t *testing.T) {
	tests := []struct {
		name    string
		exec    executorFunc
		wantErr string
	}{
		{
			name:    "panic",
			exec:    func(context.Context, *session.Session) *ExecutionResult { panic("boom") },
			wantErr: "research failed: boom",
		},
		{
			name:    "nil result",
			exec:    func(context.Context, *session.Session) *ExecutionResult { return nil },
			wantErr: "executor returned no result",
		},
		{
			name: "non-terminal status",
			exec: func(context.Context, *session.Session) *ExecutionResult {
				return &ExecutionResult{Status: session.StatusRunning}
			},
			wantErr: "executor returned no result",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := startPool(t, testQueueConfig(), tt.exec)
			s := session.NewManager().Create(session.Request{Kind: session.KindStock, Subject: "AAPL"})
			require.NoError(t, pool.Submit(s))

			last := waitTerminal(t, s)
			assert.Equal(t, session.StatusError, s.Status())
			assert.Equal(t, tt.wantErr, last.Error)
		})
	}
}

func TestPool_StopCancelsQueuedSessions(t *testing.T) {
	pool := NewWorkerPool(testQueueConfig(), completeWith(nil))
	sessions := session.NewManager()
	queued := sessions.Create(session.Request{Kind: session.KindStock, Subject: "AAPL"})
	require.NoError(t, pool.Submit(queued))

	pool.Stop()
	pool.Stop() // idempotent

	assert.Equal(t, session.StatusCancelled, queued.Status())
	evts := queued.Channel().Events(0)
	require.Len(t, evts, 1)
	assert.Equal(t, "Research cancelled: service shutting down", evts[0].Message)

	err := pool.Submit(sessions.Create(session.Request{Kind: session.KindStock, Subject: "MSFT"}))
	assert.ErrorIs(t, err, ErrPoolStopped)
	assert.False(t, pool.Health().IsHealthy)
}

func TestPool_StopWaitsForRunningSession(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	pool := NewWorkerPool(testQueueConfig(), executorFunc(func(context.Context, *session.Session) *ExecutionResult {
		close(started)
		<-release
		return &ExecutionResult{Status: session.StatusComplete}
	}))
	pool.Start(context.Background())

	s := session.NewManager().Create(session.Request{Kind: session.KindStock, Subject: "AAPL"})
	require.NoError(t, pool.Submit(s))
	<-started

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a session was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-stopped
	assert.Equal(t, session.StatusComplete, s.Status())
}

func TestPool_AbandonRunningAtShutdownDeadline(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	pool := NewWorkerPool(testQueueConfig(), executorFunc(func(context.Context, *session.Session) *ExecutionResult {
		close(started)
		<-release
		return &ExecutionResult{Status: session.StatusComplete}
	}))
	pool.Start(context.Background())

	s := session.NewManager().Create(session.Request{Kind: session.KindStock, Subject: "AAPL"})
	require.NoError(t, pool.Submit(s))
	<-started

	assert.Equal(t, []string{s.ID}, pool.AbandonRunning())
	assert.Equal(t, session.StatusCancelled, s.Status())
	assert.True(t, s.Cancelled())

	evts := s.Channel().Events(0)
	require.Len(t, evts, 1)
	assert.Equal(t, events.EventTypeCancelled, evts[0].Type)
	assert.Equal(t, "Research cancelled: service shutting down", evts[0].Message)

	// Already finished sessions are not reported twice.
	assert.Empty(t, pool.AbandonRunning())

	// The worker's late result does not replace the shutdown event.
	close(release)
	pool.Stop()
	assert.Equal(t, session.StatusCancelled, s.Status())
	assert.Len(t, s.Channel().Events(0), 1)
	assert.Empty(t, pool.AbandonRunning())
}

func TestPool_Health(t *testing.T) {
	pool := NewWorkerPool(testQueueConfig(), completeWith(nil))
	h := pool.Health()
	assert.False(t, h.IsHealthy)
	assert.Equal(t, 0, h.TotalWorkers)

	pool.Start(context.Background())
	pool.Start(context.Background()) // duplicate start is ignored
	defer pool.Stop()

	h = pool.Health()
	assert.True(t, h.IsHealthy)
	assert.Equal(t, 2, h.TotalWorkers)
	assert.Equal(t, 4, h.MaxQueued)
	require.Len(t, h.WorkerStats, 2)
	assert.Equal(t, "worker-0", h.WorkerStats[0].ID)
}
