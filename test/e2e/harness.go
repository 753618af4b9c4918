// Package e2e provides end-to-end test infrastructure for the research
// service: a real HTTP server, worker pool and research engine driven by
// the offline demo LLM.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/equityresearch/pkg/agent"
	"github.com/codeready-toolchain/equityresearch/pkg/api"
	"github.com/codeready-toolchain/equityresearch/pkg/config"
	"github.com/codeready-toolchain/equityresearch/pkg/database"
	"github.com/codeready-toolchain/equityresearch/pkg/events"
	"github.com/codeready-toolchain/equityresearch/pkg/history"
	"github.com/codeready-toolchain/equityresearch/pkg/metrics"
	"github.com/codeready-toolchain/equityresearch/pkg/queue"
	"github.com/codeready-toolchain/equityresearch/pkg/research"
	"github.com/codeready-toolchain/equityresearch/pkg/services"
	"github.com/codeready-toolchain/equityresearch/pkg/session"
	testdb "github.com/codeready-toolchain/equityresearch/test/database"
)

// TestApp boots a complete research service for e2e testing.
type TestApp struct {
	Config   *config.Config
	DBClient *database.Client // nil unless WithPostgresHistory
	Store    history.Store

	Sessions    *session.Manager
	ConnManager *events.ConnectionManager
	WorkerPool  *queue.WorkerPool
	Server      *api.Server

	// Runtime
	BaseURL string // e.g. "http://127.0.0.1:54321"
	WSURL   string // e.g. "ws://127.0.0.1:54321/ws"

	t *testing.T
}

type testAppConfig struct {
	llmDelay       time.Duration
	workerCount    int
	maxQueued      int
	sessionTimeout time.Duration
	postgres       bool
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithLLMDelay paces every demo LLM reply, leaving time to observe or
// cancel a running session.
func WithLLMDelay(d time.Duration) TestAppOption {
	return func(c *testAppConfig) { c.llmDelay = d }
}

// WithWorkers sets the worker count and queue capacity.
func WithWorkers(workers, maxQueued int) TestAppOption {
	return func(c *testAppConfig) {
		c.workerCount = workers
		c.maxQueued = maxQueued
	}
}

// WithSessionTimeout caps each session's run time.
func WithSessionTimeout(d time.Duration) TestAppOption {
	return func(c *testAppConfig) { c.sessionTimeout = d }
}

// WithPostgresHistory stores reports in a fresh PostgreSQL schema instead
// of memory. The test is skipped when no database is available.
func WithPostgresHistory() TestAppOption {
	return func(c *testAppConfig) { c.postgres = true }
}

// NewTestApp starts the service on a random local port. Everything is torn
// down when the test ends.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{
		workerCount:    1,
		maxQueued:      8,
		sessionTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(tc)
	}

	// 1. Config: built-ins only, no tool servers are contacted.
	cfg, err := config.Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)
	cfg.Queue.WorkerCount = tc.workerCount
	cfg.Queue.MaxQueuedSessions = tc.maxQueued
	cfg.Queue.SessionTimeout = tc.sessionTimeout
	cfg.Queue.GracefulShutdownTimeout = 10 * time.Second
	cfg.Streaming.KeepaliveInterval = time.Minute

	// 2. History store.
	var (
		dbClient *database.Client
		store    history.Store
	)
	if tc.postgres {
		dbClient = testdb.NewTestClient(t)
		store = history.NewPostgresStore(dbClient)
	} else {
		store = history.NewMemoryStore()
	}

	// 3. Research engine on the demo LLM.
	m := metrics.New()
	runner := agent.NewToolLoopRunner(agent.NewDemoClient(tc.llmDelay), cfg.LLM.MaxToolResultChars)
	engine := research.NewEngine(runner, cfg, research.NoToolServers, research.WithObserver(m))

	// 4. Sessions, streaming and workers.
	sessions := session.NewManager()
	connManager := events.NewConnectionManager(sessions, 5*time.Second, cfg.Streaming.KeepaliveInterval)
	workerPool := queue.NewWorkerPool(cfg.Queue, queue.NewResearchExecutor(engine),
		queue.WithHistory(store), queue.WithMetrics(m))
	workerPool.Start(context.Background())

	researchService := services.NewResearchService(sessions, workerPool, store, cfg.Streaming.KeepaliveInterval)

	// 5. HTTP server on a random port.
	server := api.NewServer(cfg, dbClient, researchService, workerPool, connManager)
	server.SetWarningsService(services.NewSystemWarningsService())
	server.SetMetrics(m)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = server.StartWithListener(ln)
	}()

	addr := ln.Addr().String()
	app := &TestApp{
		Config:      cfg,
		DBClient:    dbClient,
		Store:       store,
		Sessions:    sessions,
		ConnManager: connManager,
		WorkerPool:  workerPool,
		Server:      server,
		BaseURL:     fmt.Sprintf("http://%s", addr),
		WSURL:       fmt.Sprintf("ws://%s/ws", addr),
		t:           t,
	}

	t.Cleanup(func() {
		workerPool.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})
	return app
}

// Do sends a request with an optional JSON body and returns the status code
// and body.
func (app *TestApp) Do(method, path, body string, headers map[string]string) (int, []byte) {
	app.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, app.BaseURL+path, r)
	require.NoError(app.t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(app.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(app.t, err)
	return resp.StatusCode, data
}

// StartStock submits single-company research and returns the session ID.
func (app *TestApp) StartStock(symbol, owner string) string {
	app.t.Helper()
	return app.start("/research/stock", fmt.Sprintf(`{"symbol":%q}`, symbol), owner)
}

// StartSector submits sector research and returns the session ID.
func (app *TestApp) StartSector(sector string, companies int, owner string) string {
	app.t.Helper()
	return app.start("/research/sector", fmt.Sprintf(`{"sector":%q,"num_companies":%d}`, sector, companies), owner)
}

func (app *TestApp) start(path, body, owner string) string {
	app.t.Helper()
	var headers map[string]string
	if owner != "" {
		headers = map[string]string{"X-Forwarded-User": owner}
	}
	code, data := app.Do(http.MethodPost, path, body, headers)
	require.Equal(app.t, http.StatusAccepted, code, string(data))
	var resp api.StartResponse
	require.NoError(app.t, json.Unmarshal(data, &resp))
	require.NotEmpty(app.t, resp.SessionID)
	return resp.SessionID
}

// GetSession fetches the session snapshot over HTTP.
func (app *TestApp) GetSession(id string) session.Snapshot {
	app.t.Helper()
	code, data := app.Do(http.MethodGet, "/research/"+id, "", nil)
	require.Equal(app.t, http.StatusOK, code, string(data))
	var snap session.Snapshot
	require.NoError(app.t, json.Unmarshal(data, &snap))
	return snap
}

// WaitForStatus polls the session until it reaches a terminal status and
// returns the final snapshot.
func (app *TestApp) WaitForStatus(id string, want session.Status, timeout time.Duration) session.Snapshot {
	app.t.Helper()
	var snap session.Snapshot
	require.Eventually(app.t, func() bool {
		resp, err := http.Get(app.BaseURL + "/research/" + id)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var cur session.Snapshot
		if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&cur) != nil {
			return false
		}
		snap = cur
		return snap.Status.IsTerminal()
	}, timeout, 20*time.Millisecond, "session %s never finished", id)
	require.Equal(app.t, want, snap.Status, "session %s: %s", id, snap.Error)
	return snap
}
