package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/equityresearch/pkg/config"
	"github.com/codeready-toolchain/equityresearch/pkg/events"
	"github.com/codeready-toolchain/equityresearch/pkg/history"
	"github.com/codeready-toolchain/equityresearch/pkg/metrics"
	"github.com/codeready-toolchain/equityresearch/pkg/queue"
	"github.com/codeready-toolchain/equityresearch/pkg/services"
	"github.com/codeready-toolchain/equityresearch/pkg/session"
)

// scriptedExecutor emits one progress event and then waits for release
// before completing with a small report.
type scriptedExecutor struct {
	release     chan struct{}
	releaseOnce sync.Once
}

func (e *scriptedExecutor) releaseAll() {
	e.releaseOnce.Do(func() { close(e.release) })
}

func (e *scriptedExecutor) Execute(ctx context.Context, s *session.Session) *queue.ExecutionResult {
	s.Progress("Starting research on "+s.Request.Subject+"...", "")
	select {
	case <-e.release:
	case <-s.CancelRequested():
		return &queue.ExecutionResult{Status: session.StatusCancelled}
	case <-ctx.Done():
		return &queue.ExecutionResult{Status: session.StatusError, Error: ctx.Err()}
	}
	return &queue.ExecutionResult{
		Status: session.StatusComplete,
		Report: map[string]any{"full_report": "# " + s.Request.Subject + " report"},
	}
}

type testEnv struct {
	server   *Server
	sessions *session.Manager
	store    *history.MemoryStore
	exec     *scriptedExecutor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg, err := config.Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	sessions := session.NewManager()
	store := history.NewMemoryStore()
	m := metrics.New()
	exec := &scriptedExecutor{release: make(chan struct{})}

	pool := queue.NewWorkerPool(&config.QueueConfig{
		WorkerCount:       1,
		MaxQueuedSessions: 4,
		SessionTimeout:    10 * time.Second,
	}, exec, queue.WithHistory(store), queue.WithMetrics(m))
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)
	t.Cleanup(exec.releaseAll) // runs before Stop so running sessions can finish

	svc := services.NewResearchService(sessions, pool, store, time.Minute)
	connManager := events.NewConnectionManager(sessions, 5*time.Second, time.Minute)
	s := NewServer(cfg, nil, svc, pool, connManager)
	s.SetMetrics(m)
	s.SetWarningsService(services.NewSystemWarningsService())
	return &testEnv{server: s, sessions: sessions, store: store, exec: exec}
}

func (env *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) start(t *testing.T, symbol, owner string) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/research/stock", `{"symbol":"`+symbol+`"}`, map[string]string{"X-Forwarded-User": owner})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp StartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.SessionID
}

func (env *testEnv) waitFinished(t *testing.T, id string) *session.Session {
	t.Helper()
	s, err := env.sessions.Get(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Status().IsTerminal() }, 5*time.Second, 10*time.Millisecond)
	return s
}

// sseFrame is one parsed Server-Sent Events frame.
type sseFrame struct {
	id    string
	event events.ProgressEvent
}

func parseSSE(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	var cur sseFrame
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "id: "):
			cur.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &cur.event))
		case line == "":
			frames = append(frames, cur)
			cur = sseFrame{}
		}
	}
	return frames
}

func TestStartStockHandler(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/research/stock", `{"symbol":" aapl ","exchange":"us"}`, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp StartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "queued", resp.Status)
	assert.Regexp(t, `^stock_AAPL_\d+_[0-9a-f]{8}$`, resp.SessionID)

	s, err := env.sessions.Get(resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "US", s.Request.Exchange)
	env.exec.releaseAll()
}

func TestStartHandlers_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		path    string
		body    string
		wantMsg string
	}{
		{"empty symbol", "/research/stock", `{"symbol":"  "}`, "Symbol is required"},
		{"missing symbol", "/research/stock", `{}`, "Symbol is required"},
		{"malformed body", "/research/stock", `{"symbol":`, "invalid request body"},
		{"empty sector", "/research/sector", `{"sector":""}`, "Sector is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantMsg, resp.Error)
		})
	}
	assert.Equal(t, 0, env.sessions.Len())
}

func TestStartSectorHandler_NormalizesCount(t *testing.T) {
	env := newTestEnv(t)

	for body, want := range map[string]int{
		`{"sector":"Technology","num_companies":3}`:      3,
		`{"sector":"Technology","num_companies":"12"}`:   10,
		`{"sector":"Technology","num_companies":"lots"}`: 5,
		`{"sector":"Technology"}`:                        5,
	} {
		rec := env.do(t, http.MethodPost, "/research/sector", body, nil)
		require.Equal(t, http.StatusAccepted, rec.Code, body)
		var resp StartResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		s, err := env.sessions.Get(resp.SessionID)
		require.NoError(t, err)
		assert.Equal(t, want, s.Request.NumCompanies, body)
		assert.Equal(t, session.KindSector, s.Request.Kind)
	}
}

func TestProgressHandler_StreamsUntilTerminal(t *testing.T) {
	env := newTestEnv(t)
	id := env.start(t, "MSFT", "alice")
	env.exec.releaseAll()
	env.waitFinished(t, id)

	rec := env.do(t, http.MethodGet, "/research/progress/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	frames := parseSSE(t, rec.Body.String())
	require.Len(t, frames, 3)
	assert.Equal(t, events.EventTypeConnected, frames[0].event.Type)
	assert.Empty(t, frames[0].id)
	assert.Equal(t, events.EventTypeProgress, frames[1].event.Type)
	assert.Equal(t, "Starting research on MSFT...", frames[1].event.Message)
	assert.Equal(t, "1", frames[1].id)
	assert.Equal(t, events.EventTypeComplete, frames[2].event.Type)
	assert.Equal(t, "2", frames[2].id)
	assert.Equal(t, map[string]any{"full_report": "# MSFT report"}, frames[2].event.Report)
}

func TestProgressHandler_ResumesAfterLastEventID(t *testing.T) {
	env := newTestEnv(t)
	id := env.start(t, "MSFT", "")
	env.exec.releaseAll()
	env.waitFinished(t, id)

	rec := env.do(t, http.MethodGet, "/research/progress/"+id, "", map[string]string{"Last-Event-ID": "1"})
	frames := parseSSE(t, rec.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, events.EventTypeConnected, frames[0].event.Type)
	assert.Equal(t, events.EventTypeComplete, frames[1].event.Type)

	rec = env.do(t, http.MethodGet, "/research/progress/"+id+"?last_event_id=2", "", nil)
	frames = parseSSE(t, rec.Body.String())
	require.Len(t, frames, 1)
	assert.Equal(t, events.EventTypeConnected, frames[0].event.Type)
}

func TestProgressHandler_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/research/progress/stock_NOPE_1_deadbeef", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"invalid session"}`, rec.Body.String())
}

func TestCancelAndGetHandlers(t *testing.T) {
	env := newTestEnv(t)
	id := env.start(t, "NVDA", "")

	rec := env.do(t, http.MethodPost, "/research/"+id+"/cancel", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp CancelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.SessionID)
	assert.Equal(t, "Cancellation requested", resp.Message)

	s := env.waitFinished(t, id)
	assert.Equal(t, session.StatusCancelled, s.Status())

	rec = env.do(t, http.MethodPost, "/research/"+id+"/cancel", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Session already finished", resp.Message)

	rec = env.do(t, http.MethodGet, "/research/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "cancelled", snap["status"])
	assert.Equal(t, "NVDA", snap["subject"])

	rec = env.do(t, http.MethodPost, "/research/stock_NOPE_1_deadbeef/cancel", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodGet, "/research/stock_NOPE_1_deadbeef", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryHandlers(t *testing.T) {
	env := newTestEnv(t)
	id := env.start(t, "AAPL", "alice")
	env.exec.releaseAll()
	env.waitFinished(t, id)
	require.Eventually(t, func() bool {
		_, err := env.store.Get(context.Background(), "alice", id)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	alice := map[string]string{"X-Forwarded-User": "alice"}

	rec := env.do(t, http.MethodGet, "/history", "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	var list HistoryListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, id, list.Reports[0].ID)
	assert.Equal(t, "AAPL", list.Reports[0].Subject)

	rec = env.do(t, http.MethodGet, "/history?q=report&limit=5", "", alice)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rec = env.do(t, http.MethodGet, "/history/"+id, "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	var got history.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.JSONEq(t, `{"full_report":"# AAPL report"}`, string(got.Report))

	// other owners see nothing
	rec = env.do(t, http.MethodGet, "/history", "", map[string]string{"X-Forwarded-User": "bob"})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 0, list.Count)
	assert.NotNil(t, list.Reports)
	rec = env.do(t, http.MethodGet, "/history/"+id, "", map[string]string{"X-Forwarded-User": "bob"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/history?limit=abc", "", alice)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, healthStatusHealthy, resp.Status)
	assert.NotEmpty(t, resp.Version)
	assert.Equal(t, healthStatusHealthy, resp.Checks["database"].Status)
	assert.Equal(t, healthStatusHealthy, resp.Checks["worker_pool"].Status)
	require.NotNil(t, resp.WorkerPool)
	assert.Equal(t, 1, resp.WorkerPool.TotalWorkers)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestMetricsHandler(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "equityresearch_active_sessions")
}

func TestSystemHandlers(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/system/agents", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var agents AgentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agents))
	names := make([]string, 0, len(agents.Agents))
	for _, a := range agents.Agents {
		names = append(names, a.Name)
	}
	assert.Contains(t, names, config.AgentFinancial)
	assert.Contains(t, names, config.AgentPortfolio)

	rec = env.do(t, http.MethodGet, "/system/tool-servers", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"servers":[]}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/system/warnings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"warnings":[]}`, rec.Body.String())
}
