package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/equityresearch/pkg/agent"
	"github.com/codeready-toolchain/equityresearch/pkg/config"
)

// runCall records one agent invocation.
type runCall struct {
	agent    string
	prompt   string
	hasTools bool
	maxTurns int
}

// fakeRunner answers per agent name. Agents without a handler return
// "<agent> output".
type fakeRunner struct {
	mu       sync.Mutex
	calls    []runCall
	handlers map[string]func(prompt string, maxTurns int) (string, error)
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{handlers: map[string]func(string, int) (string, error){}}
}

func (r *fakeRunner) on(agentName string, h func(prompt string, maxTurns int) (string, error)) *fakeRunner {
	r.handlers[agentName] = h
	return r
}

func (r *fakeRunner) Run(_ context.Context, def agent.Definition, prompt string, tools agent.ToolExecutor, maxTurns int) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, runCall{agent: def.Name, prompt: prompt, hasTools: tools != nil, maxTurns: maxTurns})
	h := r.handlers[def.Name]
	r.mu.Unlock()
	if h != nil {
		return h(prompt, maxTurns)
	}
	return def.Name + " output", nil
}

func (r *fakeRunner) agents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.agent)
	}
	return out
}

func (r *fakeRunner) callsFor(agentName string) []runCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []runCall
	for _, c := range r.calls {
		if c.agent == agentName {
			out = append(out, c)
		}
	}
	return out
}

type progressEvent struct {
	message string
	agent   string
}

// recordingTracker stores progress and flips to cancelled when cancelOn
// matches a message.
type recordingTracker struct {
	mu        sync.Mutex
	events    []progressEvent
	cancelled bool
	cancelOn  func(message string) bool
}

func (t *recordingTracker) Progress(message, agentLabel string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, progressEvent{message: message, agent: agentLabel})
	if t.cancelOn != nil && t.cancelOn(message) {
		t.cancelled = true
	}
}

func (t *recordingTracker) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *recordingTracker) messages() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.events))
	for _, e := range t.events {
		out = append(out, e.message)
	}
	return out
}

func (t *recordingTracker) has(message string) bool {
	for _, m := range t.messages() {
		if m == message {
			return true
		}
	}
	return false
}

// fakePool counts acquisitions and closes.
type fakePool struct {
	closed int
}

func (p *fakePool) Executor(...string) agent.ToolExecutor { return agent.NewStubToolExecutor(nil) }
func (p *fakePool) Close() error                          { p.closed++; return nil }

type fakeAcquirer struct {
	mu       sync.Mutex
	requests [][]string
	pools    []*fakePool
	failOn   int // 1-based acquisition that fails; 0 = never
}

func (a *fakeAcquirer) acquire(_ context.Context, ids []string) (ToolServers, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, append([]string(nil), ids...))
	if a.failOn == len(a.requests) {
		return nil, errors.New("uvx: executable file not found in $PATH")
	}
	p := &fakePool{}
	a.pools = append(a.pools, p)
	return p, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string][]string
}

func (o *recordingObserver) StageFinished(agentName, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string][]string{}
	}
	o.outcomes[agentName] = append(o.outcomes[agentName], outcome)
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)
	return cfg
}

func newTestEngine(t *testing.T, runner agent.Runner, acq *fakeAcquirer, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewEngine(runner, testConfig(t), acq.acquire, opts...)
}

// reportText is a synthesis answer with every required heading.
func reportText(symbol string) string {
	var b strings.Builder
	for _, h := range ReportHeadings {
		b.WriteString("## " + h + "\n")
		if h == HeadingNews {
			b.WriteString("Coverage at https://news.example.com/" + symbol + ", and https://shared.example.com/a.\n\n")
			continue
		}
		b.WriteString(h + " for " + symbol + "\n\n")
	}
	return b.String()
}
