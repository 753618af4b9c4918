package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/equityresearch/pkg/session"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker is a single queue worker that takes sessions off the pool queue and
// runs them one at a time.
type Worker struct {
	id       string
	pool     *WorkerPool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu                sync.RWMutex
	status            WorkerStatus
	currentSessionID  string
	current           *session.Session
	sessionsProcessed int
	lastActivity      time.Time
}

// NewWorker creates a new queue worker.
func NewWorker(id string, pool *WorkerPool) *Worker {
	return &Worker{
		id:           id,
		pool:         pool,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                w.id,
		Status:            w.status,
		CurrentSessionID:  w.currentSessionID,
		SessionsProcessed: w.sessionsProcessed,
		LastActivity:      w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		// Stop takes priority over queued work.
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
		}

		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		case s := <-w.pool.jobs:
			w.process(ctx, s)
		}
	}
}

// process runs one session from queued to its terminal state.
func (w *Worker) process(ctx context.Context, s *session.Session) {
	log := slog.With("session_id", s.ID, "worker_id", w.id)

	if !s.MarkRunning() {
		// Cancelled while waiting in the queue.
		log.Debug("Skipping session no longer queued", "status", s.Status())
		return
	}
	log.Info("Session started", "kind", s.Request.Kind, "subject", s.Request.Subject)
	w.pool.metrics.SessionStarted(string(s.Request.Kind))

	w.setStatus(WorkerStatusWorking, s.ID)
	w.setCurrent(s)
	defer func() {
		w.setCurrent(nil)
		w.setStatus(WorkerStatusIdle, "")
	}()

	sessionCtx, cancelSession := context.WithTimeout(ctx, w.pool.config.SessionTimeout)
	defer cancelSession()

	start := time.Now()
	result := w.execute(sessionCtx, s)
	result = w.normalizeResult(sessionCtx, result)

	// The session context may be done by now; finish never uses it.
	w.pool.finish(s, result, time.Since(start))

	w.mu.Lock()
	w.sessionsProcessed++
	w.mu.Unlock()
}

// execute calls the executor, turning a panic into an error result.
func (w *Worker) execute(ctx context.Context, s *session.Session) (result *ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Session executor panicked", "session_id", s.ID, "panic", r)
			result = &ExecutionResult{
				Status: session.StatusError,
				Error:  fmt.Errorf("research failed: %v", r),
			}
		}
	}()
	return w.pool.sessionExecutor.Execute(ctx, s)
}

// normalizeResult fills in a terminal status when the executor returned
// nothing usable.
func (w *Worker) normalizeResult(ctx context.Context, result *ExecutionResult) *ExecutionResult {
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)

	if result == nil || result.Status == "" || !result.Status.IsTerminal() {
		switch {
		case timedOut:
			return w.timedOut()
		case errors.Is(ctx.Err(), context.Canceled):
			return &ExecutionResult{Status: session.StatusError, Error: errors.New("research interrupted: service shutting down")}
		default:
			return &ExecutionResult{Status: session.StatusError, Error: errors.New("executor returned no result")}
		}
	}

	if result.Status == session.StatusTimedOut || (result.Status == session.StatusError && timedOut) {
		return w.timedOut()
	}
	return result
}

func (w *Worker) timedOut() *ExecutionResult {
	return &ExecutionResult{
		Status: session.StatusTimedOut,
		Error:  fmt.Errorf("research timed out after %v", w.pool.config.SessionTimeout),
	}
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentSessionID = sessionID
	w.lastActivity = time.Now()
}

func (w *Worker) setCurrent(s *session.Session) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = s
}

func (w *Worker) currentSession() *session.Session {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}
