package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/equityresearch/pkg/config"
	"github.com/codeready-toolchain/equityresearch/pkg/events"
	"github.com/codeready-toolchain/equityresearch/pkg/history"
	"github.com/codeready-toolchain/equityresearch/pkg/metrics"
	"github.com/codeready-toolchain/equityresearch/pkg/session"
)

const (
	historySaveTimeout = 10 * time.Second
	shutdownMessage    = "Research cancelled: service shutting down"
)

// WorkerPool manages a pool of queue workers fed from a bounded queue of
// accepted sessions.
type WorkerPool struct {
	config          *config.QueueConfig
	sessionExecutor SessionExecutor
	history         history.Store    // may be nil
	metrics         *metrics.Metrics // may be nil
	jobs            chan *session.Session
	workers         []*Worker
	stopCh          chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger

	mu      sync.RWMutex
	started bool
	stopped bool
}

// PoolOption customizes a WorkerPool.
type PoolOption func(*WorkerPool)

// WithHistory stores completed reports.
func WithHistory(store history.Store) PoolOption {
	return func(p *WorkerPool) { p.history = store }
}

// WithMetrics records session metrics.
func WithMetrics(m *metrics.Metrics) PoolOption {
	return func(p *WorkerPool) { p.metrics = m }
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(cfg *config.QueueConfig, executor SessionExecutor, opts ...PoolOption) *WorkerPool {
	p := &WorkerPool{
		config:          cfg,
		sessionExecutor: executor,
		jobs:            make(chan *session.Session, cfg.MaxQueuedSessions),
		workers:         make([]*Worker, 0, cfg.WorkerCount),
		stopCh:          make(chan struct{}),
		logger:          slog.Default().With("component", "queue"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start spawns worker goroutines.
// It is safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		p.logger.Warn("Worker pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true

	p.logger.Info("Starting worker pool", "worker_count", p.config.WorkerCount, "max_queued", p.config.MaxQueuedSessions)
	for i := 0; i < p.config.WorkerCount; i++ {
		worker := NewWorker(fmt.Sprintf("worker-%d", i), p)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}
}

// Submit queues a session. It never blocks: a full queue returns
// ErrQueueFull and a stopped pool ErrPoolStopped.
func (p *WorkerPool) Submit(s *session.Session) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- s:
		p.logger.Debug("Session queued", "session_id", s.ID, "queue_depth", len(p.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// Cancel requests cancellation. A session still waiting in the queue is
// finished as cancelled right away; a running one stops at its next
// checkpoint. Returns false if the session had already finished.
func (p *WorkerPool) Cancel(s *session.Session) bool {
	if !s.RequestCancel() {
		return false
	}
	if s.FinishQueued(session.StatusCancelled, cancelledEvent("Research cancelled by user")) {
		p.logger.Info("Queued session cancelled", "session_id", s.ID)
		p.metrics.SessionFinished(string(s.Request.Kind), string(session.StatusCancelled), 0, false)
	}
	return true
}

// Stop signals all workers to stop and waits for them to finish.
// Workers finish their current sessions before exiting (graceful shutdown);
// sessions still queued are finished as cancelled.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.logger.Info("Stopping worker pool gracefully", "active_sessions", p.activeSessionIDs())

	p.stopOnce.Do(func() { close(p.stopCh) })
	for _, worker := range p.workers {
		worker.Stop()
	}

	for {
		select {
		case s := <-p.jobs:
			if s.FinishQueued(session.StatusCancelled, cancelledEvent(shutdownMessage)) {
				p.metrics.SessionFinished(string(s.Request.Kind), string(session.StatusCancelled), 0, false)
			}
		default:
			p.logger.Info("Worker pool stopped gracefully")
			return
		}
	}
}

// finish delivers the terminal event, stores a completed report and records
// metrics.
func (p *WorkerPool) finish(s *session.Session, result *ExecutionResult, duration time.Duration) {
	log := p.logger.With("session_id", s.ID)

	if err := s.Finish(result.Status, TerminalEvent(result)); err != nil {
		log.Warn("Terminal event not delivered", "status", result.Status, "error", err)
	}
	p.metrics.SessionFinished(string(s.Request.Kind), string(result.Status), duration, true)

	if result.Status == session.StatusComplete && p.history != nil {
		if err := p.saveHistory(s, result.Report); err != nil {
			log.Error("Failed to save research history", "error", err)
		}
	}

	if result.Error != nil {
		log.Info("Session finished", "status", result.Status, "duration", duration, "error", result.Error)
		return
	}
	log.Info("Session finished", "status", result.Status, "duration", duration)
}

func (p *WorkerPool) saveHistory(s *session.Session, report any) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), historySaveTimeout)
	defer cancel()
	return p.history.Save(ctx, history.Record{
		ID:          s.ID,
		Owner:       s.Request.Owner,
		Kind:        string(s.Request.Kind),
		Subject:     s.Request.Subject,
		Exchange:    s.Request.Exchange,
		Report:      data,
		CreatedAt:   s.CreatedAt,
		CompletedAt: s.FinishedAt(),
	})
}

// TerminalEvent builds the event that ends a session's stream for result.
func TerminalEvent(result *ExecutionResult) events.ProgressEvent {
	switch result.Status {
	case session.StatusComplete:
		return events.ProgressEvent{Type: events.EventTypeComplete, Message: "Research complete", Report: result.Report}
	case session.StatusCancelled:
		if errors.Is(result.Error, context.Canceled) {
			return cancelledEvent(shutdownMessage)
		}
		return cancelledEvent("Research cancelled by user")
	default:
		msg := "research failed"
		if result.Error != nil {
			msg = result.Error.Error()
		}
		return events.ProgressEvent{Type: events.EventTypeError, Message: msg, Error: msg}
	}
}

func cancelledEvent(message string) events.ProgressEvent {
	return events.ProgressEvent{Type: events.EventTypeCancelled, Message: message}
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	p.mu.RLock()
	workers := append([]*Worker(nil), p.workers...)
	stopped := p.stopped
	p.mu.RUnlock()

	stats := make([]WorkerHealth, len(workers))
	active, processed := 0, 0
	for i, w := range workers {
		stats[i] = w.Health()
		if stats[i].Status == WorkerStatusWorking {
			active++
		}
		processed += stats[i].SessionsProcessed
	}

	return &PoolHealth{
		IsHealthy:         len(workers) > 0 && !stopped,
		ActiveWorkers:     active,
		TotalWorkers:      len(workers),
		QueueDepth:        len(p.jobs),
		MaxQueued:         cap(p.jobs),
		SessionsProcessed: processed,
		WorkerStats:       stats,
	}
}

// AbandonRunning finishes every session still held by a worker as cancelled
// with the shutdown message, so stream subscribers see a terminal event when
// the graceful shutdown deadline passes. The workers keep running; their
// own terminal events are dropped. Returns the abandoned session IDs.
func (p *WorkerPool) AbandonRunning() []string {
	var ids []string
	for _, w := range p.workers {
		s := w.currentSession()
		if s == nil {
			continue
		}
		s.RequestCancel()
		if err := s.Finish(session.StatusCancelled, cancelledEvent(shutdownMessage)); err != nil {
			continue
		}
		ids = append(ids, s.ID)
	}
	if len(ids) > 0 {
		p.logger.Warn("Abandoned running sessions at shutdown", "session_ids", ids)
	}
	return ids
}

// activeSessionIDs returns IDs of currently processing sessions (for logging).
func (p *WorkerPool) activeSessionIDs() []string {
	var ids []string
	for _, w := range p.workers {
		if h := w.Health(); h.CurrentSessionID != "" {
			ids = append(ids, h.CurrentSessionID)
		}
	}
	return ids
}
