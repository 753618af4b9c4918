// Package queue runs accepted research sessions on a fixed pool of workers.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/codeready-toolchain/equityresearch/pkg/session"
)

// Sentinel errors for queue operations.
var (
	// ErrQueueFull indicates MaxQueuedSessions sessions are already waiting.
	ErrQueueFull = errors.New("research queue is full")

	// ErrPoolStopped indicates the pool no longer accepts sessions.
	ErrPoolStopped = errors.New("worker pool stopped")
)

// SessionExecutor runs one session's research pipeline.
//
// The executor streams progress through the session while it runs. The
// worker owns everything around it: the running transition, the session
// timeout, the terminal event, history and metrics.
type SessionExecutor interface {
	Execute(ctx context.Context, s *session.Session) *ExecutionResult
}

// ExecutionResult is the terminal state of a session.
type ExecutionResult struct {
	Status session.Status // complete, error, timed_out, cancelled
	Report any            // bundle to deliver (if complete)
	Error  error          // failure details (if error/timed_out)
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy         bool           `json:"is_healthy"`
	ActiveWorkers     int            `json:"active_workers"`
	TotalWorkers      int            `json:"total_workers"`
	QueueDepth        int            `json:"queue_depth"`
	MaxQueued         int            `json:"max_queued"`
	SessionsProcessed int            `json:"sessions_processed"`
	WorkerStats       []WorkerHealth `json:"worker_stats"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID                string       `json:"id"`
	Status            WorkerStatus `json:"status"`
	CurrentSessionID  string       `json:"current_session_id,omitempty"`
	SessionsProcessed int          `json:"sessions_processed"`
	LastActivity      time.Time    `json:"last_activity"`
}
