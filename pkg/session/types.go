package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codeready-toolchain/equityresearch/pkg/events"
)

// Kind is the research pipeline a session runs.
type Kind string

const (
	KindStock  Kind = "stock"
	KindSector Kind = "sector"
)

// Status represents the current state of a session
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
	StatusTimedOut  Status = "timed_out"
)

// Reported maps a status onto the set exposed to clients. A timeout is an
// error there; the distinction survives only in logs and metrics.
func (s Status) Reported() Status {
	if s == StatusTimedOut {
		return StatusError
	}
	return s
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusError, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

// ErrAlreadyFinished is returned by Finish after the session has ended.
var ErrAlreadyFinished = errors.New("session already finished")

// Request describes the research a session performs.
type Request struct {
	Kind Kind
	// Subject is the stock symbol or the sector name.
	Subject      string
	Exchange     string
	NumCompanies int
	Owner        string
}

// Session is one research run: its request, lifecycle status, progress
// channel and cancellation flag.
//
// Session implements research.Tracker.
type Session struct {
	ID        string
	Request   Request
	CreatedAt time.Time

	channel    *events.Channel
	cancelCh   chan struct{}
	cancelOnce sync.Once
	now        func() time.Time

	mu         sync.RWMutex // Protects the fields below
	status     Status
	updatedAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
	errMsg     string
}

// Snapshot is a point-in-time copy of a session for reading.
type Snapshot struct {
	ID           string     `json:"session_id"`
	Kind         Kind       `json:"type"`
	Subject      string     `json:"subject"`
	Exchange     string     `json:"exchange"`
	NumCompanies int        `json:"num_companies,omitempty"`
	Owner        string     `json:"owner,omitempty"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	Events       int        `json:"events"`
}

// Channel returns the session's progress channel.
func (s *Session) Channel() *events.Channel {
	return s.channel
}

// Progress publishes a progress event on the session's channel.
func (s *Session) Progress(message, agent string) {
	s.channel.Progress(message, agent)
}

// RequestCancel sets the cancellation flag. It returns false when the
// session has already finished; repeated requests are harmless.
func (s *Session) RequestCancel() bool {
	s.mu.RLock()
	finished := s.status.IsTerminal()
	s.mu.RUnlock()
	if finished {
		return false
	}
	s.cancelOnce.Do(func() { close(s.cancelCh) })
	return true
}

// Cancelled reports whether cancellation was requested.
func (s *Session) Cancelled() bool {
	select {
	case <-s.cancelCh:
		return true
	default:
		return false
	}
}

// CancelRequested is closed once cancellation is requested.
func (s *Session) CancelRequested() <-chan struct{} {
	return s.cancelCh
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// MarkRunning moves a queued session to running. It returns false if the
// session is no longer queued.
func (s *Session) MarkRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusQueued {
		return false
	}
	now := s.now()
	s.status = StatusRunning
	s.startedAt = now
	s.updatedAt = now
	return true
}

// Finish records the final status and publishes the terminal event. Only
// the first call has any effect; later calls return ErrAlreadyFinished.
func (s *Session) Finish(status Status, evt events.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishLocked(status, evt)
}

// FinishQueued finishes the session only while no worker has picked it up.
func (s *Session) FinishQueued(status Status, evt events.ProgressEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusQueued {
		return false
	}
	return s.finishLocked(status, evt) == nil
}

func (s *Session) finishLocked(status Status, evt events.ProgressEvent) error {
	if s.status.IsTerminal() {
		return ErrAlreadyFinished
	}
	if !evt.IsTerminal() {
		return fmt.Errorf("finish requires a terminal event, got %q", evt.Type)
	}

	if _, err := s.channel.Publish(evt); err != nil {
		return err
	}
	now := s.now()
	s.status = status
	s.updatedAt = now
	s.finishedAt = now
	s.errMsg = evt.Error
	return nil
}

// FinishedAt returns when the session finished, or the zero time.
func (s *Session) FinishedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finishedAt
}

// Snapshot creates a safe copy of the session for reading
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:           s.ID,
		Kind:         s.Request.Kind,
		Subject:      s.Request.Subject,
		Exchange:     s.Request.Exchange,
		NumCompanies: s.Request.NumCompanies,
		Owner:        s.Request.Owner,
		Status:       s.status.Reported(),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.updatedAt,
		Error:        s.errMsg,
		Events:       s.channel.Len(),
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	if !s.finishedAt.IsZero() {
		t := s.finishedAt
		snap.FinishedAt = &t
	}
	return snap
}
