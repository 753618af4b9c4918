// Package session keeps the in-memory registry of research sessions: their
// status, progress channels and cancellation flags.
package session

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/equityresearch/pkg/events"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("session not found")

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9.\-]+`)

// Manager manages sessions in memory. It is the only structure shared
// across sessions and is safe for concurrent use.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	now      func() time.Time
}

// NewManager creates a new session manager
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// NewID builds a session ID: {kind}_{subject}_{unix seconds}_{8 hex chars}.
// Characters outside [A-Za-z0-9.-] in the subject become "-".
func NewID(kind Kind, subject string, now time.Time) string {
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("%s_%s_%d_%s", kind, unsafeIDChars.ReplaceAllString(subject, "-"), now.Unix(), suffix)
}

// Create registers a queued session for req.
func (m *Manager) Create(req Request) *Session {
	now := m.now()
	id := NewID(req.Kind, req.Subject, now)

	s := &Session{
		ID:        id,
		Request:   req,
		CreatedAt: now,
		channel:   events.NewChannel(id),
		cancelCh:  make(chan struct{}),
		now:       m.now,
		status:    StatusQueued,
		updatedAt: now,
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	return s
}

// Get retrieves a session by ID
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return s, nil
}

// LookupChannel implements events.ChannelSource.
func (m *Manager) LookupChannel(sessionID string) (*events.Channel, bool) {
	s, err := m.Get(sessionID)
	if err != nil {
		return nil, false
	}
	return s.channel, true
}

// List returns snapshots of all sessions, oldest first.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	out := make([]Snapshot, 0, len(all))
	for _, s := range all {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CountByStatus returns how many registered sessions are in each reported
// status.
func (m *Manager) CountByStatus() map[Status]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[Status]int)
	for _, s := range m.sessions {
		counts[s.Status().Reported()]++
	}
	return counts
}

// Remove unregisters a session and closes its channel.
func (m *Manager) Remove(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	s.channel.Close()
	return nil
}

// RemoveExpired removes sessions that finished more than grace ago and
// returns their IDs. Running and queued sessions are never removed.
func (m *Manager) RemoveExpired(grace time.Duration) []string {
	cutoff := m.now().Add(-grace)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		finished := s.FinishedAt()
		if !finished.IsZero() && !finished.After(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		s.channel.Close()
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
