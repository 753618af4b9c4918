package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

var (
	// ErrChannelClosed is returned once a channel has been cleaned up.
	ErrChannelClosed = errors.New("progress channel closed")

	// ErrTerminated is returned when publishing after the terminal event.
	ErrTerminated = errors.New("progress channel already terminated")
)

// Channel is the ordered progress log of one session.
//
// Publishing never blocks: events are appended to the log and every waiting
// subscriber is woken. The log is kept until Close so that subscribers may
// attach at any time and replay it.
type Channel struct {
	sessionID string
	now       func() time.Time

	mu         sync.Mutex
	events     []ProgressEvent
	wake       chan struct{}
	terminated bool
	closed     bool
	finishedAt time.Time
}

// NewChannel creates an empty channel for sessionID.
func NewChannel(sessionID string) *Channel {
	return &Channel{
		sessionID: sessionID,
		now:       time.Now,
		wake:      make(chan struct{}),
	}
}

// SessionID returns the owning session's ID.
func (c *Channel) SessionID() string {
	return c.sessionID
}

// Progress publishes a progress event. Progress after the terminal event is
// dropped.
func (c *Channel) Progress(message, agent string) {
	_, _ = c.Publish(ProgressEvent{Type: EventTypeProgress, Message: message, Agent: agent})
}

// Publish appends evt to the log, stamping its ID, session and timestamp.
// Nothing may follow a terminal event: later publishes return ErrTerminated.
func (c *Channel) Publish(evt ProgressEvent) (ProgressEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ProgressEvent{}, ErrChannelClosed
	}
	if c.terminated {
		return ProgressEvent{}, ErrTerminated
	}

	evt.ID = len(c.events) + 1
	evt.SessionID = c.sessionID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = c.now()
	}
	c.events = append(c.events, evt)
	if evt.IsTerminal() {
		c.terminated = true
		c.finishedAt = evt.Timestamp
	}

	close(c.wake)
	c.wake = make(chan struct{})
	return evt, nil
}

// Terminated reports whether the terminal event has been published, and when.
func (c *Channel) Terminated() (bool, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated, c.finishedAt
}

// Events returns a copy of the log after lastEventID.
func (c *Channel) Events(lastEventID int) []ProgressEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := clampCursor(lastEventID, len(c.events))
	return append([]ProgressEvent(nil), c.events[start:]...)
}

// Len returns the number of logged events.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Close drops the log and releases every waiting subscriber with
// ErrChannelClosed. Close is idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.events = nil
	close(c.wake)
}

// Subscribe returns a reader positioned after lastEventID (0 replays the
// whole log). keepalive is the idle window after which Next returns a
// keepalive event; zero disables keepalives. A cursor already past the
// terminal event yields only the connected event.
func (c *Channel) Subscribe(lastEventID int, keepalive time.Duration) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	cursor := clampCursor(lastEventID, len(c.events))
	return &Subscription{
		ch:        c,
		cursor:    cursor,
		keepalive: keepalive,
		done:      !c.closed && c.terminated && cursor == len(c.events),
	}
}

func clampCursor(lastEventID, n int) int {
	if lastEventID < 0 {
		return 0
	}
	if lastEventID > n {
		return n
	}
	return lastEventID
}

// Subscription reads one channel in order. It is not safe for concurrent use.
type Subscription struct {
	ch        *Channel
	cursor    int
	keepalive time.Duration
	connected bool
	done      bool
}

// Next returns the next event.
//
// The first call returns a synthesized connected event. After that it
// returns logged events in order, a keepalive when nothing arrives within
// the idle window, io.EOF once the terminal event has been returned, and
// ErrChannelClosed if the channel was cleaned up first.
func (s *Subscription) Next(ctx context.Context) (ProgressEvent, error) {
	if !s.connected {
		s.connected = true
		return ProgressEvent{
			Type:      EventTypeConnected,
			SessionID: s.ch.sessionID,
			Message:   "Connected to research stream",
			Timestamp: s.ch.now(),
		}, nil
	}
	if s.done {
		return ProgressEvent{}, io.EOF
	}

	var idle <-chan time.Time
	if s.keepalive > 0 {
		timer := time.NewTimer(s.keepalive)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		s.ch.mu.Lock()
		if s.ch.closed {
			s.ch.mu.Unlock()
			return ProgressEvent{}, ErrChannelClosed
		}
		if s.cursor < len(s.ch.events) {
			evt := s.ch.events[s.cursor]
			s.cursor++
			s.ch.mu.Unlock()
			if evt.IsTerminal() {
				s.done = true
			}
			return evt, nil
		}
		wake := s.ch.wake
		s.ch.mu.Unlock()

		select {
		case <-wake:
		case <-idle:
			return ProgressEvent{
				Type:      EventTypeKeepalive,
				SessionID: s.ch.sessionID,
				Timestamp: s.ch.now(),
			}, nil
		case <-ctx.Done():
			return ProgressEvent{}, ctx.Err()
		}
	}
}

// Cursor returns the ID of the last logged event returned.
func (s *Subscription) Cursor() int {
	return s.cursor
}
