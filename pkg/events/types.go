// Package events carries research progress from a running session to its
// subscribers.
//
// Every session owns one Channel: an append-only, ordered log of
// ProgressEvents that ends with exactly one terminal event (complete, error
// or cancelled). Subscribers read the log through a cursor, so a late or
// reconnecting consumer replays what it missed before it starts waiting.
//
// Two transports sit on top of the log:
//
//	SSE        GET /research/progress/:id, one Subscription per request
//	WebSocket  GET /ws, subscribe/unsubscribe on "session:{id}" channels
//
// Keepalive and connected events are synthesized per subscriber and never
// enter the log.
package events

import "time"

// Event types.
const (
	EventTypeConnected = "connected"
	EventTypeProgress  = "progress"
	EventTypeKeepalive = "keepalive"

	// Terminal types; exactly one of these ends every channel.
	EventTypeComplete  = "complete"
	EventTypeError     = "error"
	EventTypeCancelled = "cancelled"
)

// ProgressEvent is one entry in a session's progress stream.
type ProgressEvent struct {
	// ID is the 1-based position in the channel log. Synthesized events
	// (connected, keepalive) have no ID.
	ID        int       `json:"id,omitempty"`
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Report    any       `json:"report,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// IsTerminal reports whether the event ends its session's stream.
func (e ProgressEvent) IsTerminal() bool {
	return IsTerminalType(e.Type)
}

// IsTerminalType reports whether t is a terminal event type.
func IsTerminalType(t string) bool {
	switch t {
	case EventTypeComplete, EventTypeError, EventTypeCancelled:
		return true
	}
	return false
}

// SessionChannel returns the WebSocket channel name for a session's events.
// Format: "session:{session_id}"
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "ping"
	Channel     string `json:"channel,omitempty"`       // Channel name (e.g., "session:stock_AAPL_1700000000_1a2b3c4d")
	LastEventID *int   `json:"last_event_id,omitempty"` // Resume after this event
}
