package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ChannelSource resolves a session ID to its progress channel. Implemented
// by the session manager.
type ChannelSource interface {
	LookupChannel(sessionID string) (*Channel, bool)
}

// ConnectionManager manages WebSocket connections and channel subscriptions.
// Each subscription forwards one session's Channel to the connection until
// the terminal event, an unsubscribe or disconnect.
type ConnectionManager struct {
	// Active connections: connection_id → *Connection
	connections map[string]*Connection
	mu          sync.RWMutex

	// Channel subscriptions: channel → set of connection_ids
	channels  map[string]map[string]bool
	channelMu sync.RWMutex

	source ChannelSource

	// Write timeout for WebSocket sends
	writeTimeout time.Duration
	// Idle window before a keepalive is forwarded
	keepalive time.Duration

	logger *slog.Logger
}

// Connection represents a single WebSocket client.
//
// subscriptions is only touched by the goroutine running HandleConnection
// (the read loop and its deferred cleanup). Forwarders never access it.
type Connection struct {
	ID            string
	Conn          *websocket.Conn
	subscriptions map[string]context.CancelFunc // channel → stops its forwarder
	ctx           context.Context
	cancel        context.CancelFunc
	forwarders    sync.WaitGroup
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager(source ChannelSource, writeTimeout, keepalive time.Duration) *ConnectionManager {
	return &ConnectionManager{
		connections:  make(map[string]*Connection),
		channels:     make(map[string]map[string]bool),
		source:       source,
		writeTimeout: writeTimeout,
		keepalive:    keepalive,
		logger:       slog.Default().With("component", "ws"),
	}
}

// HandleConnection manages the lifecycle of a single WebSocket connection.
// Called by the WebSocket HTTP handler after upgrade. Blocks until the
// connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{
		ID:            connID,
		Conn:          conn,
		subscriptions: make(map[string]context.CancelFunc),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.registerConnection(c)
	defer m.unregisterConnection(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": connID,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.logger.Warn("Invalid WebSocket message", "connection_id", connID, "error", err)
			continue
		}

		m.handleClientMessage(c, &msg)
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// subscriberCount returns the number of subscribers for a channel.
// Used by tests to poll instead of sleeping.
func (m *ConnectionManager) subscriberCount(channel string) int {
	m.channelMu.RLock()
	defer m.channelMu.RUnlock()
	return len(m.channels[channel])
}

func (m *ConnectionManager) handleClientMessage(c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for subscribe"})
			return
		}
		lastEventID := 0
		if msg.LastEventID != nil {
			lastEventID = *msg.LastEventID
		}
		if err := m.subscribe(c, msg.Channel, lastEventID); err != nil {
			m.sendJSON(c, map[string]string{
				"type":    "subscription.error",
				"channel": msg.Channel,
				"message": err.Error(),
			})
		}

	case "unsubscribe":
		if msg.Channel == "" {
			m.sendJSON(c, map[string]string{"type": "error", "message": "channel is required for unsubscribe"})
			return
		}
		m.unsubscribe(c, msg.Channel)

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})

	default:
		m.sendJSON(c, map[string]string{"type": "error", "message": "unknown action: " + msg.Action})
	}
}

var errInvalidSession = errors.New("invalid session")

// subscribe resolves the channel and starts a forwarder replaying events
// after lastEventID. Subscribing twice to one channel restarts the forwarder
// at the new position.
func (m *ConnectionManager) subscribe(c *Connection, channel string, lastEventID int) error {
	sessionID, ok := strings.CutPrefix(channel, "session:")
	if !ok || sessionID == "" {
		return errInvalidSession
	}
	ch, ok := m.source.LookupChannel(sessionID)
	if !ok {
		return errInvalidSession
	}

	if stop, exists := c.subscriptions[channel]; exists {
		stop()
	}

	m.channelMu.Lock()
	if _, exists := m.channels[channel]; !exists {
		m.channels[channel] = make(map[string]bool)
	}
	m.channels[channel][c.ID] = true
	m.channelMu.Unlock()

	fwdCtx, stop := context.WithCancel(c.ctx)
	c.subscriptions[channel] = stop

	m.sendJSON(c, map[string]string{
		"type":    "subscription.confirmed",
		"channel": channel,
	})

	sub := ch.Subscribe(lastEventID, m.keepalive)
	c.forwarders.Add(1)
	go func() {
		defer c.forwarders.Done()
		m.forward(fwdCtx, c, channel, sub)
	}()
	return nil
}

// forward copies events from sub to the connection. The synthesized
// connected event is skipped; subscription.confirmed plays that role here.
func (m *ConnectionManager) forward(ctx context.Context, c *Connection, channel string, sub *Subscription) {
	for {
		evt, err := sub.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				m.sendJSON(c, map[string]string{"type": "subscription.ended", "channel": channel})
			case errors.Is(err, ErrChannelClosed):
				m.sendJSON(c, map[string]string{"type": "subscription.ended", "channel": channel, "message": "session expired"})
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if evt.Type == EventTypeConnected {
			continue
		}

		data, err := json.Marshal(evt)
		if err != nil {
			m.logger.Warn("Failed to marshal progress event", "connection_id", c.ID, "error", err)
			continue
		}
		if err := m.sendRaw(c, data); err != nil {
			m.logger.Warn("Failed to send to WebSocket client", "connection_id", c.ID, "error", err)
			return
		}
	}
}

// unsubscribe stops the forwarder for a channel.
func (m *ConnectionManager) unsubscribe(c *Connection, channel string) {
	if stop, ok := c.subscriptions[channel]; ok {
		stop()
		delete(c.subscriptions, channel)
	}

	m.channelMu.Lock()
	if subs, exists := m.channels[channel]; exists {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(m.channels, channel)
		}
	}
	m.channelMu.Unlock()
}

// registerConnection adds a connection to the tracking map.
func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

// unregisterConnection removes a connection and all its subscriptions.
func (m *ConnectionManager) unregisterConnection(c *Connection) {
	for ch := range c.subscriptions {
		m.unsubscribe(c, ch)
	}

	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()

	c.cancel()
	c.forwarders.Wait()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

// sendJSON marshals and sends a JSON message to a single connection.
func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("Failed to marshal WebSocket message", "connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		m.logger.Warn("Failed to send WebSocket message", "connection_id", c.ID, "error", err)
	}
}

// sendRaw sends raw bytes to a single connection with a write timeout.
func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}
