package mcp

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

// RecoveryAction says how to handle a failed tool call.
type RecoveryAction int

const (
	// NoRetry: bad request, timeout, cancellation or anything unknown.
	NoRetry RecoveryAction = iota
	// RetrySameSession: transient failure on a healthy session.
	RetrySameSession
	// RetryNewSession: the transport broke; reconnect then retry.
	RetryNewSession
)

func (a RecoveryAction) String() string {
	switch a {
	case RetrySameSession:
		return "retry_same_session"
	case RetryNewSession:
		return "retry_new_session"
	default:
		return "no_retry"
	}
}

const (
	// ConnectTimeout bounds transport start plus handshake for one server.
	ConnectTimeout = 60 * time.Second

	// ReconnectTimeout bounds re-creating a broken session.
	ReconnectTimeout = 20 * time.Second

	RetryBackoffMin = 250 * time.Millisecond
	RetryBackoffMax = 750 * time.Millisecond

	// ProbeTimeout bounds one health probe.
	ProbeTimeout = 10 * time.Second
)

var connectionErrorMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"connection closed",
	"no such host",
}

var protocolErrorMarkers = []string{
	"method not found",
	"invalid params",
	"invalid request",
	"parse error",
}

// ClassifyError picks the recovery action for a tool call error.
func ClassifyError(err error) RecoveryAction {
	if err == nil {
		return NoRetry
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NoRetry
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		// A slow upstream is not helped by asking again.
		if netErr.Timeout() {
			return NoRetry
		}
		return RetryNewSession
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return RetryNewSession
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, protocolErrorMarkers) {
		return NoRetry
	}
	if containsAny(msg, connectionErrorMarkers) {
		return RetryNewSession
	}
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return RetrySameSession
	}
	return NoRetry
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
