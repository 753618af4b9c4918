// Package history stores completed research reports so their owners can
// list and reopen them later.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when no report with the ID is visible to the owner.
var ErrNotFound = errors.New("report not found")

// Limits for List and Search.
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// Record is one stored report. Report is the JSON-encoded bundle; List and
// Search leave it empty.
type Record struct {
	ID          string          `json:"id"`
	Owner       string          `json:"owner,omitempty"`
	Kind        string          `json:"type"`
	Subject     string          `json:"subject"`
	Exchange    string          `json:"exchange"`
	Report      json.RawMessage `json:"report,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Store persists reports. Every read is scoped to an owner; the empty owner
// is the anonymous caller and sees only anonymous reports.
type Store interface {
	// Save inserts or replaces the record with the same ID.
	Save(ctx context.Context, rec Record) error
	// List returns the owner's newest records first.
	List(ctx context.Context, owner string, limit int) ([]Record, error)
	// Search is List restricted to reports whose text matches query.
	Search(ctx context.Context, owner, query string, limit int) ([]Record, error)
	// Get returns one record with its report, or ErrNotFound.
	Get(ctx context.Context, owner, id string) (*Record, error)
	// DeleteOlderThan removes records completed before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ClampLimit maps a requested page size onto [1, MaxListLimit], using
// DefaultListLimit for non-positive values.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
