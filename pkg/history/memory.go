package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Used when no database is
// configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	rec.Report = append(json.RawMessage(nil), rec.Report...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) List(ctx context.Context, owner string, limit int) ([]Record, error) {
	return s.Search(ctx, owner, "", limit)
}

// Search matches query case-insensitively against the full report text.
func (s *MemoryStore) Search(_ context.Context, owner, query string, limit int) ([]Record, error) {
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	var out []Record
	for _, rec := range s.records {
		if rec.Owner != owner {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(fullReport(rec.Report)), query) {
			continue
		}
		rec.Report = nil
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	if limit = ClampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, owner, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok || rec.Owner != owner {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.Report = append(json.RawMessage(nil), rec.Report...)
	return &rec, nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.records {
		if rec.CompletedAt.Before(cutoff) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func fullReport(report json.RawMessage) string {
	var doc struct {
		FullReport string `json:"full_report"`
	}
	if err := json.Unmarshal(report, &doc); err != nil {
		return ""
	}
	return doc.FullReport
}
