package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/equityresearch/pkg/mcp"
)

// Warning category constants for categorizing system warnings.
const (
	WarningCategoryToolServer = "tool_server_health" // tool server failed its last probe
)

// SystemWarning represents a non-fatal system issue.
type SystemWarning struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	ServerID  string    `json:"server_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SystemWarningsService keeps in-memory system warnings. Warnings are
// transient and reset on restart.
type SystemWarningsService struct {
	mu       sync.RWMutex
	warnings map[string]*SystemWarning // warningID → warning
}

// NewSystemWarningsService creates a new SystemWarningsService.
func NewSystemWarningsService() *SystemWarningsService {
	return &SystemWarningsService{
		warnings: make(map[string]*SystemWarning),
	}
}

// AddWarning adds a warning and returns its ID.
// A warning with the same category and serverID is replaced.
func (s *SystemWarningsService) AddWarning(category, message, details, serverID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range s.warnings {
		if w.Category == category && w.ServerID == serverID {
			delete(s.warnings, id)
			break
		}
	}

	id := uuid.New().String()
	s.warnings[id] = &SystemWarning{
		ID:        id,
		Category:  category,
		Message:   message,
		Details:   details,
		ServerID:  serverID,
		CreatedAt: time.Now(),
	}
	return id
}

// GetWarnings returns copies of all active warnings, oldest first.
func (s *SystemWarningsService) GetWarnings() []*SystemWarning {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*SystemWarning, 0, len(s.warnings))
	for _, w := range s.warnings {
		cp := *w
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ServerID < result[j].ServerID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// ClearByServerID removes a warning matching category + serverID.
// Returns true if a warning was removed.
func (s *SystemWarningsService) ClearByServerID(category, serverID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range s.warnings {
		if w.Category == category && w.ServerID == serverID {
			delete(s.warnings, id)
			return true
		}
	}
	return false
}

// RecordToolServerHealth raises a warning for every unhealthy server in
// statuses and clears the warning of every server that recovered.
func (s *SystemWarningsService) RecordToolServerHealth(statuses []mcp.HealthStatus) {
	for _, st := range statuses {
		if st.Healthy {
			s.ClearByServerID(WarningCategoryToolServer, st.ServerID)
			continue
		}
		s.AddWarning(WarningCategoryToolServer,
			fmt.Sprintf("Tool server %s is unreachable", st.ServerID), st.Error, st.ServerID)
	}
}
