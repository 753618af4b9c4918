// Package cleanup provides session expiry and history retention services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/equityresearch/pkg/config"
	"github.com/codeready-toolchain/equityresearch/pkg/history"
	"github.com/codeready-toolchain/equityresearch/pkg/session"
)

// Service periodically enforces retention policies:
//   - Removes finished sessions once their grace period has passed,
//     closing their progress channels
//   - Deletes stored reports older than the history retention window
//
// All operations are idempotent.
type Service struct {
	streaming *config.StreamingConfig
	retention *config.RetentionConfig
	sessions  *session.Manager
	history   history.Store

	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service. store may be nil, in which case
// only sessions are swept.
func NewService(
	streaming *config.StreamingConfig,
	retention *config.RetentionConfig,
	sessions *session.Manager,
	store history.Store,
) *Service {
	return &Service{
		streaming: streaming,
		retention: retention,
		sessions:  sessions,
		history:   store,
		now:       time.Now,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"session_grace", s.streaming.CleanupGrace,
		"session_interval", s.streaming.CleanupInterval,
		"history_retention_days", s.retention.HistoryRetentionDays,
		"purge_interval", s.retention.PurgeInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.expireSessions()
	s.purgeHistory(ctx)

	sweep := time.NewTicker(s.streaming.CleanupInterval)
	defer sweep.Stop()
	purge := time.NewTicker(s.retention.PurgeInterval)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			s.expireSessions()
		case <-purge.C:
			s.purgeHistory(ctx)
		}
	}
}

func (s *Service) expireSessions() {
	ids := s.sessions.RemoveExpired(s.streaming.CleanupGrace)
	if len(ids) > 0 {
		slog.Debug("Retention: removed expired sessions", "count", len(ids), "session_ids", ids)
	}
}

func (s *Service) purgeHistory(ctx context.Context) {
	if s.history == nil || s.retention.HistoryRetentionDays <= 0 {
		return
	}
	cutoff := s.now().AddDate(0, 0, -s.retention.HistoryRetentionDays)
	count, err := s.history.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: history purge failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted old reports", "count", count, "cutoff", cutoff)
	}
}
