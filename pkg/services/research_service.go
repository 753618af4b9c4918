package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeready-toolchain/equityresearch/pkg/events"
	"github.com/codeready-toolchain/equityresearch/pkg/history"
	"github.com/codeready-toolchain/equityresearch/pkg/queue"
	"github.com/codeready-toolchain/equityresearch/pkg/research"
	"github.com/codeready-toolchain/equityresearch/pkg/session"
)

// DefaultExchange is used when a request names no exchange.
const DefaultExchange = "US"

// Scheduler runs accepted sessions. Implemented by *queue.WorkerPool.
type Scheduler interface {
	Submit(s *session.Session) error
	Cancel(s *session.Session) bool
}

// StartStockInput is a single-company research request.
type StartStockInput struct {
	Symbol   string
	Exchange string
	Owner    string // From oauth2-proxy headers
}

// StartSectorInput is a sector research request. NumCompanies is the raw
// request value; any JSON type is accepted and normalized.
type StartSectorInput struct {
	Sector       string
	Exchange     string
	NumCompanies any
	Owner        string
}

// ResearchService starts, follows and cancels research sessions.
type ResearchService struct {
	sessions  *session.Manager
	scheduler Scheduler
	history   history.Store
	keepalive time.Duration
	logger    *slog.Logger
}

// NewResearchService creates a new ResearchService.
func NewResearchService(sessions *session.Manager, scheduler Scheduler, store history.Store, keepalive time.Duration) *ResearchService {
	if sessions == nil {
		panic("NewResearchService: sessions must not be nil")
	}
	if scheduler == nil {
		panic("NewResearchService: scheduler must not be nil")
	}
	if store == nil {
		panic("NewResearchService: store must not be nil")
	}
	return &ResearchService{
		sessions:  sessions,
		scheduler: scheduler,
		history:   store,
		keepalive: keepalive,
		logger:    slog.Default().With("component", "research-service"),
	}
}

// StartStock queues single-company research and returns the new session.
// The symbol is trimmed and upper-cased; the exchange defaults to US.
func (s *ResearchService) StartStock(input StartStockInput) (*session.Session, error) {
	symbol := strings.ToUpper(strings.TrimSpace(input.Symbol))
	if symbol == "" {
		return nil, NewValidationError("symbol", "Symbol is required")
	}
	return s.start(session.Request{
		Kind:     session.KindStock,
		Subject:  symbol,
		Exchange: normalizeExchange(input.Exchange),
		Owner:    input.Owner,
	})
}

// StartSector queues sector research and returns the new session.
func (s *ResearchService) StartSector(input StartSectorInput) (*session.Session, error) {
	sector := strings.TrimSpace(input.Sector)
	if sector == "" {
		return nil, NewValidationError("sector", "Sector is required")
	}
	return s.start(session.Request{
		Kind:         session.KindSector,
		Subject:      sector,
		Exchange:     normalizeExchange(input.Exchange),
		NumCompanies: research.NormalizeCompanyCount(input.NumCompanies),
		Owner:        input.Owner,
	})
}

func (s *ResearchService) start(req session.Request) (*session.Session, error) {
	sess := s.sessions.Create(req)
	if err := s.scheduler.Submit(sess); err != nil {
		_ = s.sessions.Remove(sess.ID)
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrPoolStopped) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("failed to queue session: %w", err)
	}

	s.logger.Info("Research session queued",
		"session_id", sess.ID, "kind", req.Kind, "subject", req.Subject, "exchange", req.Exchange, "owner", req.Owner)
	return sess, nil
}

// Subscribe opens a progress stream resuming after lastEventID (0 for the
// full log).
func (s *ResearchService) Subscribe(sessionID string, lastEventID int) (*events.Subscription, error) {
	ch, ok := s.sessions.LookupChannel(sessionID)
	if !ok {
		return nil, ErrInvalidSession
	}
	return ch.Subscribe(lastEventID, s.keepalive), nil
}

// Cancel requests cancellation. Returns false when the session had already
// finished, which is not an error.
func (s *ResearchService) Cancel(sessionID string) (bool, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return false, ErrInvalidSession
	}
	requested := s.scheduler.Cancel(sess)
	if requested {
		s.logger.Info("Cancellation requested", "session_id", sessionID)
	}
	return requested, nil
}

// Get returns the current state of a session.
func (s *ResearchService) Get(sessionID string) (session.Snapshot, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return session.Snapshot{}, ErrInvalidSession
	}
	return sess.Snapshot(), nil
}

// ListHistory returns the caller's stored reports, newest first. A non-empty
// query searches report text instead.
func (s *ResearchService) ListHistory(ctx context.Context, owner, query string, limit int) ([]history.Record, error) {
	limit = history.ClampLimit(limit)
	if q := strings.TrimSpace(query); q != "" {
		return s.history.Search(ctx, owner, q, limit)
	}
	return s.history.List(ctx, owner, limit)
}

// GetHistory returns one of the caller's stored reports.
func (s *ResearchService) GetHistory(ctx context.Context, owner, id string) (*history.Record, error) {
	rec, err := s.history.Get(ctx, owner, id)
	if errors.Is(err, history.ErrNotFound) {
		return nil, ErrNotFound
	}
	return rec, err
}

func normalizeExchange(exchange string) string {
	exchange = strings.ToUpper(strings.TrimSpace(exchange))
	if exchange == "" {
		return DefaultExchange
	}
	return exchange
}

// SessionCounts returns the number of live sessions per status.
func (s *ResearchService) SessionCounts() map[session.Status]int {
	return s.sessions.CountByStatus()
}
