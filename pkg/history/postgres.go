package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/codeready-toolchain/equityresearch/pkg/database"
)

// PostgresStore keeps records in the research_reports table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store on a migrated database.
func NewPostgresStore(client *database.Client) *PostgresStore {
	return &PostgresStore{db: client.DB()}
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	report := rec.Report
	if len(report) == 0 {
		report = []byte("{}")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO research_reports (id, owner, kind, subject, exchange, report, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			report = EXCLUDED.report,
			completed_at = EXCLUDED.completed_at`,
		rec.ID, rec.Owner, rec.Kind, rec.Subject, rec.Exchange, string(report), rec.CreatedAt.UTC(), rec.CompletedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, owner string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, kind, subject, exchange, created_at, completed_at
		FROM research_reports
		WHERE owner = $1
		ORDER BY completed_at DESC
		LIMIT $2`,
		owner, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return scanSummaries(rows)
}

// Search uses the full-text index on the report body.
func (s *PostgresStore) Search(ctx context.Context, owner, query string, limit int) ([]Record, error) {
	if query == "" {
		return s.List(ctx, owner, limit)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, kind, subject, exchange, created_at, completed_at
		FROM research_reports
		WHERE owner = $1
		  AND to_tsvector('english', COALESCE(report->>'full_report', '')) @@ plainto_tsquery('english', $2)
		ORDER BY completed_at DESC
		LIMIT $3`,
		owner, query, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to search reports: %w", err)
	}
	return scanSummaries(rows)
}

func scanSummaries(rows *sql.Rows) ([]Record, error) {
	defer func() { _ = rows.Close() }()
	out := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Owner, &rec.Kind, &rec.Subject, &rec.Exchange, &rec.CreatedAt, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reports: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, owner, id string) (*Record, error) {
	var rec Record
	var report string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner, kind, subject, exchange, report::text, created_at, completed_at
		FROM research_reports
		WHERE id = $1 AND owner = $2`,
		id, owner).
		Scan(&rec.ID, &rec.Owner, &rec.Kind, &rec.Subject, &rec.Exchange, &report, &rec.CreatedAt, &rec.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report %s: %w", id, err)
	}
	rec.Report = []byte(report)
	return &rec, nil
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM research_reports WHERE completed_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge reports: %w", err)
	}
	return res.RowsAffected()
}
