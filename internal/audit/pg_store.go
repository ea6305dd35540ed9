package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the store needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgStore writes access events to Postgres.
type PgStore struct {
	pool PgxPool
}

// NewPgStore creates a Postgres-backed audit store.
func NewPgStore(pool PgxPool) *PgStore {
	if pool == nil {
		return nil
	}
	return &PgStore{pool: pool}
}

// Record appends one access event. The row is never updated afterwards.
func (s *PgStore) Record(ctx context.Context, event AccessEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	query := `
		INSERT INTO access_events (
			id, session_id, visitor_name, cedula, plate,
			resident_id, resident_name, apartment,
			outcome, reason, started_at, ended_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.pool.Exec(ctx, query,
		event.ID, event.SessionID, event.VisitorName, event.Cedula, event.Plate,
		nullable(event.ResidentID), event.ResidentName, event.Apartment,
		event.Outcome, event.Reason, event.StartedAt, event.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: record access event: %w", err)
	}
	return nil
}

// ListByApartment returns recent events for one apartment, newest first.
func (s *PgStore) ListByApartment(ctx context.Context, apartment string, limit int) ([]AccessEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, session_id, visitor_name, cedula, plate,
			COALESCE(resident_id::text, ''), resident_name, apartment,
			outcome, reason, started_at, ended_at
		FROM access_events
		WHERE apartment = $1
		ORDER BY ended_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, strings.TrimSpace(apartment), limit)
	if err != nil {
		return nil, fmt.Errorf("audit: events by apartment: %w", err)
	}
	defer rows.Close()

	var out []AccessEvent
	for rows.Next() {
		var ev AccessEvent
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.VisitorName, &ev.Cedula, &ev.Plate,
			&ev.ResidentID, &ev.ResidentName, &ev.Apartment,
			&ev.Outcome, &ev.Reason, &ev.StartedAt, &ev.EndedAt); err != nil {
			return nil, fmt.Errorf("audit: scan access event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// nullable maps empty UUID strings to SQL NULL for the resident_id column.
func nullable(id string) any {
	if id == "" {
		return nil
	}
	return id
}

var _ Recorder = (*PgStore)(nil)
