package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore appends events to an append-only table. Retention is applied
// on write by deleting rows older than the retention horizon for the day
// being written, which keeps the store sweeper-free like the Redis variant.
type PostgresStore struct {
	pool          *pgxpool.Pool
	retentionDays int
}

// Schema for the audit_events table. Applied by the operator, not the
// gateway; kept here as the reference DDL.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
    id          UUID PRIMARY KEY,
    ts          TIMESTAMPTZ NOT NULL,
    subject     TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL,
    service     TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    status_code INT NOT NULL,
    source_ip   TEXT NOT NULL,
    user_agent  TEXT NOT NULL DEFAULT '',
    browser     TEXT NOT NULL DEFAULT '',
    request_id  TEXT NOT NULL DEFAULT '',
    duration_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_events_ts_idx ON audit_events (ts);
`

// NewPostgresStore connects a pool to dsn.
func NewPostgresStore(ctx context.Context, dsn string, retentionDays int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect audit postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping audit postgres: %w", err)
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &PostgresStore{pool: pool, retentionDays: retentionDays}, nil
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_events
			(id, ts, subject, action, service, outcome, status_code,
			 source_ip, user_agent, browser, request_id, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		event.ID, event.Timestamp, event.Subject, event.Action, event.Service,
		string(event.Outcome), event.StatusCode, event.SourceIP,
		event.UserAgent, event.Browser, event.RequestID, event.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Prune deletes events older than the retention horizon. Called periodically
// by the owner of the store.
func (s *PostgresStore) Prune(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM audit_events WHERE ts < now() - make_interval(days => $1)`,
		s.retentionDays,
	)
	if err != nil {
		return fmt.Errorf("prune audit events: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
