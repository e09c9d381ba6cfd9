// Package ailog records every AI-backed invocation (generation, validation,
// enhancement, narrative rewrite) in Postgres so the dashboard can show what
// the assistant did to a policy and how it went. The log is an optional
// collaborator; without a database the service simply does not record.
package ailog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Invocation outcomes.
const (
	OutcomeOK               = "ok"
	OutcomeValidationFailed = "validation_failed"
	OutcomeUnavailable      = "unavailable"
	OutcomeError            = "error"
)

type Entry struct {
	ID         int64     `json:"id"`
	PolicyID   string    `json:"policy_id"`
	Operation  string    `json:"operation"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the invocation table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS ai_invocations (
			id BIGSERIAL PRIMARY KEY,
			policy_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS ai_invocations_policy_idx
			ON ai_invocations (policy_id, created_at DESC);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure ai log schema: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, entry Entry) error {
	const insert = `
		INSERT INTO ai_invocations (policy_id, operation, outcome, detail, duration_ms)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.db.ExecContext(ctx, insert,
		entry.PolicyID, entry.Operation, entry.Outcome, entry.Detail, entry.DurationMS); err != nil {
		return fmt.Errorf("insert ai invocation: %w", err)
	}
	return nil
}

// ListRecent returns the newest invocations for a policy, newest first.
func (s *Store) ListRecent(ctx context.Context, policyID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, policy_id, operation, outcome, detail, duration_ms, created_at
		FROM ai_invocations
		WHERE policy_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, policyID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ai invocations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.PolicyID, &e.Operation, &e.Outcome, &e.Detail, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ai invocation: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
