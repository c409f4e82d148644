package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists assistant state in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS aria_records (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			payload JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (kind, id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_aria_records_kind_updated ON aria_records (kind, updated_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, record Record) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO aria_records (kind, id, payload, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (kind, id) DO UPDATE SET payload = $3, updated_at = $4`,
		record.Kind,
		record.ID,
		record.Payload,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, kind, id string) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT kind, id, payload, updated_at FROM aria_records WHERE kind=$1 AND id=$2`,
		kind, id,
	)
	var r Record
	if err := row.Scan(&r.Kind, &r.ID, &r.Payload, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ModifiedSince(ctx context.Context, kind string, since time.Time) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, id, payload, updated_at
		 FROM aria_records WHERE kind=$1 AND updated_at > $2 ORDER BY updated_at ASC`,
		kind, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query modified records: %w", err)
	}
	defer rows.Close()

	var items []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Kind, &r.ID, &r.Payload, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}

	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
