package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists interview documents in PostgreSQL.
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
		`CREATE TABLE IF NOT EXISTS interviews (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			type TEXT NOT NULL,
			level TEXT NOT NULL,
			techstack TEXT[] NOT NULL DEFAULT '{}',
			questions TEXT[] NOT NULL DEFAULT '{}',
			finalized BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_interviews_user_created ON interviews (user_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, interview Interview) (Interview, error) {
	if interview.ID == "" {
		interview.ID = uuid.NewString()
	}
	if interview.CreatedAt.IsZero() {
		interview.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO interviews (id, user_id, role, type, level, techstack, questions, finalized, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		interview.ID,
		interview.UserID,
		interview.Role,
		interview.Type,
		interview.Level,
		interview.Techstack,
		interview.Questions,
		interview.Finalized,
		interview.CreatedAt,
	)
	if err != nil {
		return Interview{}, fmt.Errorf("create interview: %w", err)
	}
	return interview, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Interview, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, role, type, level, techstack, questions, finalized, created_at
		 FROM interviews WHERE id=$1`,
		id,
	)

	var iv Interview
	err := row.Scan(&iv.ID, &iv.UserID, &iv.Role, &iv.Type, &iv.Level, &iv.Techstack, &iv.Questions, &iv.Finalized, &iv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Interview{}, ErrNotFound
	}
	if err != nil {
		return Interview{}, fmt.Errorf("get interview: %w", err)
	}
	return iv, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Interview, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, role, type, level, techstack, questions, finalized, created_at
		 FROM interviews WHERE user_id=$1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}
	defer rows.Close()

	var items []Interview
	for rows.Next() {
		var iv Interview
		if err := rows.Scan(&iv.ID, &iv.UserID, &iv.Role, &iv.Type, &iv.Level, &iv.Techstack, &iv.Questions, &iv.Finalized, &iv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan interview row: %w", err)
		}
		items = append(items, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interview rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Questions(ctx context.Context, id string) ([]string, error) {
	iv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return iv.Questions, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
