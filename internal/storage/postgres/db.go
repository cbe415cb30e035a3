// Package postgres implements the storage interfaces on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hongminglow/expense-be/internal/storage"
)

// Ensure Store satisfies the storage.Store interface at compile time.
var _ storage.Store = (*Store)(nil)

// DBTX is the subset of pgx shared by pools and transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides Postgres-backed persistence.
type Store struct {
	pool *pgxpool.Pool
	db   DBTX
}

// NewStore connects, traces every query and runs migrations.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, db: pool}, nil
}

// NewWithDB wraps an existing pool or transaction. Migrations are the
// caller's responsibility.
func NewWithDB(db DBTX) *Store {
	return &Store{db: db}
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Migrate creates the schema and seeds the default roles.
func Migrate(ctx context.Context, db DBTX) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS roles (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL CONSTRAINT roles_name_key UNIQUE,
			type TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`INSERT INTO roles (name, type) VALUES
			('SUPERADMIN', 'ADMIN_PANEL'), ('ADMIN', 'ADMIN_PANEL'), ('USER', 'PLATFORM')
		ON CONFLICT (name) DO NOTHING;`,
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			username TEXT NOT NULL CONSTRAINT users_username_key UNIQUE,
			email TEXT NOT NULL CONSTRAINT users_email_key UNIQUE,
			phone TEXT NOT NULL DEFAULT '',
			role_id BIGINT REFERENCES roles(id) ON DELETE RESTRICT,
			password_hash TEXT NOT NULL,
			password_changed_at TIMESTAMPTZ,
			refresh_token TEXT NOT NULL DEFAULT '',
			reset_token_hash TEXT NOT NULL DEFAULT '',
			reset_token_expires TIMESTAMPTZ,
			is_verified BOOLEAN NOT NULL DEFAULT FALSE,
			image_small TEXT NOT NULL DEFAULT '',
			image_medium TEXT NOT NULL DEFAULT '',
			image_large TEXT NOT NULL DEFAULT '',
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS users_reset_token_idx ON users (reset_token_hash) WHERE reset_token_hash <> '';`,
		`CREATE TABLE IF NOT EXISTS expense_categories (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL CONSTRAINT expense_categories_name_key UNIQUE,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			category_id BIGINT REFERENCES expense_categories(id) ON DELETE SET NULL,
			sub_category TEXT NOT NULL DEFAULT '',
			expense_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			amount NUMERIC(14,2) NOT NULL,
			transaction_type TEXT NOT NULL DEFAULT 'debit' CHECK (transaction_type IN ('debit', 'credit')),
			description TEXT NOT NULL DEFAULT '',
			file TEXT NOT NULL DEFAULT '',
			owner_id BIGINT NOT NULL REFERENCES users(id),
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS expenses_owner_date_idx ON expenses (owner_id, is_deleted, expense_date DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

var conflictFields = map[string]string{
	"users_username_key":          "username",
	"users_email_key":             "email",
	"roles_name_key":              "name",
	"expense_categories_name_key": "name",
}

// mapErr translates driver errors into storage sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			field, ok := conflictFields[pgErr.ConstraintName]
			if !ok {
				field = pgErr.ConstraintName
			}
			return &storage.ConflictError{Field: field}
		case "23503":
			return storage.ErrInUse
		}
	}
	return err
}

// limitArg turns a non-positive limit into SQL NULL, which means no limit.
func limitArg(p storage.Page) any {
	if p.Limit <= 0 {
		return nil
	}
	return p.Limit
}
