// Package persistence implements the header/line/processed-file
// repositories (C7): transactional header creation, batched line creation
// honoring the adaptive batch size, and idempotent processed-file ledger
// updates. Every repository call that performs I/O is wrapped by the
// "repository" circuit breaker from pkg/breaker.
package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"

	xgerrors "github.com/b2bgate/xmlgate/internal/errors"
)

// DB wraps a connection pool. Repositories accept a Querier (satisfied by
// both *DB and an open *Tx) so the orchestrator's single pipeline
// transaction can be threaded through the header and line writes; catalog,
// rule and ledger access run against *DB outside that transaction.
type DB struct {
	*sqlx.DB
}

// Open connects to Postgres via the pgx stdlib driver and wraps it in sqlx.
func Open(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, xgerrors.NewPersistenceError("connecting to database", err)
	}
	return &DB{DB: conn}, nil
}

// Querier is the subset of *sqlx.DB / *sqlx.Tx repositories depend on,
// letting the same repository method run inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	Rebind(query string) string
}

// Tx is a thin alias kept for readability at call sites; it is exactly
// what sqlx.DB.BeginTxx returns.
type Tx = sqlx.Tx

// BeginTx opens the orchestrator's single pipeline transaction. Nested
// persistence calls join it by receiving the returned *Tx as their
// Querier — never opening transactions of their own.
func (d *DB) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, xgerrors.NewPersistenceError("opening pipeline transaction", err)
	}
	return tx, nil
}

// WithSavepoint runs fn inside a named savepoint on tx, rolling back only
// that savepoint (not the whole transaction) if fn fails. This is how
// create_lines satisfies "partial failure of a chunk rolls back that
// chunk only" within one enclosing transaction.
func WithSavepoint(ctx context.Context, tx *Tx, name string, fn func() error) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SAVEPOINT %s", name)); err != nil {
		return xgerrors.NewPersistenceError("creating savepoint", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", name)); rbErr != nil {
			return xgerrors.NewPersistenceError("rolling back savepoint after chunk failure", rbErr)
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("RELEASE SAVEPOINT %s", name)); err != nil {
		return xgerrors.NewPersistenceError("releasing savepoint", err)
	}
	return nil
}
