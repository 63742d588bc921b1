package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgxConn struct {
	q pgxQuerier
}

func (c pgxConn) query(ctx context.Context, q string, args ...any) (rows, error) {
	return c.q.Query(ctx, q, args...)
}

func (c pgxConn) queryRow(ctx context.Context, q string, args ...any) row {
	return c.q.QueryRow(ctx, q, args...)
}

func (c pgxConn) exec(ctx context.Context, q string, args ...any) (int64, error) {
	tag, err := c.q.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type postgresBackend struct {
	pgxConn
	pool *pgxpool.Pool
}

func (b *postgresBackend) withTx(ctx context.Context, technicianID string, fn func(conn) error) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Serializes bookings per technician until commit.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, technicianID); err != nil {
		return fmt.Errorf("failed to lock agenda: %w", err)
	}
	if err := fn(pgxConn{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (b *postgresBackend) schema() string {
	return postgresSchema
}

func (b *postgresBackend) isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (b *postgresBackend) isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// unique_violation, exclusion_violation
	return pgErr.Code == "23505" || pgErr.Code == "23P01"
}

func (b *postgresBackend) close() {
	b.pool.Close()
}

// OpenPostgres connects to PostgreSQL through a pgx pool.
func OpenPostgres(ctx context.Context, dbURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach db: %w", err)
	}
	return &Store{b: &postgresBackend{pgxConn: pgxConn{q: pool}, pool: pool}}, nil
}
