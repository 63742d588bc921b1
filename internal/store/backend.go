package store

import (
	"context"
	"errors"
	"fmt"

	"agenda-service/internal/agenda"
)

// row and rows are the parts of pgx and database/sql results the store uses.
type row interface {
	Scan(dest ...any) error
}

type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// conn runs statements either on the pool or inside a transaction.
// Statements use $n placeholders; backends rebind as needed.
type conn interface {
	query(ctx context.Context, q string, args ...any) (rows, error)
	queryRow(ctx context.Context, q string, args ...any) row
	exec(ctx context.Context, q string, args ...any) (int64, error)
}

type backend interface {
	conn
	// withTx runs fn in a transaction that holds the per-technician
	// booking lock for technicianID.
	withTx(ctx context.Context, technicianID string, fn func(conn) error) error
	schema() string
	isNoRows(err error) bool
	isConflict(err error) bool
	close()
}

// mapErr converts driver errors into the agenda error classes.
func (s *Store) mapErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, agenda.ErrNotFound), errors.Is(err, agenda.ErrConflict), errors.Is(err, agenda.ErrValidation):
		return err
	case s.b.isNoRows(err):
		return fmt.Errorf("%w: %s", agenda.ErrNotFound, what)
	case s.b.isConflict(err):
		return fmt.Errorf("%w: %s", agenda.ErrConflict, what)
	default:
		return fmt.Errorf("failed to %s: %w", what, err)
	}
}
