package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	r.Rows.Close()
}

var dollarParam = regexp.MustCompile(`\$(\d+)`)

// rebind turns $n into ?n, which SQLite binds by number.
func rebind(q string) string {
	return dollarParam.ReplaceAllString(q, "?$1")
}

type sqliteConn struct {
	q sqlQuerier
}

func (c sqliteConn) query(ctx context.Context, q string, args ...any) (rows, error) {
	r, err := c.q.QueryContext(ctx, rebind(q), args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{r}, nil
}

func (c sqliteConn) queryRow(ctx context.Context, q string, args ...any) row {
	return c.q.QueryRowContext(ctx, rebind(q), args...)
}

func (c sqliteConn) exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := c.q.ExecContext(ctx, rebind(q), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type sqliteBackend struct {
	sqliteConn
	db *sql.DB
}

// withTx relies on immediate transactions (see OpenSQLite) for the booking
// lock: SQLite admits one writer at a time.
func (b *sqliteBackend) withTx(ctx context.Context, _ string, fn func(conn) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(sqliteConn{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (b *sqliteBackend) schema() string {
	return sqliteSchema
}

func (b *sqliteBackend) isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func (b *sqliteBackend) isConflict(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func (b *sqliteBackend) close() {
	b.db.Close()
}

// OpenSQLite opens (or creates) an SQLite agenda store. Use ":memory:" for
// a throwaway database.
func OpenSQLite(path string) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "_txlock") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_txlock=immediate&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and makes
	// writers queue instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Store{b: &sqliteBackend{sqliteConn: sqliteConn{q: db}, db: db}}, nil
}
