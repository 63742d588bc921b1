// Package store persists agenda records (events, visits and visit
// reschedules) in PostgreSQL or SQLite behind one SQL implementation.
package store

import (
	"context"
	"fmt"

	"agenda-service/internal/config"
)

// Store is the agenda repository. Every record leaving it is normalized.
type Store struct {
	b backend
}

// Open connects to the backend named by driver.
func Open(ctx context.Context, driver, url string) (*Store, error) {
	switch driver {
	case config.DriverPostgres:
		return OpenPostgres(ctx, url)
	case config.DriverSQLite:
		return OpenSQLite(url)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.b.exec(ctx, s.b.schema()); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.b.close()
}

// nullable stores empty strings as NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
