package store

import (
	"context"
	"fmt"

	"agenda-service/internal/agenda"
)

// SaveCalendarToken stores the serialized OAuth2 token of a technician's
// Google Calendar connection, replacing any previous one.
func (s *Store) SaveCalendarToken(ctx context.Context, technicianID string, token []byte) error {
	q := `INSERT INTO calendar_tokens (technician_id, token, updated_at)
	      VALUES ($1, $2, CURRENT_TIMESTAMP)
	      ON CONFLICT (technician_id) DO UPDATE SET token = excluded.token, updated_at = CURRENT_TIMESTAMP`
	if _, err := s.b.exec(ctx, q, technicianID, string(token)); err != nil {
		return fmt.Errorf("failed to save calendar token: %w", err)
	}
	return nil
}

// CalendarToken returns the stored token, or ErrNotFound if the technician
// never connected a calendar.
func (s *Store) CalendarToken(ctx context.Context, technicianID string) ([]byte, error) {
	var token string
	err := s.b.queryRow(ctx, `SELECT token FROM calendar_tokens WHERE technician_id = $1`, technicianID).Scan(&token)
	if err != nil {
		if s.b.isNoRows(err) {
			return nil, fmt.Errorf("%w: no calendar connected for %s", agenda.ErrNotFound, technicianID)
		}
		return nil, fmt.Errorf("failed to load calendar token: %w", err)
	}
	return []byte(token), nil
}

// ConnectedTechnicians lists technicians with a stored calendar token.
func (s *Store) ConnectedTechnicians(ctx context.Context) ([]string, error) {
	rs, err := s.b.query(ctx, `SELECT technician_id FROM calendar_tokens ORDER BY technician_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar connections: %w", err)
	}
	defer rs.Close()

	var out []string
	for rs.Next() {
		var id string
		if err := rs.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to list calendar connections: %w", err)
		}
		out = append(out, id)
	}
	return out, rs.Err()
}
