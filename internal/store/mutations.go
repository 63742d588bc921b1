package store

import (
	"context"
	"fmt"

	"agenda-service/internal/agenda"
)

// CreateEvent inserts an event on technicianID's agenda. Events never
// consume an exclusive slot, so no availability check is made.
func (s *Store) CreateEvent(ctx context.Context, technicianID string, in agenda.EventInput) (agenda.Record, error) {
	if err := in.Normalize(); err != nil {
		return agenda.Record{}, err
	}
	if technicianID == "" {
		return agenda.Record{}, fmt.Errorf("%w: technician is required", agenda.ErrValidation)
	}

	q := `INSERT INTO events (technician_id, title, description, date, shift, all_day, client_name)
	      VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	var id int64
	err := s.b.queryRow(ctx, q,
		technicianID, in.Title, nullable(in.Description), in.Date.String(), string(in.Shift),
		in.AllDay, nullable(in.ClientName),
	).Scan(&id)
	if err != nil {
		return agenda.Record{}, s.mapErr(err, "create event")
	}
	return s.GetRecord(ctx, agenda.RecordRef{Kind: agenda.KindEvent, ID: id})
}

// UpdateEvent rewrites an existing event. The owning technician never changes.
func (s *Store) UpdateEvent(ctx context.Context, id int64, in agenda.EventInput) (agenda.Record, error) {
	if err := in.Normalize(); err != nil {
		return agenda.Record{}, err
	}

	q := `UPDATE events
	      SET title = $1, description = $2, date = $3, shift = $4, all_day = $5,
	          client_name = $6, updated_at = CURRENT_TIMESTAMP
	      WHERE id = $7`
	n, err := s.b.exec(ctx, q,
		in.Title, nullable(in.Description), in.Date.String(), string(in.Shift), in.AllDay,
		nullable(in.ClientName), id,
	)
	if err != nil {
		return agenda.Record{}, s.mapErr(err, "update event")
	}
	if n == 0 {
		return agenda.Record{}, fmt.Errorf("%w: event#%d", agenda.ErrNotFound, id)
	}
	return s.GetRecord(ctx, agenda.RecordRef{Kind: agenda.KindEvent, ID: id})
}

// CreateVisit books a visit for the visit scheduling flow. The slot must be free.
func (s *Store) CreateVisit(ctx context.Context, in agenda.VisitInput) (agenda.Record, error) {
	if err := in.Normalize(); err != nil {
		return agenda.Record{}, err
	}

	var id int64
	err := s.b.withTx(ctx, in.TechnicianID, func(c conn) error {
		check, err := s.checkSlot(ctx, c, agenda.SlotRequest{
			TechnicianID: in.TechnicianID,
			Date:         in.Date,
			Shift:        in.Shift,
			AllDay:       in.AllDay,
		})
		if err != nil {
			return err
		}
		if err := check.Err(); err != nil {
			return err
		}

		var nextDate any
		if in.NextVisitDate != nil {
			nextDate = in.NextVisitDate.String()
		}
		q := `INSERT INTO visits (technician_id, title, description, date, shift, all_day,
		          unit_name, sector_name, responsible_name, next_visit_date, next_visit_shift)
		      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
		return c.queryRow(ctx, q,
			in.TechnicianID, in.Title, nullable(in.Description), in.Date.String(), string(in.Shift),
			in.AllDay, nullable(in.UnitName), nullable(in.SectorName), nullable(in.ResponsibleName),
			nextDate, nullable(string(in.NextVisitShift)),
		).Scan(&id)
	})
	if err != nil {
		return agenda.Record{}, s.mapErr(err, "create visit")
	}
	return s.GetRecord(ctx, agenda.RecordRef{Kind: agenda.KindVisit, ID: id})
}

// RescheduleVisit records a new VISIT_RESCHEDULED hop for the head of a visit
// lineage. The source row is kept; it stops occupying its slot because it is
// now superseded. Only the current head of a chain can be rescheduled.
func (s *Store) RescheduleVisit(ctx context.Context, in agenda.RescheduleInput) (agenda.Record, error) {
	if err := in.Normalize(); err != nil {
		return agenda.Record{}, err
	}
	src, err := s.GetRecord(ctx, in.Source)
	if err != nil {
		return agenda.Record{}, err
	}

	var id int64
	err = s.b.withTx(ctx, src.TechnicianID, func(c conn) error {
		// Reload under the lock; a concurrent hop may have superseded it.
		src, err := s.getRecord(ctx, c, in.Source)
		if err != nil {
			return err
		}
		if src.SupersededBy != nil {
			return fmt.Errorf("%w: %s was already rescheduled as %s", agenda.ErrConflict, src.Ref(), *src.SupersededBy)
		}

		shift := in.Shift
		if shift == "" {
			shift = src.Shift
		}
		self := src.Ref()
		check, err := s.checkSlot(ctx, c, agenda.SlotRequest{
			TechnicianID: src.TechnicianID,
			Date:         in.NewDate,
			Shift:        shift,
			AllDay:       src.AllDay,
			Exclude:      &self,
		})
		if err != nil {
			return err
		}
		if err := check.Err(); err != nil {
			return err
		}

		root := src.ReferenceID
		if src.Reschedule != nil {
			root = src.Reschedule.RootVisitID
		}
		q := `INSERT INTO visit_reschedules (technician_id, root_visit_id, source_kind, source_id,
		          original_date, original_shift, date, shift, all_day, reason)
		      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
		return c.queryRow(ctx, q,
			src.TechnicianID, root, string(src.Kind), src.ReferenceID,
			src.Date.String(), string(src.Shift), in.NewDate.String(), string(shift), src.AllDay,
			nullable(in.Reason),
		).Scan(&id)
	})
	if err != nil {
		return agenda.Record{}, s.mapErr(err, "reschedule visit")
	}
	return s.GetRecord(ctx, agenda.RecordRef{Kind: agenda.KindVisitRescheduled, ID: id})
}

// DeleteRecord removes a record outright. Deleting any visit-kind record
// removes its whole lineage, so no earlier hop can reclaim a slot that has
// since been booked by someone else.
func (s *Store) DeleteRecord(ctx context.Context, ref agenda.RecordRef) error {
	switch ref.Kind {
	case agenda.KindEvent:
		n, err := s.b.exec(ctx, `DELETE FROM events WHERE id = $1`, ref.ID)
		if err != nil {
			return s.mapErr(err, "delete event")
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", agenda.ErrNotFound, ref)
		}
		return nil
	case agenda.KindVisit, agenda.KindVisitRescheduled:
		rec, err := s.GetRecord(ctx, ref)
		if err != nil {
			return err
		}
		root := rec.ReferenceID
		if rec.Reschedule != nil {
			root = rec.Reschedule.RootVisitID
		}
		err = s.b.withTx(ctx, rec.TechnicianID, func(c conn) error {
			if _, err := c.exec(ctx, `DELETE FROM visit_reschedules WHERE root_visit_id = $1`, root); err != nil {
				return err
			}
			n, err := c.exec(ctx, `DELETE FROM visits WHERE id = $1`, root)
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("%w: %s", agenda.ErrNotFound, ref)
			}
			return nil
		})
		return s.mapErr(err, "delete visit")
	default:
		return fmt.Errorf("%w: unknown record kind %q", agenda.ErrValidation, ref.Kind)
	}
}
