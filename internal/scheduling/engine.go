package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"agenda-service/internal/agenda"
	appLog "agenda-service/internal/log"
)

// Repository is the agenda repository the engine commits to.
type Repository interface {
	RecordLister
	RecordGetter
	CreateEvent(ctx context.Context, in agenda.EventInput) (agenda.Record, error)
	UpdateEvent(ctx context.Context, id int64, in agenda.EventInput) (agenda.Record, error)
	DeleteRecord(ctx context.Context, ref agenda.RecordRef) error
	RescheduleVisit(ctx context.Context, in agenda.RescheduleInput) (agenda.Record, error)
}

// Engine sequences agenda mutations. Only one mutation runs at a time; an
// overlapping call fails with ErrBusy. After every mutation that reached the
// repository the engine drops the affected availability months and re-reads
// the agenda, so both views render the repository's state.
type Engine struct {
	repo      Repository
	validator *Validator
	months    *Aggregator
	agenda    *AgendaStore

	mu sync.Mutex
}

func NewEngine(repo Repository, validator *Validator, months *Aggregator, store *AgendaStore) *Engine {
	return &Engine{repo: repo, validator: validator, months: months, agenda: store}
}

func (e *Engine) Agenda() *AgendaStore {
	return e.agenda
}

func (e *Engine) Availability() *Aggregator {
	return e.months
}

func (e *Engine) Validator() *Validator {
	return e.validator
}

// begin claims the mutation slot.
func (e *Engine) begin() error {
	if !e.mu.TryLock() {
		return agenda.ErrBusy
	}
	return nil
}

// settle invalidates the touched months and refreshes the agenda view. A
// failed refresh is logged and left on the snapshot; it does not undo the
// mutation.
func (e *Engine) settle(ctx context.Context, technicianID string, dates ...agenda.Date) {
	e.months.Invalidate(technicianID, dates...)
	if err := e.agenda.Refresh(ctx); err != nil && !errors.Is(err, errStoreClosed) {
		appLog.Warn("agenda refresh after change failed", "error", err)
	}
}

// Refresh re-reads the agenda into the store.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.agenda.Refresh(ctx)
}

// CreateEvent adds an event. Events never take an exclusive slot.
func (e *Engine) CreateEvent(ctx context.Context, in agenda.EventInput) (agenda.Record, error) {
	if err := e.begin(); err != nil {
		return agenda.Record{}, err
	}
	defer e.mu.Unlock()

	if err := in.Normalize(); err != nil {
		return agenda.Record{}, err
	}
	rec, err := e.repo.CreateEvent(ctx, in)
	if err != nil {
		return agenda.Record{}, fmt.Errorf("failed to create event: %w", err)
	}
	appLog.Info("event created", "ref", rec.Ref(), "date", rec.Date, "shift", rec.Shift)
	e.settle(ctx, rec.TechnicianID, rec.Date)
	return rec, nil
}

// UpdateEvent rewrites the event with the given id.
func (e *Engine) UpdateEvent(ctx context.Context, id int64, in agenda.EventInput) (agenda.Record, error) {
	if err := e.begin(); err != nil {
		return agenda.Record{}, err
	}
	defer e.mu.Unlock()

	if err := in.Normalize(); err != nil {
		return agenda.Record{}, err
	}
	ref := agenda.RecordRef{Kind: agenda.KindEvent, ID: id}
	before, err := e.repo.GetRecord(ctx, ref)
	if err != nil {
		if errors.Is(err, agenda.ErrNotFound) {
			e.settle(ctx, "")
		}
		return agenda.Record{}, err
	}

	rec, err := e.repo.UpdateEvent(ctx, id, in)
	if err != nil {
		if errors.Is(err, agenda.ErrNotFound) {
			e.settle(ctx, before.TechnicianID, before.Date)
		}
		return agenda.Record{}, fmt.Errorf("failed to update event: %w", err)
	}
	appLog.Info("event updated", "ref", rec.Ref(), "date", rec.Date, "shift", rec.Shift)
	e.settle(ctx, rec.TechnicianID, before.Date, rec.Date)
	return rec, nil
}

// DeleteEvent deletes an event. A missing event is reported as ErrNotFound
// and the view is refreshed all the same.
func (e *Engine) DeleteEvent(ctx context.Context, id int64) error {
	return e.Delete(ctx, agenda.RecordRef{Kind: agenda.KindEvent, ID: id})
}

// Delete removes an event, or a visit together with its reschedule chain.
// Any visit-kind ref removes every record of its chain, the original visit
// included: a deleted head would otherwise hand its slot back to the record
// it superseded.
func (e *Engine) Delete(ctx context.Context, ref agenda.RecordRef) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	var (
		tech  string
		dates []agenda.Date
	)
	if ref.Kind.IsVisit() {
		// The chain's occupied slot is only known before the delete.
		chain, err := e.repo.GetRecord(ctx, ref)
		if err == nil {
			tech, dates = chain.TechnicianID, []agenda.Date{chain.Date}
			for cur := chain; cur.SupersededBy != nil; {
				next, err := e.repo.GetRecord(ctx, *cur.SupersededBy)
				if err != nil {
					break
				}
				dates = append(dates, next.Date)
				cur = next
			}
		}
	} else if rec, err := e.repo.GetRecord(ctx, ref); err == nil {
		tech, dates = rec.TechnicianID, []agenda.Date{rec.Date}
	}

	err := e.repo.DeleteRecord(ctx, ref)
	switch {
	case err == nil:
		appLog.Info("record deleted", "ref", ref)
	case errors.Is(err, agenda.ErrNotFound):
		appLog.Info("record already gone", "ref", ref)
	default:
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}
	if tech == "" {
		e.months.InvalidateAll()
	}
	e.settle(ctx, tech, dates...)
	return err
}

// RescheduleVisit moves a visit-kind record to a new date. The slot is
// checked first, ignoring the record being moved; a taken slot fails with
// ErrConflict and nothing is written.
func (e *Engine) RescheduleVisit(ctx context.Context, in agenda.RescheduleInput) (agenda.Record, error) {
	if err := e.begin(); err != nil {
		return agenda.Record{}, err
	}
	defer e.mu.Unlock()

	if err := in.Normalize(); err != nil {
		return agenda.Record{}, err
	}
	src, err := e.repo.GetRecord(ctx, in.Source)
	if err != nil {
		return agenda.Record{}, err
	}
	if src.SupersededBy != nil {
		return agenda.Record{}, fmt.Errorf("%w: %s was already rescheduled as %s", agenda.ErrConflict, src.Ref(), *src.SupersededBy)
	}
	if in.Shift == "" {
		in.Shift = src.Shift
	}

	self := src.Ref()
	check, err := e.validator.CheckAvailability(ctx, agenda.SlotRequest{
		TechnicianID: src.TechnicianID,
		Date:         in.NewDate,
		Shift:        in.Shift,
		AllDay:       src.AllDay,
		Exclude:      &self,
	})
	if err != nil {
		return agenda.Record{}, err
	}
	if err := check.Err(); err != nil {
		appLog.Info("reschedule rejected", "ref", self, "date", in.NewDate, "shift", in.Shift, "reason", check.Message)
		return agenda.Record{}, err
	}

	rec, err := e.repo.RescheduleVisit(ctx, in)
	if err != nil {
		if errors.Is(err, agenda.ErrConflict) || errors.Is(err, agenda.ErrNotFound) {
			// Someone else got there first; show the current state.
			e.settle(ctx, src.TechnicianID, src.Date, in.NewDate)
		}
		return agenda.Record{}, fmt.Errorf("failed to reschedule %s: %w", self, err)
	}
	appLog.Info("visit rescheduled", "from", self, "to", rec.Ref(), "date", rec.Date, "shift", rec.Shift, "degraded_check", check.Degraded)
	e.settle(ctx, src.TechnicianID, src.Date, rec.Date)
	return rec, nil
}
