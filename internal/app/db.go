package app

import (
	"context"
	"time"

	"agenda-service/internal/agenda"
)

// Store is the persistence the handlers need. *store.Store implements it.
type Store interface {
	ListRecords(ctx context.Context, q agenda.Query) ([]agenda.Record, error)
	GetRecord(ctx context.Context, ref agenda.RecordRef) (agenda.Record, error)
	Lineage(ctx context.Context, ref agenda.RecordRef) ([]agenda.Record, error)
	CheckSlot(ctx context.Context, req agenda.SlotRequest) (agenda.CheckResult, error)
	MonthAvailability(ctx context.Context, technicianID string, year int, month time.Month) ([]agenda.DayAvailability, error)

	CreateEvent(ctx context.Context, technicianID string, in agenda.EventInput) (agenda.Record, error)
	UpdateEvent(ctx context.Context, id int64, in agenda.EventInput) (agenda.Record, error)
	DeleteRecord(ctx context.Context, ref agenda.RecordRef) error
	CreateVisit(ctx context.Context, in agenda.VisitInput) (agenda.Record, error)
	RescheduleVisit(ctx context.Context, in agenda.RescheduleInput) (agenda.Record, error)

	SaveCalendarToken(ctx context.Context, technicianID string, token []byte) error
	CalendarToken(ctx context.Context, technicianID string) ([]byte, error)
	ConnectedTechnicians(ctx context.Context) ([]string, error)
}

// ownedRecord loads ref and checks the caller may act on it.
func (a *App) ownedRecord(ctx context.Context, p agenda.Principal, ref agenda.RecordRef) (agenda.Record, error) {
	rec, err := a.Store.GetRecord(ctx, ref)
	if err != nil {
		return agenda.Record{}, err
	}
	if !p.CanActFor(rec.TechnicianID) {
		return agenda.Record{}, forbidden("%s belongs to another technician", ref)
	}
	return rec, nil
}
