// Package scheduling holds the client-side scheduling engine: conflict
// validation, the cached month availability view, the shared agenda store
// both presentation adapters render from, and the engine that sequences
// mutations against the agenda repository.
package scheduling

import (
	"context"
	"errors"
	"fmt"

	"agenda-service/internal/agenda"
	appLog "agenda-service/internal/log"
)

// SlotChecker answers availability questions for a single slot.
type SlotChecker interface {
	CheckSlot(ctx context.Context, req agenda.SlotRequest) (agenda.CheckResult, error)
}

// RecordGetter loads one record by reference.
type RecordGetter interface {
	GetRecord(ctx context.Context, ref agenda.RecordRef) (agenda.Record, error)
}

// Validator decides whether a visit may take a (date, shift) slot.
type Validator struct {
	slots   SlotChecker
	records RecordGetter
}

func NewValidator(slots SlotChecker, records RecordGetter) *Validator {
	return &Validator{slots: slots, records: records}
}

// ParseSlot validates the textual form of a slot. An empty shift is MORNING.
func ParseSlot(date, shift string) (agenda.Date, agenda.Shift, error) {
	d, err := agenda.ParseDate(date)
	if err != nil {
		return agenda.Date{}, "", err
	}
	s, err := agenda.ParseShift(shift)
	if err != nil {
		return agenda.Date{}, "", err
	}
	return d, s, nil
}

func checkInput(req *agenda.SlotRequest) error {
	if req.Date.IsZero() {
		return fmt.Errorf("%w: date is required", agenda.ErrValidation)
	}
	shift, err := agenda.ParseShift(string(req.Shift))
	if err != nil {
		return err
	}
	req.Shift = shift
	return nil
}

// CheckAvailability is the advisory check used before a reschedule. A taken
// slot is reported in the result, not as an error. When the store cannot be
// reached the slot is assumed free and the result is marked Degraded; the
// service re-checks authoritatively when the change is committed.
func (v *Validator) CheckAvailability(ctx context.Context, req agenda.SlotRequest) (agenda.CheckResult, error) {
	if err := checkInput(&req); err != nil {
		return agenda.CheckResult{}, err
	}
	res, err := v.slots.CheckSlot(ctx, req)
	if err != nil {
		if errors.Is(err, agenda.ErrUnavailable) {
			appLog.Warn("availability check failed, assuming slot is free",
				"date", req.Date, "shift", req.Shift, "error", err)
			return agenda.CheckResult{Degraded: true}, nil
		}
		return agenda.CheckResult{}, err
	}
	return res, nil
}

// ValidateReportSubmission checks that visitID may be reported on (date,
// shift). It is strict: a taken slot is ErrConflict and a store failure is
// returned as is.
func (v *Validator) ValidateReportSubmission(ctx context.Context, visitID int64, date agenda.Date, shift agenda.Shift) error {
	if visitID <= 0 {
		return fmt.Errorf("%w: visit id is required", agenda.ErrValidation)
	}
	ref := agenda.RecordRef{Kind: agenda.KindVisit, ID: visitID}
	req := agenda.SlotRequest{Date: date, Shift: shift, Exclude: &ref}
	if err := checkInput(&req); err != nil {
		return err
	}

	visit, err := v.records.GetRecord(ctx, ref)
	if err != nil {
		return err
	}
	req.TechnicianID = visit.TechnicianID
	req.AllDay = visit.AllDay
	// A rescheduled visit is reported against the current head of its chain.
	exclude := ref
	for cur := visit; cur.SupersededBy != nil; {
		next, err := v.records.GetRecord(ctx, *cur.SupersededBy)
		if err != nil {
			return err
		}
		exclude = next.Ref()
		cur = next
	}
	req.Exclude = &exclude

	res, err := v.slots.CheckSlot(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to validate report: %w", err)
	}
	return res.Err()
}
