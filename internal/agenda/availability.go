package agenda

import (
	"fmt"
	"time"
)

// DayAvailability is the busy state of one date of a technician's agenda.
type DayAvailability struct {
	Date          Date `json:"date"`
	MorningBusy   bool `json:"morning_busy"`
	AfternoonBusy bool `json:"afternoon_busy"`
	FullDayBusy   bool `json:"full_day_busy"`
}

// ShiftBusy reports whether the given shift is taken, counting full-day commitments.
func (d DayAvailability) ShiftBusy(s Shift) bool {
	if d.FullDayBusy {
		return true
	}
	switch NormalizeShift(s) {
	case ShiftAfternoon:
		return d.AfternoonBusy
	default:
		return d.MorningBusy
	}
}

func (d *DayAvailability) mark(r Record) {
	if r.AllDay {
		d.MorningBusy, d.AfternoonBusy, d.FullDayBusy = true, true, true
		return
	}
	switch NormalizeShift(r.Shift) {
	case ShiftAfternoon:
		d.AfternoonBusy = true
	default:
		d.MorningBusy = true
	}
	if d.MorningBusy && d.AfternoonBusy {
		d.FullDayBusy = true
	}
}

// BuildMonth aggregates records into one DayAvailability per day of the month,
// in day order. Records outside the month and superseded visits are ignored.
// Events count: the month view shows every commitment.
func BuildMonth(year int, month time.Month, records []Record) []DayAvailability {
	days := make([]DayAvailability, DaysIn(year, month))
	for i := range days {
		days[i].Date = Date{Year: year, Month: month, Day: i + 1}
	}
	for _, r := range records {
		if r.SupersededBy != nil || !r.Date.InMonth(year, month) {
			continue
		}
		days[r.Date.Day-1].mark(r)
	}
	return days
}

// SlotRequest asks whether a technician can take a visit on (Date, Shift).
type SlotRequest struct {
	TechnicianID string
	Date         Date
	Shift        Shift
	// AllDay requests both shifts.
	AllDay bool
	// Exclude is the record being moved; it never blocks itself.
	Exclude *RecordRef
}

// CheckResult is the outcome of an availability check.
type CheckResult struct {
	Blocked bool   `json:"blocked"`
	Message string `json:"message,omitempty"`
	// Occupant is the record holding the slot when Blocked.
	Occupant *RecordRef `json:"occupant,omitempty"`
	// Degraded is set when the store could not be consulted and the
	// result is an assumption rather than an answer.
	Degraded bool `json:"degraded,omitempty"`
}

// Err converts a blocked result into an ErrConflict error.
func (c CheckResult) Err() error {
	if !c.Blocked {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConflict, c.Message)
}

// CheckSlot evaluates req against records. Only visit-kind records that still
// occupy their slot count; events never block a visit.
func CheckSlot(req SlotRequest, records []Record) CheckResult {
	shift := NormalizeShift(req.Shift)
	var (
		day        DayAvailability
		byShift    = map[Shift]RecordRef{}
		allDayHold *RecordRef
	)
	for _, r := range records {
		if !r.Occupies() || r.Date != req.Date {
			continue
		}
		if req.TechnicianID != "" && r.TechnicianID != req.TechnicianID {
			continue
		}
		if req.Exclude != nil && r.Ref() == *req.Exclude {
			continue
		}
		day.mark(r)
		ref := r.Ref()
		if r.AllDay {
			if allDayHold == nil {
				allDayHold = &ref
			}
			continue
		}
		if _, ok := byShift[NormalizeShift(r.Shift)]; !ok {
			byShift[NormalizeShift(r.Shift)] = ref
		}
	}

	switch {
	case day.FullDayBusy:
		occ := allDayHold
		if occ == nil {
			ref := byShift[shift]
			occ = &ref
		}
		return CheckResult{
			Blocked:  true,
			Message:  fmt.Sprintf("%s is already fully booked", req.Date),
			Occupant: occ,
		}
	case req.AllDay && (day.MorningBusy || day.AfternoonBusy):
		ref, ok := byShift[ShiftMorning]
		if !ok {
			ref = byShift[ShiftAfternoon]
		}
		return CheckResult{
			Blocked:  true,
			Message:  fmt.Sprintf("%s already has a booked shift", req.Date),
			Occupant: &ref,
		}
	case day.ShiftBusy(shift):
		ref := byShift[shift]
		return CheckResult{
			Blocked:  true,
			Message:  fmt.Sprintf("%s shift on %s is already booked", shift.Label(), req.Date),
			Occupant: &ref,
		}
	}
	return CheckResult{}
}
