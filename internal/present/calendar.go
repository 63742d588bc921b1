// Package present turns agenda snapshots into what the calendar and list
// views show, and turns user interactions back into engine operations.
package present

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"agenda-service/internal/agenda"
	"agenda-service/internal/scheduling"
)

// ColorKey is the colour token of a calendar entry.
type ColorKey string

const (
	ColorEvent       ColorKey = "event"
	ColorVisit       ColorKey = "visit"
	ColorRescheduled ColorKey = "visit-rescheduled"
)

// ColorFor maps a record kind to its fixed colour token.
func ColorFor(k agenda.Kind) ColorKey {
	switch k {
	case agenda.KindVisit:
		return ColorVisit
	case agenda.KindVisitRescheduled:
		return ColorRescheduled
	default:
		return ColorEvent
	}
}

// CalendarEntry is one renderable item of the calendar view.
type CalendarEntry struct {
	ID       string
	Title    string
	Start    agenda.Date
	ColorKey ColorKey
	Record   agenda.Record
}

// EntryTitle is the record title with its shift appended, e.g. "Q4 Review (Morning)".
func EntryTitle(r agenda.Record) string {
	if r.AllDay {
		return r.Title + " (All day)"
	}
	if label := agenda.NormalizeShift(r.Shift).Label(); label != "" {
		return r.Title + " (" + label + ")"
	}
	return r.Title
}

// CalendarEntries maps records to calendar entries, keeping their order.
// Superseded visits are left out; they no longer hold a place on the calendar.
func CalendarEntries(recs []agenda.Record) []CalendarEntry {
	out := make([]CalendarEntry, 0, len(recs))
	for _, r := range recs {
		if r.SupersededBy != nil {
			continue
		}
		out = append(out, CalendarEntry{
			ID:       r.Ref().String(),
			Title:    EntryTitle(r),
			Start:    r.Date,
			ColorKey: ColorFor(r.Kind),
			Record:   r,
		})
	}
	return out
}

// Action is what an interaction proposes to do.
type Action int

const (
	ActionCreateEvent Action = iota
	ActionEditEvent
	ActionRescheduleVisit
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreateEvent:
		return "create event"
	case ActionEditEvent:
		return "edit event"
	case ActionRescheduleVisit:
		return "reschedule visit"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Intent is a proposed change. It is only applied through Dispatch.
type Intent struct {
	Action Action
	// Date is the target date: the selected day, the drop day, or the
	// entry's current date.
	Date agenda.Date
	// Target is the entry acted on; nil when creating.
	Target *agenda.Record
}

// SelectDate proposes creating an event on an empty day.
func SelectDate(d agenda.Date) Intent {
	return Intent{Action: ActionCreateEvent, Date: d}
}

// ClickEntry proposes editing an event or rescheduling a visit.
func ClickEntry(e CalendarEntry) Intent {
	rec := e.Record
	if rec.Kind.IsVisit() {
		return Intent{Action: ActionRescheduleVisit, Date: rec.Date, Target: &rec}
	}
	return Intent{Action: ActionEditEvent, Date: rec.Date, Target: &rec}
}

// DropEntry proposes moving an entry to another day: a reschedule for
// visits, a date-only edit for events.
func DropEntry(e CalendarEntry, to agenda.Date) Intent {
	in := ClickEntry(e)
	in.Date = to
	return in
}

// DeleteEntry proposes removing an entry.
func DeleteEntry(e CalendarEntry) Intent {
	rec := e.Record
	return Intent{Action: ActionDelete, Date: rec.Date, Target: &rec}
}

// Details are the form values confirmed with an intent. When editing, empty
// strings and nil pointers keep the target's current values; a non-nil
// pointer sets the field, including to its zero value.
type Details struct {
	TechnicianID string
	Title        string
	Description  *string
	Shift        agenda.Shift
	AllDay       *bool
	ClientName   string
	Reason       string
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Calendar keeps calendar entries in step with the agenda store and
// dispatches interactions to the engine.
type Calendar struct {
	engine *scheduling.Engine

	mu          sync.RWMutex
	entries     []CalendarEntry
	version     uint64
	unsubscribe func()
}

func NewCalendar(engine *scheduling.Engine) *Calendar {
	c := &Calendar{engine: engine}
	c.render(engine.Agenda().Snapshot())
	c.unsubscribe = engine.Agenda().Subscribe(c.render)
	return c
}

func (c *Calendar) render(s scheduling.Snapshot) {
	entries := CalendarEntries(s.Records)
	c.mu.Lock()
	c.entries, c.version = entries, s.Version
	c.mu.Unlock()
}

// Entries returns the entries of the latest snapshot.
func (c *Calendar) Entries() []CalendarEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries
}

// Version is the snapshot version the entries were built from.
func (c *Calendar) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Month returns the busy indicators for a month of technicianID's agenda.
func (c *Calendar) Month(ctx context.Context, technicianID string, year int, month time.Month) scheduling.MonthAvailability {
	return c.engine.Availability().Month(ctx, technicianID, year, month)
}

// Dispatch applies an intent through the engine. The returned record is
// the created or changed one; it is zero for deletes.
func (c *Calendar) Dispatch(ctx context.Context, in Intent, d Details) (agenda.Record, error) {
	switch in.Action {
	case ActionCreateEvent:
		return c.engine.CreateEvent(ctx, agenda.EventInput{
			TechnicianID: d.TechnicianID,
			Title:        d.Title,
			Description:  deref(d.Description),
			Date:         in.Date,
			Shift:        d.Shift,
			AllDay:       deref(d.AllDay),
			ClientName:   d.ClientName,
		})
	case ActionEditEvent:
		if in.Target == nil || in.Target.Kind != agenda.KindEvent {
			return agenda.Record{}, fmt.Errorf("%w: only events can be edited", agenda.ErrValidation)
		}
		return c.engine.UpdateEvent(ctx, in.Target.ReferenceID, mergeEvent(*in.Target, in.Date, d))
	case ActionRescheduleVisit:
		if in.Target == nil || !in.Target.Kind.IsVisit() {
			return agenda.Record{}, fmt.Errorf("%w: only visits can be rescheduled", agenda.ErrValidation)
		}
		return c.engine.RescheduleVisit(ctx, agenda.RescheduleInput{
			Source:  in.Target.Ref(),
			NewDate: in.Date,
			Shift:   d.Shift,
			Reason:  d.Reason,
		})
	case ActionDelete:
		if in.Target == nil {
			return agenda.Record{}, fmt.Errorf("%w: nothing to delete", agenda.ErrValidation)
		}
		return agenda.Record{}, c.engine.Delete(ctx, in.Target.Ref())
	default:
		return agenda.Record{}, fmt.Errorf("%w: unsupported action %s", agenda.ErrValidation, in.Action)
	}
}

func mergeEvent(cur agenda.Record, date agenda.Date, d Details) agenda.EventInput {
	in := agenda.EventInput{
		Title:       cur.Title,
		Description: cur.Description,
		Date:        date,
		Shift:       cur.Shift,
		AllDay:      cur.AllDay,
	}
	if cur.Event != nil {
		in.ClientName = cur.Event.ClientName
	}
	if t := strings.TrimSpace(d.Title); t != "" {
		in.Title = t
	}
	if d.Description != nil {
		in.Description = *d.Description
	}
	if d.AllDay != nil {
		in.AllDay = *d.AllDay
	}
	if d.Shift != "" {
		in.Shift = d.Shift
	}
	if d.ClientName != "" {
		in.ClientName = d.ClientName
	}
	return in
}

// Close stops following the agenda store.
func (c *Calendar) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}
