package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"agenda-service/internal/agenda"
)

const (
	eventColumns = `e.id, e.technician_id, e.title, e.description, e.date, e.shift, e.all_day,
		e.client_name, e.created_at`

	visitColumns = `v.id, v.technician_id, v.title, v.description, v.date, v.shift, v.all_day,
		v.unit_name, v.sector_name, v.responsible_name, v.next_visit_date, v.next_visit_shift,
		v.created_at, s.id`

	rescheduleColumns = `r.id, r.technician_id, v.title, v.description, r.date, r.shift, r.all_day,
		v.unit_name, v.sector_name, v.responsible_name, v.next_visit_date, v.next_visit_shift,
		r.created_at, n.id, r.source_kind, r.source_id, r.original_date, r.original_shift,
		r.root_visit_id, r.reason`

	selectEvents = `SELECT ` + eventColumns + ` FROM events e WHERE 1=1`

	selectVisits = `SELECT ` + visitColumns + ` FROM visits v
		LEFT JOIN visit_reschedules s ON s.source_kind = 'VISIT' AND s.source_id = v.id
		WHERE 1=1`

	selectReschedules = `SELECT ` + rescheduleColumns + ` FROM visit_reschedules r
		JOIN visits v ON v.id = r.root_visit_id
		LEFT JOIN visit_reschedules n ON n.source_kind = 'VISIT_RESCHEDULED' AND n.source_id = r.id
		WHERE 1=1`
)

// filter accumulates WHERE clauses with numbered placeholders.
type filter struct {
	where []string
	args  []any
}

func (f *filter) arg(v any) string {
	f.args = append(f.args, v)
	return fmt.Sprintf("$%d", len(f.args))
}

func (f *filter) add(clause string) {
	f.where = append(f.where, clause)
}

func (f *filter) sql(base, order string) string {
	q := base
	for _, w := range f.where {
		q += " AND " + w
	}
	return q + " ORDER BY " + order
}

// buildFilter applies q to a table aliased as alias. supersededCol is empty for
// tables whose rows never get superseded.
func buildFilter(q agenda.Query, alias, responsibleCol, supersededCol string) *filter {
	f := &filter{}
	if !q.Fleet {
		f.add(alias + ".technician_id = " + f.arg(q.TechnicianID))
	}
	if !q.From.IsZero() {
		f.add(alias + ".date >= " + f.arg(q.From.String()))
	}
	if !q.To.IsZero() {
		f.add(alias + ".date <= " + f.arg(q.To.String()))
	}
	if len(q.IDs) > 0 {
		ph := make([]string, len(q.IDs))
		for i, id := range q.IDs {
			ph[i] = f.arg(id)
		}
		f.add(alias + ".id IN (" + strings.Join(ph, ", ") + ")")
	}
	if q.Responsible != "" && responsibleCol != "" {
		f.add(`LOWER(COALESCE(` + responsibleCol + `, '')) LIKE ` +
			f.arg("%"+escapeLike(strings.ToLower(q.Responsible))+"%") + ` ESCAPE '\'`)
	}
	if !q.IncludeSuperseded && supersededCol != "" {
		f.add(supersededCol + " IS NULL")
	}
	return f
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListRecords returns the records matching q ordered by date, shift, kind and id.
func (s *Store) ListRecords(ctx context.Context, q agenda.Query) ([]agenda.Record, error) {
	return s.listRecords(ctx, s.b, q)
}

func (s *Store) listRecords(ctx context.Context, c conn, q agenda.Query) ([]agenda.Record, error) {
	q = q.Effective()
	if !q.Fleet && q.TechnicianID == "" {
		return nil, fmt.Errorf("%w: technician is required unless reading the whole fleet", agenda.ErrValidation)
	}

	var out []agenda.Record
	// Events have no responsible person, so a responsible filter excludes them.
	if q.Responsible == "" {
		events, err := s.listKind(ctx, c, agenda.KindEvent, q)
		if err != nil {
			return nil, err
		}
		out = append(out, events...)
	}
	for _, kind := range []agenda.Kind{agenda.KindVisit, agenda.KindVisitRescheduled} {
		recs, err := s.listKind(ctx, c, kind, q)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	sortRecords(out)
	return out, nil
}

func (s *Store) listKind(ctx context.Context, c conn, kind agenda.Kind, q agenda.Query) ([]agenda.Record, error) {
	switch kind {
	case agenda.KindEvent:
		f := buildFilter(q, "e", "", "")
		return s.collect(ctx, c, f.sql(selectEvents, "e.date, e.id"), f.args, scanEvent, "list events")
	case agenda.KindVisit:
		f := buildFilter(q, "v", "v.responsible_name", "s.id")
		return s.collect(ctx, c, f.sql(selectVisits, "v.date, v.id"), f.args, scanVisit, "list visits")
	case agenda.KindVisitRescheduled:
		f := buildFilter(q, "r", "v.responsible_name", "n.id")
		return s.collect(ctx, c, f.sql(selectReschedules, "r.date, r.id"), f.args, scanReschedule, "list rescheduled visits")
	default:
		return nil, fmt.Errorf("%w: unknown record kind %q", agenda.ErrValidation, kind)
	}
}

func (s *Store) collect(ctx context.Context, c conn, query string, args []any, scan func(row) (agenda.Record, error), what string) ([]agenda.Record, error) {
	rs, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, s.mapErr(err, what)
	}
	defer rs.Close()

	var out []agenda.Record
	for rs.Next() {
		rec, err := scan(rs)
		if err != nil {
			return nil, s.mapErr(err, what)
		}
		out = append(out, rec)
	}
	if err := rs.Err(); err != nil {
		return nil, s.mapErr(err, what)
	}
	return out, nil
}

var (
	shiftOrder = map[agenda.Shift]int{agenda.ShiftMorning: 0, agenda.ShiftAfternoon: 1}
	kindOrder  = map[agenda.Kind]int{agenda.KindVisit: 0, agenda.KindVisitRescheduled: 1, agenda.KindEvent: 2}
)

func sortRecords(recs []agenda.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if shiftOrder[a.Shift] != shiftOrder[b.Shift] {
			return shiftOrder[a.Shift] < shiftOrder[b.Shift]
		}
		if kindOrder[a.Kind] != kindOrder[b.Kind] {
			return kindOrder[a.Kind] < kindOrder[b.Kind]
		}
		return a.ReferenceID < b.ReferenceID
	})
}

// GetRecord loads one record, superseded or not.
func (s *Store) GetRecord(ctx context.Context, ref agenda.RecordRef) (agenda.Record, error) {
	return s.getRecord(ctx, s.b, ref)
}

func (s *Store) getRecord(ctx context.Context, c conn, ref agenda.RecordRef) (agenda.Record, error) {
	recs, err := s.listKind(ctx, c, ref.Kind, agenda.Query{
		Fleet:             true,
		IDs:               []int64{ref.ID},
		IncludeSuperseded: true,
	})
	if err != nil {
		return agenda.Record{}, err
	}
	if len(recs) == 0 {
		return agenda.Record{}, fmt.Errorf("%w: %s", agenda.ErrNotFound, ref)
	}
	return recs[0], nil
}

// Lineage returns the reschedule chain containing ref, from the original
// visit to the current head.
func (s *Store) Lineage(ctx context.Context, ref agenda.RecordRef) ([]agenda.Record, error) {
	if !ref.Kind.IsVisit() {
		return nil, fmt.Errorf("%w: only visits have a lineage", agenda.ErrValidation)
	}
	start, err := s.GetRecord(ctx, ref)
	if err != nil {
		return nil, err
	}

	chain := []agenda.Record{start}
	for cur := start; cur.Reschedule != nil; {
		prev, err := s.GetRecord(ctx, cur.Reschedule.Source())
		if err != nil {
			return nil, err
		}
		chain = append([]agenda.Record{prev}, chain...)
		cur = prev
	}
	for cur := start; cur.SupersededBy != nil; {
		next, err := s.GetRecord(ctx, *cur.SupersededBy)
		if err != nil {
			return nil, err
		}
		chain = append(chain, next)
		cur = next
	}
	return chain, nil
}

// CheckSlot reports whether req can be booked against the visits currently
// holding the technician's slots on that date.
func (s *Store) CheckSlot(ctx context.Context, req agenda.SlotRequest) (agenda.CheckResult, error) {
	return s.checkSlot(ctx, s.b, req)
}

func (s *Store) checkSlot(ctx context.Context, c conn, req agenda.SlotRequest) (agenda.CheckResult, error) {
	if req.TechnicianID == "" || req.Date.IsZero() {
		return agenda.CheckResult{}, fmt.Errorf("%w: technician and date are required", agenda.ErrValidation)
	}
	recs, err := s.listRecords(ctx, c, agenda.Query{
		TechnicianID: req.TechnicianID,
		From:         req.Date,
		To:           req.Date,
	})
	if err != nil {
		return agenda.CheckResult{}, err
	}
	return agenda.CheckSlot(req, recs), nil
}

// MonthAvailability aggregates a technician's month into per-day busy flags.
func (s *Store) MonthAvailability(ctx context.Context, technicianID string, year int, month time.Month) ([]agenda.DayAvailability, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: invalid month %d", agenda.ErrValidation, month)
	}
	first := agenda.Date{Year: year, Month: month, Day: 1}
	last := agenda.Date{Year: year, Month: month, Day: agenda.DaysIn(year, month)}
	recs, err := s.ListRecords(ctx, agenda.Query{TechnicianID: technicianID, From: first, To: last})
	if err != nil {
		return nil, err
	}
	return agenda.BuildMonth(year, month, recs), nil
}

func scanEvent(r row) (agenda.Record, error) {
	var (
		rec                        agenda.Record
		description, shift, client sql.NullString
	)
	err := r.Scan(&rec.ReferenceID, &rec.TechnicianID, &rec.Title, &description, &rec.Date,
		&shift, &rec.AllDay, &client, &rec.CreatedAt)
	if err != nil {
		return agenda.Record{}, err
	}
	rec.Kind = agenda.KindEvent
	rec.Description = description.String
	rec.Shift = agenda.Shift(shift.String)
	rec.Event = &agenda.EventDetails{ClientName: client.String}
	rec.Normalize()
	return rec, nil
}

// visitFields are the columns shared by visits and reschedules.
type visitFields struct {
	description, shift, unit, sector, responsible, nextShift sql.NullString
	nextDate                                                 agenda.NullDate
	supersededBy                                             sql.NullInt64
}

func (v *visitFields) dest(rec *agenda.Record) []any {
	return []any{&rec.ReferenceID, &rec.TechnicianID, &rec.Title, &v.description, &rec.Date,
		&v.shift, &rec.AllDay, &v.unit, &v.sector, &v.responsible, &v.nextDate, &v.nextShift,
		&rec.CreatedAt, &v.supersededBy}
}

func (v *visitFields) apply(rec *agenda.Record, supersededKind agenda.Kind) {
	rec.Description = v.description.String
	rec.Shift = agenda.Shift(v.shift.String)
	rec.Visit = &agenda.VisitDetails{
		UnitName:        v.unit.String,
		SectorName:      v.sector.String,
		ResponsibleName: v.responsible.String,
		NextVisitDate:   v.nextDate.Ptr(),
		NextVisitShift:  agenda.Shift(v.nextShift.String),
	}
	if v.supersededBy.Valid {
		rec.SupersededBy = &agenda.RecordRef{Kind: supersededKind, ID: v.supersededBy.Int64}
	}
}

func scanVisit(r row) (agenda.Record, error) {
	var (
		rec agenda.Record
		v   visitFields
	)
	if err := r.Scan(v.dest(&rec)...); err != nil {
		return agenda.Record{}, err
	}
	rec.Kind = agenda.KindVisit
	v.apply(&rec, agenda.KindVisitRescheduled)
	rec.Normalize()
	return rec, nil
}

func scanReschedule(r row) (agenda.Record, error) {
	var (
		rec    agenda.Record
		v      visitFields
		rd     agenda.RescheduleDetails
		kind   string
		origSh string
		reason sql.NullString
	)
	dest := append(v.dest(&rec), &kind, &rd.SourceVisitID, &rd.OriginalVisitDate, &origSh,
		&rd.RootVisitID, &reason)
	if err := r.Scan(dest...); err != nil {
		return agenda.Record{}, err
	}
	rec.Kind = agenda.KindVisitRescheduled
	v.apply(&rec, agenda.KindVisitRescheduled)
	rd.SourceKind = agenda.Kind(kind)
	rd.OriginalShift = agenda.Shift(origSh)
	rd.Reason = reason.String
	rec.Reschedule = &rd
	rec.Normalize()
	return rec, nil
}
