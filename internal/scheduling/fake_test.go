package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agenda-service/internal/agenda"
)

// fakeRepo is an in-memory agenda repository and availability source.
type fakeRepo struct {
	mu      sync.Mutex
	records map[agenda.RecordRef]agenda.Record
	nextID  map[agenda.Kind]int64

	// errs forces the named method to fail.
	errs map[string]error
	// calls counts invocations per method.
	calls map[string]int
	// hold, when set, blocks RescheduleVisit until it is closed.
	hold    chan struct{}
	entered chan struct{}
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records: make(map[agenda.RecordRef]agenda.Record),
		nextID:  map[agenda.Kind]int64{},
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeRepo) enter(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.errs[method]
}

func (f *fakeRepo) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeRepo) fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = err
}

func (f *fakeRepo) put(r agenda.Record) agenda.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ReferenceID == 0 {
		f.nextID[r.Kind]++
		r.ReferenceID = f.nextID[r.Kind]
	} else if r.ReferenceID > f.nextID[r.Kind] {
		f.nextID[r.Kind] = r.ReferenceID
	}
	r.Normalize()
	f.records[r.Ref()] = r
	return r
}

func (f *fakeRepo) seedVisit(id int64, tech string, date agenda.Date, shift agenda.Shift) agenda.Record {
	return f.put(agenda.Record{
		Kind:         agenda.KindVisit,
		ReferenceID:  id,
		TechnicianID: tech,
		Title:        fmt.Sprintf("Visit %d", id),
		Date:         date,
		Shift:        shift,
		Visit:        &agenda.VisitDetails{},
	})
}

func (f *fakeRepo) seedEvent(id int64, tech string, date agenda.Date, shift agenda.Shift) agenda.Record {
	return f.put(agenda.Record{
		Kind:         agenda.KindEvent,
		ReferenceID:  id,
		TechnicianID: tech,
		Title:        fmt.Sprintf("Event %d", id),
		Date:         date,
		Shift:        shift,
		Event:        &agenda.EventDetails{},
	})
}

func (f *fakeRepo) all() []agenda.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]agenda.Record, 0, len(f.records))
	for _, r := range f.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Ref().String() < out[j].Ref().String()
	})
	return out
}

func (f *fakeRepo) ListRecords(ctx context.Context, q agenda.Query) ([]agenda.Record, error) {
	if err := f.enter("ListRecords"); err != nil {
		return nil, err
	}
	var out []agenda.Record
	for _, r := range f.all() {
		if !q.Fleet && q.TechnicianID != "" && r.TechnicianID != q.TechnicianID {
			continue
		}
		if r.SupersededBy != nil && !q.IncludeSuperseded {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRepo) GetRecord(ctx context.Context, ref agenda.RecordRef) (agenda.Record, error) {
	if err := f.enter("GetRecord"); err != nil {
		return agenda.Record{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[ref]
	if !ok {
		return agenda.Record{}, fmt.Errorf("%w: %s", agenda.ErrNotFound, ref)
	}
	return r, nil
}

func (f *fakeRepo) CreateEvent(ctx context.Context, in agenda.EventInput) (agenda.Record, error) {
	if err := f.enter("CreateEvent"); err != nil {
		return agenda.Record{}, err
	}
	tech := in.TechnicianID
	if tech == "" {
		tech = "tech-1"
	}
	return f.put(agenda.Record{
		Kind:         agenda.KindEvent,
		TechnicianID: tech,
		Title:        in.Title,
		Description:  in.Description,
		Date:         in.Date,
		Shift:        in.Shift,
		AllDay:       in.AllDay,
		Event:        &agenda.EventDetails{ClientName: in.ClientName},
	}), nil
}

func (f *fakeRepo) UpdateEvent(ctx context.Context, id int64, in agenda.EventInput) (agenda.Record, error) {
	if err := f.enter("UpdateEvent"); err != nil {
		return agenda.Record{}, err
	}
	ref := agenda.RecordRef{Kind: agenda.KindEvent, ID: id}
	f.mu.Lock()
	r, ok := f.records[ref]
	f.mu.Unlock()
	if !ok {
		return agenda.Record{}, fmt.Errorf("%w: %s", agenda.ErrNotFound, ref)
	}
	r.Title, r.Date, r.Shift, r.AllDay = in.Title, in.Date, in.Shift, in.AllDay
	return f.put(r), nil
}

func (f *fakeRepo) DeleteRecord(ctx context.Context, ref agenda.RecordRef) error {
	if err := f.enter("DeleteRecord"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[ref]; !ok {
		return fmt.Errorf("%w: %s", agenda.ErrNotFound, ref)
	}
	delete(f.records, ref)
	return nil
}

func (f *fakeRepo) RescheduleVisit(ctx context.Context, in agenda.RescheduleInput) (agenda.Record, error) {
	if err := f.enter("RescheduleVisit"); err != nil {
		return agenda.Record{}, err
	}
	if f.hold != nil {
		close(f.entered)
		<-f.hold
	}
	src, err := f.GetRecord(ctx, in.Source)
	if err != nil {
		return agenda.Record{}, err
	}
	root := src.ReferenceID
	if src.Reschedule != nil {
		root = src.Reschedule.RootVisitID
	}
	rec := f.put(agenda.Record{
		Kind:         agenda.KindVisitRescheduled,
		TechnicianID: src.TechnicianID,
		Title:        src.Title,
		Date:         in.NewDate,
		Shift:        in.Shift,
		Visit:        src.Visit,
		Reschedule: &agenda.RescheduleDetails{
			SourceVisitID:     src.ReferenceID,
			SourceKind:        src.Kind,
			OriginalVisitDate: src.Date,
			OriginalShift:     src.Shift,
			RootVisitID:       root,
			Reason:            in.Reason,
		},
	})
	ref := rec.Ref()
	src.SupersededBy = &ref
	f.put(src)
	return rec, nil
}

func (f *fakeRepo) CheckSlot(ctx context.Context, req agenda.SlotRequest) (agenda.CheckResult, error) {
	if err := f.enter("CheckSlot"); err != nil {
		return agenda.CheckResult{}, err
	}
	return agenda.CheckSlot(req, f.all()), nil
}

func (f *fakeRepo) MonthAvailability(ctx context.Context, technicianID string, year int, month time.Month) ([]agenda.DayAvailability, error) {
	if err := f.enter("MonthAvailability"); err != nil {
		return nil, err
	}
	var recs []agenda.Record
	for _, r := range f.all() {
		if technicianID == "" || r.TechnicianID == technicianID {
			recs = append(recs, r)
		}
	}
	return agenda.BuildMonth(year, month, recs), nil
}

func date(y int, m time.Month, d int) agenda.Date {
	return agenda.Date{Year: y, Month: m, Day: d}
}

// newTestEngine wires an engine over repo for technician tech-1.
func newTestEngine(repo *fakeRepo) *Engine {
	store := NewAgendaStore(repo, agenda.Query{TechnicianID: "tech-1"})
	return NewEngine(repo, NewValidator(repo, repo), NewAggregator(repo), store)
}
