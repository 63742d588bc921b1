package present

import (
	"context"
	"strings"
	"sync"

	"agenda-service/internal/agenda"
	"agenda-service/internal/scheduling"
)

// Row is one line of the list view.
type Row struct {
	Ref          agenda.RecordRef
	Kind         agenda.Kind
	Date         agenda.Date
	Shift        agenda.Shift
	AllDay       bool
	Title        string
	TechnicianID string
	Responsible  string
	Unit         string
	Client       string
	// Note is the reschedule origin or the superseding record, if any.
	Note string
}

// Rows maps records to list rows, keeping their order.
func Rows(recs []agenda.Record) []Row {
	out := make([]Row, 0, len(recs))
	for _, r := range recs {
		row := Row{
			Ref:          r.Ref(),
			Kind:         r.Kind,
			Date:         r.Date,
			Shift:        agenda.NormalizeShift(r.Shift),
			AllDay:       r.AllDay,
			Title:        r.Title,
			TechnicianID: r.TechnicianID,
		}
		switch {
		case r.Event != nil:
			row.Client = r.Event.ClientName
		case r.Visit != nil:
			row.Responsible = r.Visit.ResponsibleName
			row.Unit = r.Visit.UnitName
		}
		if r.Reschedule != nil {
			row.Note = "from " + r.Reschedule.OriginalVisitDate.String()
			if r.Reschedule.Reason != "" {
				row.Note += ": " + r.Reschedule.Reason
			}
		}
		if r.SupersededBy != nil {
			row.Note = "moved to " + r.SupersededBy.String()
		}
		out = append(out, row)
	}
	return out
}

// List is the tabular view of the agenda store. Its responsible filter is
// applied by the repository, not here.
type List struct {
	store *scheduling.AgendaStore

	mu          sync.RWMutex
	rows        []Row
	unsubscribe func()
}

func NewList(store *scheduling.AgendaStore) *List {
	l := &List{store: store}
	l.render(store.Snapshot())
	l.unsubscribe = store.Subscribe(l.render)
	return l
}

func (l *List) render(s scheduling.Snapshot) {
	rows := Rows(s.Records)
	l.mu.Lock()
	l.rows = rows
	l.mu.Unlock()
}

func (l *List) Rows() []Row {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rows
}

// Responsible returns the active responsible-person filter.
func (l *List) Responsible() string {
	return l.store.Query().Responsible
}

// SetResponsible forwards a responsible-person filter to the agenda query
// and refreshes. An empty name clears it.
func (l *List) SetResponsible(ctx context.Context, name string) error {
	q := l.store.Query()
	q.Responsible = strings.TrimSpace(name)
	return l.store.SetQuery(ctx, q)
}

func (l *List) Close() {
	if l.unsubscribe != nil {
		l.unsubscribe()
	}
}
