package scheduling

import (
	"context"
	"errors"
	"sync"
	"time"

	"agenda-service/internal/agenda"
	appLog "agenda-service/internal/log"
)

// RecordLister reads agenda records.
type RecordLister interface {
	ListRecords(ctx context.Context, q agenda.Query) ([]agenda.Record, error)
}

// Snapshot is one consistent read of the agenda. Records are kept from the
// previous successful read when a refresh fails; Err then carries the failure.
type Snapshot struct {
	Query     agenda.Query
	Records   []agenda.Record
	Err       error
	Version   uint64
	FetchedAt time.Time
}

var errStoreClosed = errors.New("agenda store closed")

// AgendaStore is the single source of truth both the calendar and the list
// render from. Every refresh publishes one snapshot to all subscribers.
type AgendaStore struct {
	repo RecordLister

	mu     sync.Mutex
	query  agenda.Query
	snap   Snapshot
	seq    uint64
	subs   map[int]func(Snapshot)
	nextID int
	closed bool
}

func NewAgendaStore(repo RecordLister, q agenda.Query) *AgendaStore {
	return &AgendaStore{
		repo:  repo,
		query: q,
		snap:  Snapshot{Query: q},
		subs:  make(map[int]func(Snapshot)),
	}
}

// Snapshot returns the latest published snapshot.
func (s *AgendaStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *AgendaStore) Query() agenda.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Subscribe registers fn to be called with every new snapshot. The returned
// function removes the subscription.
func (s *AgendaStore) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// SetQuery replaces the agenda query and refreshes.
func (s *AgendaStore) SetQuery(ctx context.Context, q agenda.Query) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errStoreClosed
	}
	s.query = q
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// Refresh re-reads the agenda and publishes the result. A result that
// arrives after a newer refresh started, or after Close, is discarded.
func (s *AgendaStore) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errStoreClosed
	}
	s.seq++
	seq, q := s.seq, s.query
	s.mu.Unlock()

	recs, err := s.repo.ListRecords(ctx, q)

	s.mu.Lock()
	if s.closed || seq != s.seq {
		s.mu.Unlock()
		appLog.Debug("discarding stale agenda read", "seq", seq)
		return err
	}
	next := Snapshot{Query: q, Records: recs, Err: err, Version: s.snap.Version + 1, FetchedAt: time.Now()}
	if err != nil {
		next.Records = s.snap.Records
	}
	s.snap = next
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return err
}

// Close stops publishing. In-flight reads complete but their results are dropped.
func (s *AgendaStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	clear(s.subs)
}
