package scheduling

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"agenda-service/internal/agenda"
	appLog "agenda-service/internal/log"
)

// AvailabilitySource fetches the per-day busy flags of a month.
type AvailabilitySource interface {
	MonthAvailability(ctx context.Context, technicianID string, year int, month time.Month) ([]agenda.DayAvailability, error)
}

// MonthAvailability is the result of a month lookup. On a failed fetch Days
// is empty and Err is set.
type MonthAvailability struct {
	Year  int
	Month time.Month
	Days  []agenda.DayAvailability
	Err   error
}

// Day returns the entry for d, or a free day if d is outside the month.
func (m MonthAvailability) Day(d agenda.Date) agenda.DayAvailability {
	if d.InMonth(m.Year, m.Month) && d.Day-1 < len(m.Days) {
		return m.Days[d.Day-1]
	}
	return agenda.DayAvailability{Date: d}
}

type monthKey struct {
	technicianID string
	year         int
	month        time.Month
}

func (k monthKey) String() string {
	return fmt.Sprintf("%s/%04d-%02d", k.technicianID, k.year, int(k.month))
}

// Aggregator caches month availability per (technician, year, month).
// Entries stay valid until Invalidate drops them; the engine invalidates
// every month a successful mutation touches.
type Aggregator struct {
	src AvailabilitySource

	mu    sync.Mutex
	cache map[monthKey][]agenda.DayAvailability
	// gen is bumped on invalidation so a fetch that started before it
	// does not repopulate the entry with stale data.
	gen map[monthKey]uint64
}

func NewAggregator(src AvailabilitySource) *Aggregator {
	return &Aggregator{
		src:   src,
		cache: make(map[monthKey][]agenda.DayAvailability),
		gen:   make(map[monthKey]uint64),
	}
}

// Month returns the availability of a month, fetching it on a cache miss.
// An empty technicianID means the caller's own agenda. Days is the caller's
// own copy.
func (a *Aggregator) Month(ctx context.Context, technicianID string, year int, month time.Month) MonthAvailability {
	key := monthKey{technicianID, year, month}

	a.mu.Lock()
	days, ok := a.cache[key]
	gen := a.gen[key]
	a.mu.Unlock()
	if ok {
		return MonthAvailability{Year: year, Month: month, Days: slices.Clone(days)}
	}
	return a.fetch(ctx, key, gen)
}

// Refresh drops the cached month and fetches it again.
func (a *Aggregator) Refresh(ctx context.Context, technicianID string, year int, month time.Month) MonthAvailability {
	key := monthKey{technicianID, year, month}

	a.mu.Lock()
	delete(a.cache, key)
	a.gen[key]++
	gen := a.gen[key]
	a.mu.Unlock()

	return a.fetch(ctx, key, gen)
}

func (a *Aggregator) fetch(ctx context.Context, key monthKey, gen uint64) MonthAvailability {
	out := MonthAvailability{Year: key.year, Month: key.month}
	days, err := a.src.MonthAvailability(ctx, key.technicianID, key.year, key.month)
	if err != nil {
		appLog.Warn("month availability fetch failed", "month", key, "error", err)
		out.Err = fmt.Errorf("failed to load availability for %04d-%02d: %w", key.year, int(key.month), err)
		return out
	}

	a.mu.Lock()
	if a.gen[key] == gen {
		a.cache[key] = days
	}
	a.mu.Unlock()

	out.Days = slices.Clone(days)
	return out
}

// Invalidate drops the cached months containing dates for technicianID.
// The caller's own view (empty technicianID) is dropped as well, since it
// may be the same agenda.
func (a *Aggregator) Invalidate(technicianID string, dates ...agenda.Date) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, d := range dates {
		if d.IsZero() {
			continue
		}
		for _, tech := range []string{technicianID, ""} {
			key := monthKey{tech, d.Year, d.Month}
			delete(a.cache, key)
			a.gen[key]++
		}
	}
}

// InvalidateAll empties the cache.
func (a *Aggregator) InvalidateAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key := range a.cache {
		a.gen[key]++
	}
	clear(a.cache)
}
