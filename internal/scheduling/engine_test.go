package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"agenda-service/internal/agenda"
)

func TestCreateEventRefreshesAgenda(t *testing.T) {
	repo := newFakeRepo()
	e := newTestEngine(repo)
	ctx := context.Background()

	rec, err := e.CreateEvent(ctx, agenda.EventInput{Title: "Q4 Review", Date: date(2025, time.November, 15), Shift: agenda.ShiftMorning})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if rec.Kind != agenda.KindEvent {
		t.Errorf("kind = %s", rec.Kind)
	}

	snap := e.Agenda().Snapshot()
	if snap.Err != nil || len(snap.Records) != 1 || snap.Records[0].Ref() != rec.Ref() {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestCreateEventValidation(t *testing.T) {
	repo := newFakeRepo()
	e := newTestEngine(repo)

	_, err := e.CreateEvent(context.Background(), agenda.EventInput{Date: date(2025, time.November, 15)})
	if !errors.Is(err, agenda.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if repo.count("CreateEvent") != 0 {
		t.Error("invalid input reached the repository")
	}
}

func TestRescheduleVisitFreeSlot(t *testing.T) {
	repo := newFakeRepo()
	v := repo.seedVisit(2, "tech-1", date(2025, time.November, 20), agenda.ShiftMorning)
	e := newTestEngine(repo)
	ctx := context.Background()

	rec, err := e.RescheduleVisit(ctx, agenda.RescheduleInput{
		Source:  v.Ref(),
		NewDate: date(2025, time.December, 5),
		Reason:  "client request",
	})
	if err != nil {
		t.Fatalf("RescheduleVisit: %v", err)
	}
	if rec.Kind != agenda.KindVisitRescheduled || rec.Reschedule.SourceVisitID != 2 {
		t.Errorf("record = %+v", rec)
	}
	if rec.Reschedule.OriginalVisitDate != date(2025, time.November, 20) || rec.Date != date(2025, time.December, 5) {
		t.Errorf("dates = %s -> %s", rec.Reschedule.OriginalVisitDate, rec.Date)
	}
	// Shift defaults to the source's shift.
	if rec.Shift != agenda.ShiftMorning {
		t.Errorf("shift = %s", rec.Shift)
	}

	orig, err := repo.GetRecord(ctx, v.Ref())
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if orig.Date != v.Date || orig.Shift != v.Shift {
		t.Errorf("original visit changed: %+v", orig)
	}

	snap := e.Agenda().Snapshot()
	if len(snap.Records) != 1 || snap.Records[0].Ref() != rec.Ref() {
		t.Errorf("snapshot = %v", snap.Records)
	}
}

func TestRescheduleVisitTakenSlot(t *testing.T) {
	repo := newFakeRepo()
	v2 := repo.seedVisit(2, "tech-1", date(2025, time.November, 20), agenda.ShiftMorning)
	repo.seedVisit(5, "tech-1", date(2025, time.December, 5), agenda.ShiftMorning)
	e := newTestEngine(repo)

	_, err := e.RescheduleVisit(context.Background(), agenda.RescheduleInput{Source: v2.Ref(), NewDate: date(2025, time.December, 5)})
	if !errors.Is(err, agenda.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
	if repo.count("RescheduleVisit") != 0 {
		t.Error("blocked reschedule reached the repository")
	}
	if len(repo.all()) != 2 {
		t.Errorf("records = %v", repo.all())
	}
}

func TestRescheduleVisitIgnoresEventsAndOtherTechnicians(t *testing.T) {
	repo := newFakeRepo()
	v := repo.seedVisit(2, "tech-1", date(2025, time.November, 20), agenda.ShiftMorning)
	repo.seedEvent(1, "tech-1", date(2025, time.December, 5), agenda.ShiftMorning)
	repo.seedVisit(3, "tech-2", date(2025, time.December, 5), agenda.ShiftMorning)
	e := newTestEngine(repo)

	if _, err := e.RescheduleVisit(context.Background(), agenda.RescheduleInput{Source: v.Ref(), NewDate: date(2025, time.December, 5)}); err != nil {
		t.Errorf("RescheduleVisit: %v", err)
	}
}

func TestRescheduleSupersededVisit(t *testing.T) {
	repo := newFakeRepo()
	v := repo.seedVisit(2, "tech-1", date(2025, time.November, 20), agenda.ShiftMorning)
	e := newTestEngine(repo)
	ctx := context.Background()

	head, err := e.RescheduleVisit(ctx, agenda.RescheduleInput{Source: v.Ref(), NewDate: date(2025, time.November, 21)})
	if err != nil {
		t.Fatalf("first hop: %v", err)
	}
	if _, err := e.RescheduleVisit(ctx, agenda.RescheduleInput{Source: v.Ref(), NewDate: date(2025, time.November, 22)}); !errors.Is(err, agenda.ErrConflict) {
		t.Errorf("rescheduling superseded visit: error = %v, want ErrConflict", err)
	}
	next, err := e.RescheduleVisit(ctx, agenda.RescheduleInput{Source: head.Ref(), NewDate: date(2025, time.November, 22), Shift: agenda.ShiftAfternoon})
	if err != nil {
		t.Fatalf("second hop: %v", err)
	}
	if next.Reschedule.SourceKind != agenda.KindVisitRescheduled || next.Reschedule.RootVisitID != v.ReferenceID {
		t.Errorf("second hop = %+v", next.Reschedule)
	}
}

func TestRescheduleDegradedCheckProceeds(t *testing.T) {
	repo := newFakeRepo()
	v := repo.seedVisit(2, "tech-1", date(2025, time.November, 20), agenda.ShiftMorning)
	repo.fail("CheckSlot", agenda.ErrUnavailable)
	e := newTestEngine(repo)

	rec, err := e.RescheduleVisit(context.Background(), agenda.RescheduleInput{Source: v.Ref(), NewDate: date(2025, time.December, 5)})
	if err != nil {
		t.Fatalf("RescheduleVisit: %v", err)
	}
	if rec.Kind != agenda.KindVisitRescheduled {
		t.Errorf("kind = %s", rec.Kind)
	}
}

func TestDeleteMissingEventStillRefreshes(t *testing.T) {
	repo := newFakeRepo()
	e := newTestEngine(repo)
	ctx := context.Background()

	before := repo.count("ListRecords")
	err := e.DeleteEvent(ctx, 7)
	if !errors.Is(err, agenda.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if repo.count("ListRecords") != before+1 {
		t.Error("view was not refreshed after not-found delete")
	}
}

func TestDeleteDispatchesOnKind(t *testing.T) {
	repo := newFakeRepo()
	ev := repo.seedEvent(1, "tech-1", date(2025, time.December, 1), agenda.ShiftMorning)
	v := repo.seedVisit(1, "tech-1", date(2025, time.December, 1), agenda.ShiftAfternoon)
	e := newTestEngine(repo)
	ctx := context.Background()

	if err := e.Delete(ctx, v.Ref()); err != nil {
		t.Fatalf("Delete(visit): %v", err)
	}
	if _, err := repo.GetRecord(ctx, ev.Ref()); err != nil {
		t.Errorf("event with the same id was touched: %v", err)
	}
	if err := e.Delete(ctx, ev.Ref()); err != nil {
		t.Fatalf("Delete(event): %v", err)
	}
	if len(repo.all()) != 0 {
		t.Errorf("records left: %v", repo.all())
	}
}

func TestOverlappingMutationIsBusy(t *testing.T) {
	repo := newFakeRepo()
	v := repo.seedVisit(2, "tech-1", date(2025, time.November, 20), agenda.ShiftMorning)
	repo.hold = make(chan struct{})
	repo.entered = make(chan struct{})
	e := newTestEngine(repo)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := e.RescheduleVisit(ctx, agenda.RescheduleInput{Source: v.Ref(), NewDate: date(2025, time.December, 5)})
		done <- err
	}()
	<-repo.entered

	_, err := e.CreateEvent(ctx, agenda.EventInput{Title: "x", Date: date(2025, time.December, 6)})
	if !errors.Is(err, agenda.ErrBusy) {
		t.Errorf("overlapping mutation error = %v, want ErrBusy", err)
	}

	close(repo.hold)
	if err := <-done; err != nil {
		t.Fatalf("RescheduleVisit: %v", err)
	}
	if _, err := e.CreateEvent(ctx, agenda.EventInput{Title: "x", Date: date(2025, time.December, 6)}); err != nil {
		t.Errorf("mutation after the first finished: %v", err)
	}
}

func TestMutationInvalidatesAvailability(t *testing.T) {
	repo := newFakeRepo()
	v := repo.seedVisit(2, "tech-1", date(2025, time.November, 20), agenda.ShiftMorning)
	e := newTestEngine(repo)
	ctx := context.Background()

	nov := e.Availability().Month(ctx, "tech-1", 2025, time.November)
	dec := e.Availability().Month(ctx, "tech-1", 2025, time.December)
	e.Availability().Month(ctx, "tech-1", 2025, time.November)
	if n := repo.count("MonthAvailability"); n != 2 {
		t.Fatalf("fetches = %d, want 2 (second November read is cached)", n)
	}
	if !nov.Day(v.Date).MorningBusy || dec.Day(date(2025, time.December, 5)).MorningBusy {
		t.Fatalf("initial availability wrong: %+v / %+v", nov.Day(v.Date), dec.Day(date(2025, time.December, 5)))
	}

	if _, err := e.RescheduleVisit(ctx, agenda.RescheduleInput{Source: v.Ref(), NewDate: date(2025, time.December, 5)}); err != nil {
		t.Fatalf("RescheduleVisit: %v", err)
	}

	nov = e.Availability().Month(ctx, "tech-1", 2025, time.November)
	dec = e.Availability().Month(ctx, "tech-1", 2025, time.December)
	if n := repo.count("MonthAvailability"); n != 4 {
		t.Errorf("fetches = %d, want 4 (both months refetched)", n)
	}
	if nov.Day(v.Date).MorningBusy {
		t.Error("vacated slot still busy")
	}
	if !dec.Day(date(2025, time.December, 5)).MorningBusy {
		t.Error("new slot not busy")
	}
}

func TestRefreshFailureKeepsRecords(t *testing.T) {
	repo := newFakeRepo()
	repo.seedEvent(1, "tech-1", date(2025, time.December, 1), agenda.ShiftMorning)
	e := newTestEngine(repo)
	ctx := context.Background()

	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	repo.fail("ListRecords", agenda.ErrUnavailable)
	if err := e.Refresh(ctx); !errors.Is(err, agenda.ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	snap := e.Agenda().Snapshot()
	if !errors.Is(snap.Err, agenda.ErrUnavailable) || len(snap.Records) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}
