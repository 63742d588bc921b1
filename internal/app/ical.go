package app

import (
	"net/http"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/gin-gonic/gin"

	"agenda-service/internal/agenda"
)

// buildICS renders records as an iCalendar feed of all-day VEVENTs.
func buildICS(recs []agenda.Record, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//agenda-service//agenda feed//EN")
	for _, rec := range recs {
		if rec.SupersededBy != nil {
			continue
		}
		ev := cal.AddEvent(rec.Ref().String() + "@agenda-service")
		ev.SetDtStampTime(stamp.UTC())
		ev.SetSummary(entrySummary(rec))
		if rec.Description != "" {
			ev.SetDescription(rec.Description)
		}
		ev.SetAllDayStartAt(rec.Date.Time())
		ev.SetAllDayEndAt(rec.Date.AddDays(1).Time())
		ev.SetProperty(ical.ComponentPropertyCategories, string(rec.Kind))
	}
	return cal.Serialize()
}

// GET /api/agenda.ics accepts the same filters as /api/agenda.
func (a *App) AgendaFeedHandler(c *gin.Context) {
	q, err := parseAgendaQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}
	recs, err := a.Store.ListRecords(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(buildICS(recs, a.now())))
}
