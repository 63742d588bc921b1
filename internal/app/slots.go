package app

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"agenda-service/internal/agenda"
	"agenda-service/internal/scheduling"
)

// GET /api/availability?year=&month=&technician_id=
func (a *App) MonthAvailabilityHandler(c *gin.Context) {
	tech, err := technicianScope(principal(c), c.Query("technician_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	now := a.now()
	year, month := now.Year(), now.Month()
	if s := c.Query("year"); s != "" {
		if year, err = strconv.Atoi(s); err != nil || year < 1 {
			writeError(c, badRequest("invalid year %q", s))
			return
		}
	}
	if s := c.Query("month"); s != "" {
		m, err := strconv.Atoi(s)
		if err != nil || m < 1 || m > 12 {
			writeError(c, badRequest("invalid month %q", s))
			return
		}
		month = time.Month(m)
	}
	days, err := a.Store.MonthAvailability(c.Request.Context(), tech, year, month)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, days)
}

// GET /api/availability/check?date=&shift=&technician_id=&all_day=&exclude_kind=&exclude_id=
func (a *App) CheckSlotHandler(c *gin.Context) {
	date, shift, err := scheduling.ParseSlot(c.Query("date"), c.Query("shift"))
	if err != nil {
		writeError(c, err)
		return
	}
	tech, err := technicianScope(principal(c), c.Query("technician_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	req := agenda.SlotRequest{TechnicianID: tech, Date: date, Shift: shift}
	if s := c.Query("all_day"); s != "" {
		if req.AllDay, err = strconv.ParseBool(s); err != nil {
			writeError(c, badRequest("invalid all_day %q", s))
			return
		}
	}
	if s := c.Query("exclude_kind"); s != "" {
		kind, err := agenda.ParseKind(s)
		if err != nil {
			writeError(c, err)
			return
		}
		id, err := strconv.ParseInt(c.Query("exclude_id"), 10, 64)
		if err != nil {
			writeError(c, badRequest("invalid exclude_id %q", c.Query("exclude_id")))
			return
		}
		req.Exclude = &agenda.RecordRef{Kind: kind, ID: id}
	}
	res, err := a.Store.CheckSlot(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// validateReport answers 204 when the report may be submitted, 409 when the
// slot is taken and 422 for malformed input.
func (a *App) validateReport(c *gin.Context, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		writeErrorStatus(c, http.StatusUnprocessableEntity, badRequest("invalid visit id %q", rawID))
		return
	}
	var req reportReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorStatus(c, http.StatusUnprocessableEntity, badRequest("%v", err))
		return
	}
	ctx := c.Request.Context()
	if _, err := a.ownedRecord(ctx, principal(c), agenda.RecordRef{Kind: agenda.KindVisit, ID: id}); err != nil {
		writeError(c, err)
		return
	}
	if err := a.reports.ValidateReportSubmission(ctx, id, req.Date, req.Shift); err != nil {
		if errors.Is(err, agenda.ErrValidation) {
			writeErrorStatus(c, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
