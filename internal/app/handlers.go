package app

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"agenda-service/internal/agenda"
	appLog "agenda-service/internal/log"
)

func forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{agenda.ErrForbidden}, args...)...)
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{agenda.ErrValidation}, args...)...)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, agenda.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, agenda.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, agenda.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, agenda.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, agenda.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	writeErrorStatus(c, statusFor(err), err)
}

func writeErrorStatus(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		appLog.Error("request failed", err, "method", c.Request.Method, "path", c.FullPath())
	}
	body := gin.H{"error": publicMessage(err)}
	if status == http.StatusConflict {
		body["blocked"] = true
	}
	c.AbortWithStatusJSON(status, body)
}

var sentinels = []error{
	agenda.ErrValidation, agenda.ErrForbidden, agenda.ErrNotFound,
	agenda.ErrConflict, agenda.ErrUnavailable,
}

// publicMessage drops the sentinel prefix; the status code already carries it.
func publicMessage(err error) string {
	msg := err.Error()
	for _, s := range sentinels {
		if rest, ok := strings.CutPrefix(msg, s.Error()+": "); ok {
			return rest
		}
	}
	return msg
}

func paramID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s %q", name, c.Param(name))
	}
	return id, nil
}

func paramRef(c *gin.Context) (agenda.RecordRef, error) {
	kind, err := agenda.ParseKind(c.Param("kind"))
	if err != nil {
		return agenda.RecordRef{}, err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return agenda.RecordRef{}, err
	}
	return agenda.RecordRef{Kind: kind, ID: id}, nil
}

func queryDate(c *gin.Context, name string) (agenda.Date, error) {
	s := c.Query(name)
	if s == "" {
		return agenda.Date{}, nil
	}
	d, err := agenda.ParseDate(s)
	if err != nil {
		return agenda.Date{}, badRequest("invalid %s %q", name, s)
	}
	return d, nil
}

// technicianScope returns the agenda the caller reads: the requested one if
// allowed, otherwise their own.
func technicianScope(p agenda.Principal, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" || requested == p.TechnicianID {
		return p.TechnicianID, nil
	}
	if !p.IsAdmin() {
		return "", forbidden("cannot read the agenda of %s", requested)
	}
	return requested, nil
}

// GET /api/me
func (a *App) MeHandler(c *gin.Context) {
	c.JSON(http.StatusOK, principal(c))
}

// parseAgendaQuery reads the agenda filters shared by the list and feed routes.
func parseAgendaQuery(c *gin.Context) (agenda.Query, error) {
	p := principal(c)
	var q agenda.Query
	switch c.DefaultQuery("scope", "own") {
	case "fleet":
		if !p.IsAdmin() {
			return q, forbidden("fleet scope requires an administrator")
		}
		q.Fleet = true
	case "own":
		tech, err := technicianScope(p, c.Query("technician_id"))
		if err != nil {
			return q, err
		}
		if tech == "" {
			// administrators without an agenda of their own read the fleet
			q.Fleet = p.IsAdmin()
			if !q.Fleet {
				return q, forbidden("caller has no agenda")
			}
		}
		q.TechnicianID = tech
	default:
		return q, badRequest("invalid scope %q", c.Query("scope"))
	}

	var err error
	if q.From, err = queryDate(c, "from"); err != nil {
		return q, err
	}
	if q.To, err = queryDate(c, "to"); err != nil {
		return q, err
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, badRequest("from must not be after to")
	}
	if s := c.Query("ids"); s != "" {
		for _, part := range strings.Split(s, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return q, badRequest("invalid id %q", part)
			}
			q.IDs = append(q.IDs, id)
		}
	}
	q.Responsible = c.Query("responsible")
	if s := c.Query("include_superseded"); s != "" {
		if q.IncludeSuperseded, err = strconv.ParseBool(s); err != nil {
			return q, badRequest("invalid include_superseded %q", s)
		}
	}
	return q.Effective(), nil
}

// GET /api/agenda
func (a *App) ListAgendaHandler(c *gin.Context) {
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
	if recs == nil {
		recs = []agenda.Record{}
	}
	c.JSON(http.StatusOK, recs)
}

// GET /api/records/:kind/:id
func (a *App) GetRecordHandler(c *gin.Context) {
	ref, err := paramRef(c)
	if err != nil {
		writeError(c, err)
		return
	}
	rec, err := a.ownedRecord(c.Request.Context(), principal(c), ref)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GET /api/records/:kind/:id/lineage
func (a *App) LineageHandler(c *gin.Context) {
	ref, err := paramRef(c)
	if err != nil {
		writeError(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := a.ownedRecord(ctx, principal(c), ref); err != nil {
		writeError(c, err)
		return
	}
	chain, err := a.Store.Lineage(ctx, ref)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, chain)
}

// DELETE /api/records/:kind/:id
func (a *App) DeleteRecordHandler(c *gin.Context) {
	ref, err := paramRef(c)
	if err != nil {
		writeError(c, err)
		return
	}
	a.deleteRecord(c, ref)
}

func (a *App) deleteRecord(c *gin.Context, ref agenda.RecordRef) {
	ctx := c.Request.Context()
	if _, err := a.ownedRecord(ctx, principal(c), ref); err != nil {
		writeError(c, err)
		return
	}
	if err := a.Store.DeleteRecord(ctx, ref); err != nil {
		writeError(c, err)
		return
	}
	appLog.Info("record deleted", "record", ref, "by", principal(c).TechnicianID)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/events
func (a *App) CreateEventHandler(c *gin.Context) {
	var in agenda.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, badRequest("%v", err))
		return
	}
	p := principal(c)
	owner := strings.TrimSpace(in.TechnicianID)
	if owner == "" {
		owner = p.TechnicianID
	}
	if !p.CanActFor(owner) {
		writeError(c, forbidden("cannot create events for %s", owner))
		return
	}
	rec, err := a.Store.CreateEvent(c.Request.Context(), owner, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// PUT /api/events/:id
func (a *App) UpdateEventHandler(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	var in agenda.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, badRequest("%v", err))
		return
	}
	ctx := c.Request.Context()
	ref := agenda.RecordRef{Kind: agenda.KindEvent, ID: id}
	if _, err := a.ownedRecord(ctx, principal(c), ref); err != nil {
		writeError(c, err)
		return
	}
	rec, err := a.Store.UpdateEvent(ctx, id, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// DELETE /api/events/:id
func (a *App) DeleteEventHandler(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	a.deleteRecord(c, agenda.RecordRef{Kind: agenda.KindEvent, ID: id})
}

// POST /api/visits
func (a *App) CreateVisitHandler(c *gin.Context) {
	if !principal(c).IsAdmin() {
		writeError(c, forbidden("only administrators schedule visits"))
		return
	}
	var in agenda.VisitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, badRequest("%v", err))
		return
	}
	rec, err := a.Store.CreateVisit(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	appLog.Info("visit scheduled", "record", rec.Ref(), "technician", rec.TechnicianID, "date", rec.Date)
	c.JSON(http.StatusCreated, rec)
}

// POST /api/visits/:kind/:id/reschedule and POST /api/visits/:id/report/validate
// share a prefix whose first segment is either a kind or an id.
func (a *App) VisitActionHandler(c *gin.Context) {
	key := c.Param("key")
	parts := strings.Split(strings.Trim(c.Param("action"), "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "report" && parts[1] == "validate":
		a.validateReport(c, key)
	case len(parts) == 2 && parts[1] == "reschedule":
		kind, err := agenda.ParseKind(key)
		if err != nil {
			writeError(c, err)
			return
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || id <= 0 {
			writeError(c, badRequest("invalid id %q", parts[0]))
			return
		}
		a.rescheduleVisit(c, agenda.RecordRef{Kind: kind, ID: id})
	default:
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	}
}

func (a *App) rescheduleVisit(c *gin.Context, ref agenda.RecordRef) {
	var req rescheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("%v", err))
		return
	}
	ctx := c.Request.Context()
	if _, err := a.ownedRecord(ctx, principal(c), ref); err != nil {
		writeError(c, err)
		return
	}
	rec, err := a.Store.RescheduleVisit(ctx, agenda.RescheduleInput{
		Source:  ref,
		NewDate: req.NewDate,
		Shift:   req.Shift,
		Reason:  req.Reason,
	})
	if err != nil {
		if errors.Is(err, agenda.ErrConflict) {
			appLog.Info("reschedule blocked", "record", ref, "date", req.NewDate, "reason", err)
		}
		writeError(c, err)
		return
	}
	appLog.Info("visit rescheduled", "from", ref, "to", rec.Ref(), "date", rec.Date, "shift", rec.Shift)
	c.JSON(http.StatusCreated, rec)
}
