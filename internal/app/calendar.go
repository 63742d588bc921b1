package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"agenda-service/internal/agenda"
	appLog "agenda-service/internal/log"
)

const oauthStateTTL = 10 * time.Minute

var errCalendarDisabled = fmt.Errorf("%w: google calendar is not configured", agenda.ErrUnavailable)

func (a *App) oauthConfig() *oauth2.Config {
	if !a.Google.Enabled() {
		return nil
	}
	return &oauth2.Config{
		ClientID:     a.Google.ClientID,
		ClientSecret: a.Google.ClientSecret,
		RedirectURL:  a.Google.RedirectURL,
		Scopes:       []string{calendar.CalendarEventsScope},
		Endpoint:     google.Endpoint,
	}
}

func (a *App) newState(technicianID string) string {
	a.statesMu.Lock()
	defer a.statesMu.Unlock()
	now := a.now()
	for k, s := range a.states {
		if now.After(s.expires) {
			delete(a.states, k)
		}
	}
	state := uuid.NewString()
	a.states[state] = oauthState{technicianID: technicianID, expires: now.Add(oauthStateTTL)}
	return state
}

func (a *App) takeState(state string) (string, bool) {
	a.statesMu.Lock()
	defer a.statesMu.Unlock()
	s, ok := a.states[state]
	delete(a.states, state)
	if !ok || a.now().After(s.expires) {
		return "", false
	}
	return s.technicianID, true
}

// GET /api/calendar/auth starts the OAuth2 flow for the caller's agenda.
func (a *App) CalendarAuthHandler(c *gin.Context) {
	cfg := a.oauthConfig()
	if cfg == nil {
		writeError(c, errCalendarDisabled)
		return
	}
	tech, err := technicianScope(principal(c), c.Query("technician_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if tech == "" {
		writeError(c, badRequest("technician_id is required"))
		return
	}
	state := a.newState(tech)
	c.JSON(http.StatusOK, gin.H{
		"auth_url": cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce),
		"state":    state,
	})
}

// GET /oauth2callback stores the token for the technician that started the flow.
func (a *App) OAuthCallbackHandler(c *gin.Context) {
	cfg := a.oauthConfig()
	if cfg == nil {
		writeError(c, errCalendarDisabled)
		return
	}
	code := c.Query("code")
	if code == "" {
		writeError(c, badRequest("authorization code required"))
		return
	}
	tech, ok := a.takeState(c.Query("state"))
	if !ok {
		writeError(c, badRequest("unknown or expired state"))
		return
	}

	ctx := c.Request.Context()
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		writeError(c, badRequest("failed to exchange code for token: %v", err))
		return
	}
	if err := a.saveToken(ctx, tech, token); err != nil {
		writeError(c, err)
		return
	}
	appLog.Info("google calendar connected", "technician", tech)
	c.JSON(http.StatusOK, gin.H{"message": "Authorization successful", "technician_id": tech})
}

// POST /api/calendar/sync pushes the caller's upcoming agenda to Google.
func (a *App) CalendarSyncHandler(c *gin.Context) {
	tech, err := technicianScope(principal(c), c.Query("technician_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if tech == "" {
		writeError(c, badRequest("technician_id is required"))
		return
	}
	res, err := a.SyncTechnician(c.Request.Context(), tech)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *App) saveToken(ctx context.Context, technicianID string, token *oauth2.Token) error {
	b, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return a.Store.SaveCalendarToken(ctx, technicianID, b)
}

// googleEventID is the Google event id of ref. Google requires base32hex
// characters (a-v, 0-9), which the prefixes and decimal ids satisfy.
func googleEventID(ref agenda.RecordRef) string {
	prefix := "ev"
	switch ref.Kind {
	case agenda.KindVisit:
		prefix = "vi"
	case agenda.KindVisitRescheduled:
		prefix = "rv"
	}
	return "agenda" + prefix + strconv.FormatInt(ref.ID, 10)
}

// googleEvent renders rec as an all-day event.
func googleEvent(rec agenda.Record) *calendar.Event {
	return &calendar.Event{
		Id:          googleEventID(rec.Ref()),
		Summary:     entrySummary(rec),
		Description: rec.Description,
		Start:       &calendar.EventDateTime{Date: rec.Date.String()},
		End:         &calendar.EventDateTime{Date: rec.Date.AddDays(1).String()},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{"agenda_ref": rec.Ref().String()},
		},
	}
}

func entrySummary(rec agenda.Record) string {
	if rec.AllDay {
		return rec.Title + " (All day)"
	}
	return rec.Title + " (" + rec.Shift.Label() + ")"
}

func isGoogleStatus(err error, codes ...int) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	for _, code := range codes {
		if gerr.Code == code {
			return true
		}
	}
	return false
}

// SyncTechnician pushes the technician's agenda from today through the
// configured horizon. Agenda events in that window without a live record,
// because the record was deleted or rescheduled away, are removed.
func (a *App) SyncTechnician(ctx context.Context, technicianID string) (syncResult, error) {
	res := syncResult{TechnicianID: technicianID}
	cfg := a.oauthConfig()
	if cfg == nil {
		return res, errCalendarDisabled
	}
	raw, err := a.Store.CalendarToken(ctx, technicianID)
	if err != nil {
		if errors.Is(err, agenda.ErrNotFound) {
			return res, fmt.Errorf("%w: %s has not connected google calendar", agenda.ErrNotFound, technicianID)
		}
		return res, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return res, fmt.Errorf("failed to decode token: %w", err)
	}

	ts := cfg.TokenSource(ctx, &token)
	opts := append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}, a.calendarOpts...)
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return res, fmt.Errorf("failed to create calendar service: %w", err)
	}

	from := agenda.DateOf(a.now())
	to := from.AddDays(a.Google.HorizonDays)
	recs, err := a.Store.ListRecords(ctx, agenda.Query{TechnicianID: technicianID, From: from, To: to})
	if err != nil {
		return res, err
	}

	calID := a.Google.CalendarID
	live := make(map[string]bool, len(recs))
	for _, rec := range recs {
		ev := googleEvent(rec)
		_, err := srv.Events.Update(calID, ev.Id, ev).Context(ctx).Do()
		if isGoogleStatus(err, http.StatusNotFound) {
			_, err = srv.Events.Insert(calID, ev).Context(ctx).Do()
		}
		if err != nil {
			return res, fmt.Errorf("failed to push %s to google: %w", rec.Ref(), err)
		}
		live[ev.Id] = true
		res.Pushed++
	}

	var stale []string
	err = srv.Events.List(calID).
		TimeMin(from.Time().Format(time.RFC3339)).
		TimeMax(to.AddDays(1).Time().Format(time.RFC3339)).
		Pages(ctx, func(page *calendar.Events) error {
			for _, ev := range page.Items {
				if ev.ExtendedProperties == nil || ev.ExtendedProperties.Private["agenda_ref"] == "" || live[ev.Id] {
					continue
				}
				stale = append(stale, ev.Id)
			}
			return nil
		})
	if err != nil {
		return res, fmt.Errorf("failed to list google events: %w", err)
	}
	for _, id := range stale {
		err := srv.Events.Delete(calID, id).Context(ctx).Do()
		if err != nil && !isGoogleStatus(err, http.StatusNotFound, http.StatusGone) {
			return res, fmt.Errorf("failed to remove %s from google: %w", id, err)
		}
		if err == nil {
			res.Removed++
		}
	}

	if fresh, err := ts.Token(); err == nil && fresh.AccessToken != token.AccessToken {
		if err := a.saveToken(ctx, technicianID, fresh); err != nil {
			appLog.Warn("failed to persist refreshed google token", "technician", technicianID, "error", err)
		}
	}
	appLog.Info("google calendar synced", "technician", technicianID, "pushed", res.Pushed, "removed", res.Removed)
	return res, nil
}

// SyncAll runs SyncTechnician for every connected technician. Failures are
// logged and do not stop the run.
func (a *App) SyncAll(ctx context.Context) {
	techs, err := a.Store.ConnectedTechnicians(ctx)
	if err != nil {
		appLog.Error("failed to list connected technicians", err)
		return
	}
	for _, tech := range techs {
		if _, err := a.SyncTechnician(ctx, tech); err != nil {
			appLog.Error("google calendar sync failed", err, "technician", tech)
		}
	}
}

// StartSync schedules SyncAll on the configured cron spec. It returns nil
// when Google Calendar or the schedule is not configured.
func (a *App) StartSync(ctx context.Context) (*cron.Cron, error) {
	if !a.Google.Enabled() || a.Google.SyncCron == "" {
		return nil, nil
	}
	c := cron.New()
	if _, err := c.AddFunc(a.Google.SyncCron, func() { a.SyncAll(ctx) }); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", a.Google.SyncCron, err)
	}
	c.Start()
	appLog.Info("google calendar sync scheduled", "spec", a.Google.SyncCron)
	return c, nil
}
