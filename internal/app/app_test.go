package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"agenda-service/internal/agenda"
	"agenda-service/internal/config"
	"agenda-service/internal/store"
)

const (
	aliceToken = "tok-alice"
	bobToken   = "tok-bob"
	adminToken = "tok-admin"
	jwtSecret  = "test-secret"
)

type testServer struct {
	app    *App
	router *gin.Engine
	store  *store.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(s.Close)

	cfg := config.DefaultConfig()
	cfg.Auth.JWTSecret = jwtSecret
	cfg.Auth.StaticTokens = []config.StaticToken{
		{Token: aliceToken, TechnicianID: "alice"},
		{Token: bobToken, TechnicianID: "bob"},
		{Token: adminToken, TechnicianID: "ops", Admin: true},
	}
	a := New(s, cfg)
	a.now = func() time.Time { return time.Date(2025, time.December, 1, 9, 0, 0, 0, time.UTC) }

	router := gin.New()
	router.Use(RequestLogger())
	a.Register(router)
	return &testServer{app: a, router: router, store: s}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", w.Body.String(), err)
	}
	return v
}

func (ts *testServer) seedVisit(t *testing.T, tech, date string, shift agenda.Shift) agenda.Record {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/visits", adminToken, map[string]any{
		"technician_id":    tech,
		"title":            "Chiller service",
		"date":             date,
		"shift":            shift,
		"unit_name":        "Plant North",
		"responsible_name": "Maria Lopez",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create visit: status %d: %s", w.Code, w.Body)
	}
	return decode[agenda.Record](t, w)
}

func TestAuthMiddleware(t *testing.T) {
	ts := newTestServer(t)
	adminJWT, err := MintToken([]byte(jwtSecret), agenda.Principal{TechnicianID: "carol", Role: agenda.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	techJWT, err := MintToken([]byte(jwtSecret), agenda.Principal{TechnicianID: "dave"}, 0)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	otherJWT, err := MintToken([]byte("other"), agenda.Principal{TechnicianID: "dave"}, time.Hour)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}

	tests := []struct {
		name   string
		header string
		status int
		want   agenda.Principal
	}{
		{"missing", "", http.StatusUnauthorized, agenda.Principal{}},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, agenda.Principal{}},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, agenda.Principal{}},
		{"foreign signature", "Bearer " + otherJWT, http.StatusUnauthorized, agenda.Principal{}},
		{"static technician", "Bearer " + aliceToken, http.StatusOK, agenda.Principal{TechnicianID: "alice", Role: agenda.RoleTechnician}},
		{"static admin", "Bearer " + adminToken, http.StatusOK, agenda.Principal{TechnicianID: "ops", Role: agenda.RoleAdmin}},
		{"jwt admin", "Bearer " + adminJWT, http.StatusOK, agenda.Principal{TechnicianID: "carol", Role: agenda.RoleAdmin}},
		{"jwt technician", "bearer " + techJWT, http.StatusOK, agenda.Principal{TechnicianID: "dave", Role: agenda.RoleTechnician}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			ts.router.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body)
			}
			if tt.status == http.StatusOK {
				if got := decode[agenda.Principal](t, w); got != tt.want {
					t.Errorf("principal = %+v, want %+v", got, tt.want)
				}
			}
		})
	}
}

func TestExpiredTokenIsRejected(t *testing.T) {
	claims := Claims{
		Role: agenda.RoleTechnician,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "dave",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if _, err := ParseToken([]byte(jwtSecret), tok); err == nil {
		t.Error("expected expired token to be rejected")
	}
	if _, err := MintToken(nil, agenda.Principal{TechnicianID: "dave"}, time.Hour); err == nil {
		t.Error("expected minting without a secret to fail")
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/me", aliceToken, nil)
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	req.Header.Set(requestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
}

func TestEventsCRUD(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/events", aliceToken, map[string]any{
		"title": "Q4 Review",
		"date":  "2025-11-15",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d: %s", w.Code, w.Body)
	}
	ev := decode[agenda.Record](t, w)
	if ev.Kind != agenda.KindEvent || ev.TechnicianID != "alice" || ev.Shift != agenda.ShiftMorning {
		t.Fatalf("created = %+v", ev)
	}

	path := "/api/events/" + itoa(ev.ReferenceID)
	w = ts.do(t, http.MethodPut, path, bobToken, map[string]any{"title": "Hijack", "date": "2025-11-16"})
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign update: status %d, want 403", w.Code)
	}

	w = ts.do(t, http.MethodPut, path, aliceToken, map[string]any{
		"title": "Q4 Review (moved)",
		"date":  "2025-11-16",
		"shift": "afternoon",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: status %d: %s", w.Code, w.Body)
	}
	if got := decode[agenda.Record](t, w); got.Shift != agenda.ShiftAfternoon || got.Date.String() != "2025-11-16" {
		t.Errorf("updated = %+v", got)
	}

	w = ts.do(t, http.MethodPost, "/api/events", aliceToken, map[string]any{"title": " ", "date": "2025-11-15"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank title: status %d, want 400", w.Code)
	}
	w = ts.do(t, http.MethodPost, "/api/events", aliceToken, map[string]any{"title": "x", "date": "2025-11-15", "technician_id": "bob"})
	if w.Code != http.StatusForbidden {
		t.Errorf("event for another technician: status %d, want 403", w.Code)
	}

	if w = ts.do(t, http.MethodDelete, path, aliceToken, nil); w.Code != http.StatusOK {
		t.Fatalf("delete: status %d: %s", w.Code, w.Body)
	}
	if w = ts.do(t, http.MethodDelete, path, aliceToken, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete: status %d, want 404", w.Code)
	}
}

func TestCreateVisitRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/visits", aliceToken, map[string]any{
		"technician_id": "alice", "title": "x", "date": "2025-12-05",
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestRescheduleFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.seedVisit(t, "alice", "2025-12-05", agenda.ShiftMorning)
	v2 := ts.seedVisit(t, "alice", "2025-12-08", agenda.ShiftMorning)
	path := "/api/visits/visit/" + itoa(v2.ReferenceID) + "/reschedule"

	w := ts.do(t, http.MethodPost, path, aliceToken, map[string]any{"new_date": "2025-12-05", "shift": "MORNING"})
	if w.Code != http.StatusConflict {
		t.Fatalf("taken slot: status %d: %s", w.Code, w.Body)
	}
	body := decode[map[string]any](t, w)
	if body["blocked"] != true {
		t.Errorf("conflict body = %v", body)
	}
	if msg, _ := body["error"].(string); strings.HasPrefix(msg, agenda.ErrConflict.Error()) {
		t.Errorf("conflict message carries the sentinel: %q", msg)
	}

	w = ts.do(t, http.MethodPost, path, bobToken, map[string]any{"new_date": "2025-12-05", "shift": "AFTERNOON"})
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign reschedule: status %d, want 403", w.Code)
	}

	w = ts.do(t, http.MethodPost, path, aliceToken, map[string]any{
		"new_date": "2025-12-05", "shift": "AFTERNOON", "reason": "client request",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("reschedule: status %d: %s", w.Code, w.Body)
	}
	moved := decode[agenda.Record](t, w)
	if moved.Kind != agenda.KindVisitRescheduled || moved.Shift != agenda.ShiftAfternoon {
		t.Fatalf("moved = %+v", moved)
	}
	if moved.Reschedule == nil || moved.Reschedule.Source() != v2.Ref() {
		t.Errorf("reschedule details = %+v", moved.Reschedule)
	}

	w = ts.do(t, http.MethodPost, path, aliceToken, map[string]any{"new_date": "2025-12-10"})
	if w.Code != http.StatusConflict {
		t.Errorf("rescheduling a superseded visit: status %d, want 409", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/records/rescheduled/"+itoa(moved.ReferenceID)+"/lineage", aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("lineage: status %d: %s", w.Code, w.Body)
	}
	if chain := decode[[]agenda.Record](t, w); len(chain) != 2 || chain[0].Ref() != v2.Ref() || chain[1].Ref() != moved.Ref() {
		t.Errorf("lineage = %+v", chain)
	}

	w = ts.do(t, http.MethodPost, "/api/visits/event/1/reschedule", aliceToken, map[string]any{"new_date": "2025-12-10"})
	if w.Code != http.StatusBadRequest && w.Code != http.StatusNotFound {
		t.Errorf("rescheduling an event: status %d", w.Code)
	}
	w = ts.do(t, http.MethodPost, "/api/visits/visit/1/cancel", aliceToken, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown visit action: status %d, want 404", w.Code)
	}
}

func TestAgendaScope(t *testing.T) {
	ts := newTestServer(t)
	ts.seedVisit(t, "alice", "2025-12-05", agenda.ShiftMorning)
	ts.seedVisit(t, "bob", "2025-12-05", agenda.ShiftMorning)

	tests := []struct {
		name   string
		token  string
		query  string
		status int
		count  int
	}{
		{"own agenda", aliceToken, "", http.StatusOK, 1},
		{"fleet as technician", aliceToken, "?scope=fleet", http.StatusForbidden, 0},
		{"other technician", aliceToken, "?technician_id=bob", http.StatusForbidden, 0},
		{"fleet as admin", adminToken, "?scope=fleet", http.StatusOK, 2},
		{"admin reads bob", adminToken, "?technician_id=bob", http.StatusOK, 1},
		{"date window", aliceToken, "?from=2025-12-06&to=2025-12-31", http.StatusOK, 0},
		{"inverted window", aliceToken, "?from=2025-12-06&to=2025-12-01", http.StatusBadRequest, 0},
		{"bad scope", aliceToken, "?scope=team", http.StatusBadRequest, 0},
		{"responsible", adminToken, "?scope=fleet&responsible=lopez", http.StatusOK, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, "/api/agenda"+tt.query, tt.token, nil)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body)
			}
			if tt.status != http.StatusOK {
				return
			}
			if got := decode[[]agenda.Record](t, w); len(got) != tt.count {
				t.Errorf("got %d records, want %d", len(got), tt.count)
			}
		})
	}
}

func TestAvailabilityRoutes(t *testing.T) {
	ts := newTestServer(t)
	ts.seedVisit(t, "alice", "2025-12-05", agenda.ShiftMorning)

	w := ts.do(t, http.MethodGet, "/api/availability?year=2025&month=12", aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("month: status %d: %s", w.Code, w.Body)
	}
	days := decode[[]agenda.DayAvailability](t, w)
	if len(days) != 31 || !days[4].MorningBusy || days[4].AfternoonBusy {
		t.Errorf("month availability = %+v", days[4])
	}
	if w = ts.do(t, http.MethodGet, "/api/availability?month=13", aliceToken, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad month: status %d, want 400", w.Code)
	}

	tests := []struct {
		query   string
		blocked bool
	}{
		{"date=2025-12-05&shift=MORNING", true},
		{"date=2025-12-05&shift=AFTERNOON", false},
		{"date=2025-12-05&shift=AFTERNOON&all_day=true", true},
		{"date=2025-12-05&shift=MORNING&exclude_kind=visit&exclude_id=1", false},
	}
	for _, tt := range tests {
		w := ts.do(t, http.MethodGet, "/api/availability/check?"+tt.query, aliceToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status %d: %s", tt.query, w.Code, w.Body)
		}
		if got := decode[agenda.CheckResult](t, w); got.Blocked != tt.blocked {
			t.Errorf("%s: blocked = %v, want %v", tt.query, got.Blocked, tt.blocked)
		}
	}
	if w = ts.do(t, http.MethodGet, "/api/availability/check?date=2025-12-05&shift=night", aliceToken, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad shift: status %d, want 400", w.Code)
	}
}

func TestValidateReport(t *testing.T) {
	ts := newTestServer(t)
	ts.seedVisit(t, "alice", "2025-12-05", agenda.ShiftMorning)
	v2 := ts.seedVisit(t, "alice", "2025-12-08", agenda.ShiftMorning)
	path := "/api/visits/" + itoa(v2.ReferenceID) + "/report/validate"

	tests := []struct {
		name   string
		token  string
		body   map[string]any
		status int
	}{
		{"own slot", aliceToken, map[string]any{"date": "2025-12-08", "shift": "MORNING"}, http.StatusNoContent},
		{"free slot", aliceToken, map[string]any{"date": "2025-12-05", "shift": "AFTERNOON"}, http.StatusNoContent},
		{"taken slot", aliceToken, map[string]any{"date": "2025-12-05", "shift": "MORNING"}, http.StatusConflict},
		{"bad shift", aliceToken, map[string]any{"date": "2025-12-05", "shift": "NIGHT"}, http.StatusUnprocessableEntity},
		{"missing date", aliceToken, map[string]any{"shift": "MORNING"}, http.StatusUnprocessableEntity},
		{"foreign visit", bobToken, map[string]any{"date": "2025-12-08"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, path, tt.token, tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.status, w.Body)
			}
		})
	}

	if w := ts.do(t, http.MethodPost, "/api/visits/abc/report/validate", aliceToken, map[string]any{"date": "2025-12-05"}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad id: status %d, want 422", w.Code)
	}
}

func TestDeleteVisitRemovesChain(t *testing.T) {
	ts := newTestServer(t)
	v := ts.seedVisit(t, "alice", "2025-12-05", agenda.ShiftMorning)
	w := ts.do(t, http.MethodPost, "/api/visits/visit/"+itoa(v.ReferenceID)+"/reschedule", aliceToken,
		map[string]any{"new_date": "2025-12-09"})
	if w.Code != http.StatusCreated {
		t.Fatalf("reschedule: status %d: %s", w.Code, w.Body)
	}

	if w = ts.do(t, http.MethodDelete, "/api/records/visit/"+itoa(v.ReferenceID), aliceToken, nil); w.Code != http.StatusOK {
		t.Fatalf("delete: status %d: %s", w.Code, w.Body)
	}
	w = ts.do(t, http.MethodGet, "/api/agenda?include_superseded=true", aliceToken, nil)
	if got := decode[[]agenda.Record](t, w); len(got) != 0 {
		t.Errorf("records left after delete: %+v", got)
	}
	if w = ts.do(t, http.MethodDelete, "/api/records/nonsense/1", aliceToken, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad kind: status %d, want 400", w.Code)
	}
}

func TestAgendaFeed(t *testing.T) {
	ts := newTestServer(t)
	v := ts.seedVisit(t, "alice", "2025-12-05", agenda.ShiftMorning)
	ts.do(t, http.MethodPost, "/api/visits/visit/"+itoa(v.ReferenceID)+"/reschedule", aliceToken,
		map[string]any{"new_date": "2025-12-09", "shift": "AFTERNOON"})
	ts.do(t, http.MethodPost, "/api/events", aliceToken, map[string]any{"title": "Training", "date": "2025-12-10", "all_day": true})

	w := ts.do(t, http.MethodGet, "/api/agenda.ics?include_superseded=true", aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("content type = %q", ct)
	}
	cal, err := ical.ParseCalendar(strings.NewReader(w.Body.String()))
	if err != nil {
		t.Fatalf("ParseCalendar: %v", err)
	}
	var summaries []string
	for _, ev := range cal.Events() {
		summaries = append(summaries, ev.GetProperty(ical.ComponentPropertySummary).Value)
	}
	want := []string{"Chiller service (Afternoon)", "Training (All day)"}
	if strings.Join(summaries, "|") != strings.Join(want, "|") {
		t.Errorf("summaries = %q, want %q", summaries, want)
	}
}

func TestGoogleEventID(t *testing.T) {
	refs := []agenda.RecordRef{
		{Kind: agenda.KindEvent, ID: 7},
		{Kind: agenda.KindVisit, ID: 7},
		{Kind: agenda.KindVisitRescheduled, ID: 7},
	}
	seen := map[string]bool{}
	for _, ref := range refs {
		id := googleEventID(ref)
		if seen[id] {
			t.Errorf("duplicate id %q", id)
		}
		seen[id] = true
		for _, r := range id {
			if !(r >= 'a' && r <= 'v') && !(r >= '0' && r <= '9') {
				t.Errorf("%q has a non base32hex character %q", id, r)
			}
		}
	}

	ev := googleEvent(agenda.Record{
		Kind: agenda.KindVisit, ReferenceID: 3, Title: "Chiller service",
		Date: agenda.Date{Year: 2025, Month: time.December, Day: 31}, Shift: agenda.ShiftMorning,
	})
	if ev.Start.Date != "2025-12-31" || ev.End.Date != "2026-01-01" || ev.Summary != "Chiller service (Morning)" {
		t.Errorf("event = %+v start %+v end %+v", ev, ev.Start, ev.End)
	}
}

func TestOAuthState(t *testing.T) {
	ts := newTestServer(t)
	now := time.Date(2025, time.December, 1, 9, 0, 0, 0, time.UTC)
	ts.app.now = func() time.Time { return now }

	state := ts.app.newState("alice")
	if tech, ok := ts.app.takeState(state); !ok || tech != "alice" {
		t.Fatalf("takeState = %q, %v", tech, ok)
	}
	if _, ok := ts.app.takeState(state); ok {
		t.Error("state was accepted twice")
	}

	stale := ts.app.newState("bob")
	now = now.Add(oauthStateTTL + time.Second)
	if _, ok := ts.app.takeState(stale); ok {
		t.Error("expired state was accepted")
	}
}

func TestCalendarRoutesWithoutGoogle(t *testing.T) {
	ts := newTestServer(t)
	if w := ts.do(t, http.MethodGet, "/api/calendar/auth", aliceToken, nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("auth: status %d, want 503", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/calendar/sync", aliceToken, nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("sync: status %d, want 503", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/oauth2callback?code=x&state=y", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("callback: status %d, want 503", w.Code)
	}
	c, err := ts.app.StartSync(context.Background())
	if c != nil || err != nil {
		t.Errorf("StartSync = %v, %v; want nil, nil", c, err)
	}
}

func TestSyncRequiresConnectedCalendar(t *testing.T) {
	ts := newTestServer(t)
	ts.app.Google = config.GoogleConfig{
		ClientID: "id", ClientSecret: "secret", RedirectURL: "http://localhost/oauth2callback",
		CalendarID: "primary", HorizonDays: 30,
	}
	w := ts.do(t, http.MethodPost, "/api/calendar/sync", aliceToken, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404: %s", w.Code, w.Body)
	}

	w = ts.do(t, http.MethodGet, "/api/calendar/auth", aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("auth: status %d: %s", w.Code, w.Body)
	}
	body := decode[map[string]string](t, w)
	if !strings.Contains(body["auth_url"], "state="+body["state"]) {
		t.Errorf("auth url %q does not carry state %q", body["auth_url"], body["state"])
	}
	if w = ts.do(t, http.MethodGet, "/oauth2callback?code=x&state=unknown", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown state: status %d, want 400", w.Code)
	}
}

// fakeGoogleCalendar serves the events endpoints of one calendar from memory.
type fakeGoogleCalendar struct {
	mu     sync.Mutex
	events map[string]*calendar.Event
}

func (f *fakeGoogleCalendar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const base = "/calendars/primary/events"
	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, base), "/")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && id == "":
		list := &calendar.Events{}
		for _, ev := range f.events {
			list.Items = append(list.Items, ev)
		}
		json.NewEncoder(w).Encode(list)
	case r.Method == http.MethodPost && id == "":
		var ev calendar.Event
		json.NewDecoder(r.Body).Decode(&ev)
		f.events[ev.Id] = &ev
		json.NewEncoder(w).Encode(&ev)
	case r.Method == http.MethodPut && f.events[id] != nil:
		var ev calendar.Event
		json.NewDecoder(r.Body).Decode(&ev)
		ev.Id = id
		f.events[id] = &ev
		json.NewEncoder(w).Encode(&ev)
	case r.Method == http.MethodDelete && f.events[id] != nil:
		delete(f.events, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
	}
}

func (f *fakeGoogleCalendar) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id := range f.events {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func TestSyncRemovesDeletedAndMovedRecords(t *testing.T) {
	ts := newTestServer(t)
	ts.app.Google = config.GoogleConfig{
		ClientID: "id", ClientSecret: "secret", RedirectURL: "http://localhost/oauth2callback",
		CalendarID: "primary", HorizonDays: 30,
	}
	gcal := &fakeGoogleCalendar{events: map[string]*calendar.Event{
		"dentist": {Id: "dentist", Summary: "Dentist"},
		"agendaev99": {Id: "agendaev99", Summary: "Old event",
			ExtendedProperties: &calendar.EventExtendedProperties{Private: map[string]string{"agenda_ref": "event#99"}}},
	}}
	gsrv := httptest.NewServer(gcal)
	t.Cleanup(gsrv.Close)
	ts.app.calendarOpts = []option.ClientOption{option.WithEndpoint(gsrv.URL + "/")}

	raw, err := json.Marshal(&oauth2.Token{AccessToken: "access", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("failed to encode token: %v", err)
	}
	if err := ts.store.SaveCalendarToken(context.Background(), "alice", raw); err != nil {
		t.Fatalf("SaveCalendarToken: %v", err)
	}

	v := ts.seedVisit(t, "alice", "2025-12-05", agenda.ShiftMorning)
	w := ts.do(t, http.MethodPost, "/api/events", aliceToken, map[string]any{"title": "Training", "date": "2025-12-06"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create event: status %d: %s", w.Code, w.Body)
	}
	ev := decode[agenda.Record](t, w)

	runSync := func() syncResult {
		t.Helper()
		w := ts.do(t, http.MethodPost, "/api/calendar/sync", aliceToken, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("sync: status %d: %s", w.Code, w.Body)
		}
		return decode[syncResult](t, w)
	}

	if res := runSync(); res.Pushed != 2 || res.Removed != 1 {
		t.Errorf("first sync = %+v, want 2 pushed and 1 removed", res)
	}
	want := []string{"agendaev" + itoa(ev.ReferenceID), "agendavi" + itoa(v.ReferenceID), "dentist"}
	if got := gcal.ids(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("google events = %v, want %v", got, want)
	}

	if w := ts.do(t, http.MethodDelete, "/api/events/"+itoa(ev.ReferenceID), aliceToken, nil); w.Code != http.StatusOK {
		t.Fatalf("delete event: status %d: %s", w.Code, w.Body)
	}
	w = ts.do(t, http.MethodPost, "/api/visits/visit/"+itoa(v.ReferenceID)+"/reschedule", aliceToken, map[string]any{"new_date": "2025-12-08"})
	if w.Code != http.StatusCreated {
		t.Fatalf("reschedule: status %d: %s", w.Code, w.Body)
	}
	moved := decode[agenda.Record](t, w)

	if res := runSync(); res.Pushed != 1 || res.Removed != 2 {
		t.Errorf("second sync = %+v, want 1 pushed and 2 removed", res)
	}
	want = []string{"agendarv" + itoa(moved.ReferenceID), "dentist"}
	if got := gcal.ids(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("google events = %v, want %v", got, want)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
