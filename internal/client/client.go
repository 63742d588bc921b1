// Package client talks to the agenda service over its HTTP API. It is the
// agenda repository, availability store and identity source of the
// scheduling engine.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"agenda-service/internal/agenda"
	appLog "agenda-service/internal/log"
)

// Client is a thin HTTP client for the agenda service. It never retries.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the service at baseURL authenticating with token.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// apiError is the error body every handler writes.
type apiError struct {
	Error   string `json:"error"`
	Blocked bool   `json:"blocked,omitempty"`
}

// statusErr maps a non-2xx response onto the agenda error classes.
func statusErr(status int, body []byte) error {
	var e apiError
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", agenda.ErrValidation, msg)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", agenda.ErrForbidden, msg)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", agenda.ErrNotFound, msg)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", agenda.ErrConflict, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", agenda.ErrUnavailable, status, msg)
	}
}

// do sends a request and decodes a JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		appLog.Debug("agenda request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("%w: %v", agenda.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", agenda.ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusErr(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
	}
	return nil
}

func recordPath(ref agenda.RecordRef) string {
	return "/api/records/" + ref.Kind.Slug() + "/" + strconv.FormatInt(ref.ID, 10)
}

// Me returns the caller as resolved by the service.
func (c *Client) Me(ctx context.Context) (agenda.Principal, error) {
	var p agenda.Principal
	err := c.do(ctx, http.MethodGet, "/api/me", nil, nil, &p)
	return p, err
}

// ListRecords reads the agenda. Fleet queries require an administrator.
func (c *Client) ListRecords(ctx context.Context, q agenda.Query) ([]agenda.Record, error) {
	v := url.Values{}
	if q.Fleet {
		v.Set("scope", "fleet")
	} else if q.TechnicianID != "" {
		v.Set("technician_id", q.TechnicianID)
	}
	if !q.From.IsZero() {
		v.Set("from", q.From.String())
	}
	if !q.To.IsZero() {
		v.Set("to", q.To.String())
	}
	if len(q.IDs) > 0 {
		ids := make([]string, len(q.IDs))
		for i, id := range q.IDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		v.Set("ids", strings.Join(ids, ","))
	}
	if q.Responsible != "" {
		v.Set("responsible", q.Responsible)
	}
	if q.IncludeSuperseded {
		v.Set("include_superseded", "true")
	}

	var recs []agenda.Record
	if err := c.do(ctx, http.MethodGet, "/api/agenda", v, nil, &recs); err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].Normalize()
	}
	return recs, nil
}

func (c *Client) GetRecord(ctx context.Context, ref agenda.RecordRef) (agenda.Record, error) {
	var rec agenda.Record
	if err := c.do(ctx, http.MethodGet, recordPath(ref), nil, nil, &rec); err != nil {
		return agenda.Record{}, err
	}
	rec.Normalize()
	return rec, nil
}

// Lineage returns the reschedule chain of a visit, root first.
func (c *Client) Lineage(ctx context.Context, ref agenda.RecordRef) ([]agenda.Record, error) {
	var recs []agenda.Record
	if err := c.do(ctx, http.MethodGet, recordPath(ref)+"/lineage", nil, nil, &recs); err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].Normalize()
	}
	return recs, nil
}

// MonthAvailability fetches the per-day busy flags of a month. An empty
// technicianID means the caller's own agenda.
func (c *Client) MonthAvailability(ctx context.Context, technicianID string, year int, month time.Month) ([]agenda.DayAvailability, error) {
	v := url.Values{}
	v.Set("year", strconv.Itoa(year))
	v.Set("month", strconv.Itoa(int(month)))
	if technicianID != "" {
		v.Set("technician_id", technicianID)
	}
	var days []agenda.DayAvailability
	err := c.do(ctx, http.MethodGet, "/api/availability", v, nil, &days)
	return days, err
}

// CheckSlot asks the service whether a slot is free. A blocked slot is a
// result, not an error.
func (c *Client) CheckSlot(ctx context.Context, req agenda.SlotRequest) (agenda.CheckResult, error) {
	v := url.Values{}
	v.Set("date", req.Date.String())
	v.Set("shift", string(agenda.NormalizeShift(req.Shift)))
	if req.TechnicianID != "" {
		v.Set("technician_id", req.TechnicianID)
	}
	if req.AllDay {
		v.Set("all_day", "true")
	}
	if req.Exclude != nil {
		v.Set("exclude_kind", req.Exclude.Kind.Slug())
		v.Set("exclude_id", strconv.FormatInt(req.Exclude.ID, 10))
	}
	var res agenda.CheckResult
	err := c.do(ctx, http.MethodGet, "/api/availability/check", v, nil, &res)
	return res, err
}

func (c *Client) CreateEvent(ctx context.Context, in agenda.EventInput) (agenda.Record, error) {
	var rec agenda.Record
	if err := c.do(ctx, http.MethodPost, "/api/events", nil, in, &rec); err != nil {
		return agenda.Record{}, err
	}
	rec.Normalize()
	return rec, nil
}

func (c *Client) UpdateEvent(ctx context.Context, id int64, in agenda.EventInput) (agenda.Record, error) {
	var rec agenda.Record
	if err := c.do(ctx, http.MethodPut, "/api/events/"+strconv.FormatInt(id, 10), nil, in, &rec); err != nil {
		return agenda.Record{}, err
	}
	rec.Normalize()
	return rec, nil
}

// DeleteRecord deletes an event, or a visit together with its lineage.
func (c *Client) DeleteRecord(ctx context.Context, ref agenda.RecordRef) error {
	return c.do(ctx, http.MethodDelete, recordPath(ref), nil, nil, nil)
}

// rescheduleBody is the wire form of a reschedule request; the source is in the path.
type rescheduleBody struct {
	NewDate agenda.Date  `json:"new_date"`
	Shift   agenda.Shift `json:"shift,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

func (c *Client) RescheduleVisit(ctx context.Context, in agenda.RescheduleInput) (agenda.Record, error) {
	path := "/api/visits/" + in.Source.Kind.Slug() + "/" + strconv.FormatInt(in.Source.ID, 10) + "/reschedule"
	var rec agenda.Record
	err := c.do(ctx, http.MethodPost, path, nil, rescheduleBody{NewDate: in.NewDate, Shift: in.Shift, Reason: in.Reason}, &rec)
	if err != nil {
		return agenda.Record{}, err
	}
	rec.Normalize()
	return rec, nil
}

// CreateVisit books a visit; administrators only.
func (c *Client) CreateVisit(ctx context.Context, in agenda.VisitInput) (agenda.Record, error) {
	var rec agenda.Record
	if err := c.do(ctx, http.MethodPost, "/api/visits", nil, in, &rec); err != nil {
		return agenda.Record{}, err
	}
	rec.Normalize()
	return rec, nil
}

// ReportValidation is the body of a report submission check.
type ReportValidation struct {
	Date  agenda.Date  `json:"date"`
	Shift agenda.Shift `json:"shift,omitempty"`
}

// ValidateReport asks the service whether a visit report may be filed for
// the given slot. Nil means accepted.
func (c *Client) ValidateReport(ctx context.Context, visitID int64, date agenda.Date, shift agenda.Shift) error {
	path := "/api/visits/" + strconv.FormatInt(visitID, 10) + "/report/validate"
	return c.do(ctx, http.MethodPost, path, nil, ReportValidation{Date: date, Shift: shift}, nil)
}

// IsTransport reports whether err means the service could not be reached
// or failed internally.
func IsTransport(err error) bool {
	return errors.Is(err, agenda.ErrUnavailable)
}
