package agenda

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the discriminant of an agenda record.
type Kind string

const (
	KindEvent            Kind = "EVENT"
	KindVisit            Kind = "VISIT"
	KindVisitRescheduled Kind = "VISIT_RESCHEDULED"
)

// ParseKind accepts the canonical names and the lower-case path slugs.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EVENT", "EVENTS":
		return KindEvent, nil
	case "VISIT", "VISITS":
		return KindVisit, nil
	case "VISIT_RESCHEDULED", "RESCHEDULED", "RESCHEDULES":
		return KindVisitRescheduled, nil
	default:
		return "", fmt.Errorf("%w: unknown record kind %q", ErrValidation, s)
	}
}

// Slug is the URL path form of the kind.
func (k Kind) Slug() string {
	switch k {
	case KindEvent:
		return "event"
	case KindVisit:
		return "visit"
	case KindVisitRescheduled:
		return "rescheduled"
	default:
		return strings.ToLower(string(k))
	}
}

// IsVisit reports whether records of this kind consume an exclusive shift slot.
func (k Kind) IsVisit() bool {
	return k == KindVisit || k == KindVisitRescheduled
}

// RecordRef identifies a record. IDs are unique per kind only.
type RecordRef struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

func (r RecordRef) String() string {
	return r.Kind.Slug() + "#" + strconv.FormatInt(r.ID, 10)
}

// EventDetails holds the EVENT-only attributes.
type EventDetails struct {
	ClientName string `json:"client_name,omitempty"`
}

// VisitDetails holds attributes shared by VISIT and VISIT_RESCHEDULED.
type VisitDetails struct {
	UnitName        string `json:"unit_name,omitempty"`
	SectorName      string `json:"sector_name,omitempty"`
	ResponsibleName string `json:"responsible_name,omitempty"`
	NextVisitDate   *Date  `json:"next_visit_date,omitempty"`
	NextVisitShift  Shift  `json:"next_visit_shift,omitempty"`
}

// RescheduleDetails links a VISIT_RESCHEDULED record to the record it replaces.
type RescheduleDetails struct {
	SourceVisitID     int64  `json:"source_visit_id"`
	SourceKind        Kind   `json:"source_kind"`
	OriginalVisitDate Date   `json:"original_visit_date"`
	OriginalShift     Shift  `json:"original_shift"`
	RootVisitID       int64  `json:"root_visit_id"`
	Reason            string `json:"reason,omitempty"`
}

// Source is the reference of the record this one was rescheduled from.
func (d RescheduleDetails) Source() RecordRef {
	return RecordRef{Kind: d.SourceKind, ID: d.SourceVisitID}
}

// Record is one agenda entry. Exactly the payloads matching Kind are set:
// Event for EVENT, Visit for VISIT, Visit and Reschedule for VISIT_RESCHEDULED.
type Record struct {
	Kind         Kind   `json:"kind"`
	ReferenceID  int64  `json:"reference_id"`
	TechnicianID string `json:"technician_id"`
	Title        string `json:"title"`
	Date         Date   `json:"date"`
	Shift        Shift  `json:"shift"`
	AllDay       bool   `json:"all_day,omitempty"`
	Description  string `json:"description,omitempty"`

	Event      *EventDetails      `json:"event,omitempty"`
	Visit      *VisitDetails      `json:"visit,omitempty"`
	Reschedule *RescheduleDetails `json:"reschedule,omitempty"`

	// SupersededBy is set on a visit-kind record that was rescheduled away.
	SupersededBy *RecordRef `json:"superseded_by,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

func (r Record) Ref() RecordRef {
	return RecordRef{Kind: r.Kind, ID: r.ReferenceID}
}

// Occupies reports whether the record holds its (date, shift) slot exclusively.
func (r Record) Occupies() bool {
	return r.Kind.IsVisit() && r.SupersededBy == nil
}

// Normalize fills defaults so downstream code can rely on a complete record.
func (r *Record) Normalize() {
	r.Shift = NormalizeShift(r.Shift)
	r.Title = strings.TrimSpace(r.Title)
	switch r.Kind {
	case KindEvent:
		if r.Event == nil {
			r.Event = &EventDetails{}
		}
	case KindVisit, KindVisitRescheduled:
		if r.Visit == nil {
			r.Visit = &VisitDetails{}
		}
		if r.Visit.NextVisitDate != nil {
			r.Visit.NextVisitShift = NormalizeShift(r.Visit.NextVisitShift)
		}
		if r.Reschedule != nil {
			r.Reschedule.OriginalShift = NormalizeShift(r.Reschedule.OriginalShift)
		}
	}
}

// Validate checks the union is well formed.
func (r Record) Validate() error {
	if r.TechnicianID == "" {
		return fmt.Errorf("%w: technician is required", ErrValidation)
	}
	if r.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if r.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	if !r.Shift.Valid() {
		return fmt.Errorf("%w: invalid shift %q", ErrValidation, r.Shift)
	}
	switch r.Kind {
	case KindEvent:
		if r.Event == nil || r.Visit != nil || r.Reschedule != nil {
			return fmt.Errorf("%w: event record must carry only event details", ErrValidation)
		}
	case KindVisit:
		if r.Visit == nil || r.Event != nil {
			return fmt.Errorf("%w: visit record must carry only visit details", ErrValidation)
		}
		if r.Reschedule != nil {
			return fmt.Errorf("%w: plain visit cannot reference a source visit", ErrValidation)
		}
	case KindVisitRescheduled:
		if r.Visit == nil || r.Event != nil {
			return fmt.Errorf("%w: rescheduled visit must carry visit details", ErrValidation)
		}
		if r.Reschedule == nil || r.Reschedule.SourceVisitID <= 0 {
			return fmt.Errorf("%w: rescheduled visit must reference its source visit", ErrValidation)
		}
		if !r.Reschedule.SourceKind.IsVisit() {
			return fmt.Errorf("%w: rescheduled visit source must be a visit", ErrValidation)
		}
		if r.Reschedule.OriginalVisitDate.IsZero() {
			return fmt.Errorf("%w: rescheduled visit must keep the original date", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown record kind %q", ErrValidation, r.Kind)
	}
	return nil
}

// EventInput is the payload of create/update event.
type EventInput struct {
	// TechnicianID selects the owning agenda; only administrators may set
	// it to someone other than themselves.
	TechnicianID string `json:"technician_id,omitempty"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Date         Date   `json:"date"`
	Shift        Shift  `json:"shift,omitempty"`
	AllDay       bool   `json:"all_day,omitempty"`
	ClientName   string `json:"client_name,omitempty"`
}

// Normalize trims the input, defaults the shift and validates required fields.
func (in *EventInput) Normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.ClientName = strings.TrimSpace(in.ClientName)
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	shift, err := ParseShift(string(in.Shift))
	if err != nil {
		return err
	}
	in.Shift = shift
	return nil
}

// VisitInput is the payload used by the visit scheduling flow.
type VisitInput struct {
	TechnicianID    string `json:"technician_id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Date            Date   `json:"date"`
	Shift           Shift  `json:"shift,omitempty"`
	AllDay          bool   `json:"all_day,omitempty"`
	UnitName        string `json:"unit_name,omitempty"`
	SectorName      string `json:"sector_name,omitempty"`
	ResponsibleName string `json:"responsible_name,omitempty"`
	NextVisitDate   *Date  `json:"next_visit_date,omitempty"`
	NextVisitShift  Shift  `json:"next_visit_shift,omitempty"`
}

func (in *VisitInput) Normalize() error {
	in.TechnicianID = strings.TrimSpace(in.TechnicianID)
	in.Title = strings.TrimSpace(in.Title)
	if in.TechnicianID == "" {
		return fmt.Errorf("%w: technician is required", ErrValidation)
	}
	if in.Title == "" {
		in.Title = strings.TrimSpace(in.UnitName)
	}
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	shift, err := ParseShift(string(in.Shift))
	if err != nil {
		return err
	}
	in.Shift = shift
	if in.NextVisitDate != nil {
		next, err := ParseShift(string(in.NextVisitShift))
		if err != nil {
			return err
		}
		in.NextVisitShift = next
	} else {
		in.NextVisitShift = ""
	}
	return nil
}

// RescheduleInput moves a visit-kind record to a new date.
type RescheduleInput struct {
	Source  RecordRef `json:"source"`
	NewDate Date      `json:"new_date"`
	// Shift is the target shift; empty keeps the source record's shift.
	Shift  Shift  `json:"shift,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (in *RescheduleInput) Normalize() error {
	if !in.Source.Kind.IsVisit() {
		return fmt.Errorf("%w: only visits can be rescheduled", ErrValidation)
	}
	if in.Source.ID <= 0 {
		return fmt.Errorf("%w: visit id is required", ErrValidation)
	}
	if in.NewDate.IsZero() {
		return fmt.Errorf("%w: new date is required", ErrValidation)
	}
	if in.Shift != "" {
		shift, err := ParseShift(string(in.Shift))
		if err != nil {
			return err
		}
		in.Shift = shift
	}
	in.Reason = strings.TrimSpace(in.Reason)
	return nil
}

// Query selects agenda records.
type Query struct {
	// TechnicianID scopes the read to one agenda. Ignored when Fleet is set.
	TechnicianID string
	// Fleet reads every technician's agenda (administrators only).
	Fleet bool
	// From and To bound the date range inclusively; zero values leave it open.
	From Date
	To   Date
	IDs  []int64
	// Responsible is a case-insensitive substring match on the visit's
	// responsible person. When set it replaces the IDs filter.
	Responsible string
	// IncludeSuperseded also returns visits that were rescheduled away.
	IncludeSuperseded bool
}

// Effective applies filter precedence: a responsible filter wins over ids.
func (q Query) Effective() Query {
	q.Responsible = strings.TrimSpace(q.Responsible)
	if q.Responsible != "" {
		q.IDs = nil
	}
	return q
}
