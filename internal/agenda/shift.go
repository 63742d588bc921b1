package agenda

import (
	"fmt"
	"strings"
)

// Shift is one of the two half-day booking slots of a date.
type Shift string

const (
	ShiftMorning   Shift = "MORNING"
	ShiftAfternoon Shift = "AFTERNOON"
)

// Shifts lists both shifts in day order.
var Shifts = []Shift{ShiftMorning, ShiftAfternoon}

// ParseShift accepts either shift name in any case. An empty value is MORNING.
func ParseShift(s string) (Shift, error) {
	switch Shift(strings.ToUpper(strings.TrimSpace(s))) {
	case "", ShiftMorning:
		return ShiftMorning, nil
	case ShiftAfternoon:
		return ShiftAfternoon, nil
	default:
		return "", fmt.Errorf("%w: shift must be MORNING or AFTERNOON, got %q", ErrValidation, s)
	}
}

// NormalizeShift replaces a missing shift with MORNING.
func NormalizeShift(s Shift) Shift {
	if s == "" {
		return ShiftMorning
	}
	return s
}

func (s Shift) Valid() bool {
	return s == ShiftMorning || s == ShiftAfternoon
}

// Label is the human-readable name used in titles.
func (s Shift) Label() string {
	switch s {
	case ShiftMorning:
		return "Morning"
	case ShiftAfternoon:
		return "Afternoon"
	default:
		return ""
	}
}
