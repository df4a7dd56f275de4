package model

import (
	"fmt"
	"strings"

	"eventocc/internal/civil"
)

// Frequency is how often a recurring date repeats.
type Frequency string

const (
	FrequencyOnce    Frequency = "ONCE"
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
)

// ParseFrequency accepts any letter case; "" means ONCE.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToUpper(strings.TrimSpace(s))); f {
	case "":
		return FrequencyOnce, nil
	case FrequencyOnce, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return f, nil
	default:
		return "", fmt.Errorf("unknown frequency %q", s)
	}
}

// State is the lifecycle flag of a materialized occurrence. Occurrences are
// never deleted; they move to CANCELLED or SOLD_OUT instead.
type State string

const (
	StateScheduled State = "SCHEDULED"
	StateCancelled State = "CANCELLED"
	StateSoldOut   State = "SOLD_OUT"
)

func ParseState(s string) (State, error) {
	switch st := State(strings.ToUpper(strings.TrimSpace(s))); st {
	case StateScheduled, StateCancelled, StateSoldOut:
		return st, nil
	default:
		return "", fmt.Errorf("unknown occurrence state %q", s)
	}
}

// Override changes a single date of a series. Nil times keep the rule's base
// time-of-day.
type Override struct {
	StartTime *string `json:"startTime,omitempty"`
	EndTime   *string `json:"endTime,omitempty"`
	Cancelled bool    `json:"cancelled,omitempty"`
}

type CustomOccurrence struct {
	Date     civil.Date `json:"date"`
	Override Override   `json:"override"`
}

// RecurrenceRule is the persisted definition a series is expanded from.
//
// When RRule is set it is an RFC 5545 RRULE value (e.g.
// "FREQ=WEEKLY;BYDAY=MO") and takes precedence over Frequency, Interval,
// Count and Until. No candidate falls before Anchor; with a raw RRule whose
// BYxxx parts exclude the anchor's own date, the first candidate is the first
// matching date after it.
//
// Cancelled marks the whole series as called off: every occurrence it
// expands to is CANCELLED.
type RecurrenceRule struct {
	ID string `json:"id,omitempty"`

	Anchor    civil.Date `json:"anchor"`
	Frequency Frequency  `json:"frequency,omitempty"`
	Interval  int        `json:"interval,omitempty"`
	Count     int        `json:"count,omitempty"`
	Until     civil.Date `json:"until,omitzero"`
	RRule     string     `json:"rrule,omitempty"`

	// Timezone is an IANA name the wall-clock times below are expressed in.
	Timezone        string `json:"timezone"`
	BaseStartTime   string `json:"baseStartTime,omitempty"`
	BaseEndTime     string `json:"baseEndTime,omitempty"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	MaxCapacity     *int   `json:"maxCapacity,omitempty"`

	Cancelled bool `json:"cancelled,omitempty"`

	ExceptionDates    []civil.Date       `json:"exceptionDates,omitempty"`
	CustomOccurrences []CustomOccurrence `json:"customOccurrences,omitempty"`
}

// Occurrence is one concrete, dated instance of a series.
type Occurrence struct {
	Date        civil.Date `json:"date"`
	StartTime   string     `json:"startTime,omitempty"`
	EndTime     string     `json:"endTime,omitempty"`
	Timezone    string     `json:"timezone,omitempty"`
	MaxCapacity *int       `json:"maxCapacity,omitempty"`
	State       State      `json:"state"`
}
