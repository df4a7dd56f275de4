package ics

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"eventocc/internal/civil"
	appLog "eventocc/internal/log"
	"eventocc/internal/model"
)

// vevent is the subset of a VEVENT the rule adapter needs.
type vevent struct {
	UID        string
	Start      time.Time
	End        time.Time
	AllDay     bool
	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time
	Cancelled  bool
}

// ParseRules reads an iCalendar payload and returns one RecurrenceRule per
// master VEVENT. RRULE is kept raw, EXDATEs become exception dates and
// RECURRENCE-ID instances become custom occurrences. A cancelled master
// yields a cancelled rule rather than being dropped, so occurrences already
// stored for it flip to CANCELLED. Rule ids are
// "<sourceID>:<UID>" (or just the UID when sourceID is empty).
//
// iCalendar dates are wall dates in the event's own zone, so dates are taken
// from the wall clock of each value rather than from its UTC instant.
func ParseRules(sourceID string, body []byte) ([]model.RecurrenceRule, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ICS: %w", err)
	}

	masters := make([]vevent, 0)
	overrides := make(map[string][]vevent)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "source", sourceID, "reason", perr.Error())
			continue
		}
		if ev.Recurrence != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		masters = append(masters, ev)
	}

	rules := make([]model.RecurrenceRule, 0, len(masters))
	for _, m := range masters {
		rules = append(rules, toRule(sourceID, m, overrides[m.UID]))
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].ID < rules[j].ID
	})

	appLog.Info("ics parse completed", "source", sourceID, "rules", len(rules))
	return rules, nil
}

func parseVEvent(ve *ical.VEvent) (vevent, error) {
	var out vevent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || strings.TrimSpace(uidProp.Value) == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDateValue(dtStart)

	var err error
	if out.AllDay {
		out.Start, err = ve.GetAllDayStartAt()
		if err == nil {
			out.End, _ = ve.GetAllDayEndAt()
		}
	} else {
		out.Start, err = ve.GetStartAt()
		if err == nil {
			out.End, _ = ve.GetEndAt()
		}
	}
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Cancelled = strings.EqualFold(strings.TrimSpace(p.Value), string(ical.ObjectStatusCancelled))
	}

	loc := out.Start.Location()
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		exLoc := paramLocation(p, loc)
		for _, part := range strings.Split(p.Value, ",") {
			if t, perr := parseICSTime(part, exLoc); perr == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		t, perr := parseICSTime(p.Value, paramLocation(p, loc))
		if perr != nil {
			return out, fmt.Errorf("RECURRENCE-ID: %w", perr)
		}
		out.Recurrence = &t
	}
	return out, nil
}

func toRule(sourceID string, m vevent, overrides []vevent) model.RecurrenceRule {
	rule := model.RecurrenceRule{
		ID:        m.UID,
		Anchor:    wallDate(m.Start),
		Frequency: model.FrequencyOnce,
		RRule:     m.RawRRule,
		Timezone:  zoneName(m.Start.Location()),
		// STATUS:CANCELLED on the master calls off the whole series.
		Cancelled: m.Cancelled,
	}
	if sourceID != "" {
		rule.ID = sourceID + ":" + m.UID
	}
	if !m.AllDay {
		rule.BaseStartTime = m.Start.Format("15:04")
		if !m.End.IsZero() && m.End.After(m.Start) {
			rule.BaseEndTime = m.End.In(m.Start.Location()).Format("15:04")
			rule.DurationMinutes = int(m.End.Sub(m.Start).Minutes())
		}
	}
	for _, ex := range m.ExDates {
		rule.ExceptionDates = append(rule.ExceptionDates, wallDate(ex.In(m.Start.Location())))
	}

	for _, ov := range overrides {
		original := wallDate(ov.Recurrence.In(m.Start.Location()))
		if ov.Cancelled {
			rule.CustomOccurrences = append(rule.CustomOccurrences, model.CustomOccurrence{
				Date:     original,
				Override: model.Override{Cancelled: true},
			})
			continue
		}

		start := ov.Start.In(m.Start.Location())
		moved := wallDate(start)
		co := model.CustomOccurrence{Date: moved}
		if !m.AllDay {
			s := start.Format("15:04")
			co.Override.StartTime = &s
			if ov.End.After(ov.Start) {
				e := ov.End.In(m.Start.Location()).Format("15:04")
				co.Override.EndTime = &e
			}
		}
		// A rescheduled instance leaves its original date behind.
		if moved != original {
			rule.ExceptionDates = append(rule.ExceptionDates, original)
		}
		rule.CustomOccurrences = append(rule.CustomOccurrences, co)
	}
	return rule
}

func wallDate(t time.Time) civil.Date {
	return civil.New(t.Year(), t.Month(), t.Day())
}

func zoneName(loc *time.Location) string {
	if loc == nil || loc == time.Local || loc.String() == "" || loc.String() == "Local" {
		return "UTC"
	}
	return loc.String()
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func paramLocation(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if loc, err := time.LoadLocation(tzs[0]); err == nil {
			return loc
		}
	}
	return fallback
}

// parseICSTime handles the DATE, local DATE-TIME and UTC DATE-TIME forms.
// Local and date values are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		if err != nil {
			return time.Time{}, err
		}
		return t.In(loc), nil
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
