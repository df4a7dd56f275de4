// Package store holds the recurring dates and time slots of one authoring
// session. A Store is owned by a single goroutine; callers that share one
// must serialize access themselves.
package store

import (
	"errors"
	"sort"

	"github.com/google/uuid"

	"eventocc/internal/civil"
	appLog "eventocc/internal/log"
	"eventocc/internal/model"
	"eventocc/internal/timeslot"
)

// ErrEmpty is returned by ToRule when no date has been selected.
var ErrEmpty = errors.New("store: no dates selected")

// TimeSlot is a wall-clock window on a recurring date. Duration is derived
// from StartTime/EndTime and is never serialized.
type TimeSlot struct {
	ID        string `json:"id"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Duration  string `json:"-"`
}

func (s *TimeSlot) refresh() {
	s.Duration = timeslot.ComputeDuration(s.StartTime, s.EndTime)
}

type RecurringDate struct {
	ID        string          `json:"id"`
	Date      civil.Date      `json:"date"`
	Repeats   model.Frequency `json:"repeats"`
	TimeSlots []TimeSlot      `json:"timeSlots"`
}

// SlotPatch carries the fields UpdateTimeSlot should change.
type SlotPatch struct {
	StartTime *string
	EndTime   *string
}

// Store keeps recurring dates in insertion order, one per civil date.
type Store struct {
	dates []RecurringDate
	newID func() string
}

func New() *Store {
	return &Store{newID: uuid.NewString}
}

func (s *Store) indexByID(id string) int {
	for i := range s.dates {
		if s.dates[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexByDate(d civil.Date) int {
	for i := range s.dates {
		if s.dates[i].Date == d {
			return i
		}
	}
	return -1
}

// AddRecurringDate selects a date. Selecting an already selected date only
// updates its frequency and returns the existing id.
func (s *Store) AddRecurringDate(d civil.Date, freq model.Frequency) string {
	if i := s.indexByDate(d); i >= 0 {
		s.dates[i].Repeats = freq
		return s.dates[i].ID
	}
	rd := RecurringDate{
		ID:        s.newID(),
		Date:      d,
		Repeats:   freq,
		TimeSlots: []TimeSlot{},
	}
	s.dates = append(s.dates, rd)
	return rd.ID
}

// AddTimeSlot appends a slot with a fresh id and duration. The returned bool
// is false, and nothing changes, when dateID is unknown.
func (s *Store) AddTimeSlot(dateID string, slot TimeSlot) (string, bool) {
	i := s.indexByID(dateID)
	if i < 0 {
		appLog.Debug("store: add slot to unknown date", "date_id", dateID)
		return "", false
	}
	slot.ID = s.newID()
	slot.refresh()
	s.dates[i].TimeSlots = append(s.dates[i].TimeSlots, slot)
	return slot.ID, true
}

// UpdateTimeSlot merges patch into a slot and recomputes its duration.
func (s *Store) UpdateTimeSlot(dateID, slotID string, patch SlotPatch) bool {
	slot := s.slot(dateID, slotID)
	if slot == nil {
		appLog.Debug("store: update unknown slot", "date_id", dateID, "slot_id", slotID)
		return false
	}
	if patch.StartTime != nil {
		slot.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		slot.EndTime = *patch.EndTime
	}
	slot.refresh()
	return true
}

func (s *Store) RemoveTimeSlot(dateID, slotID string) bool {
	i := s.indexByID(dateID)
	if i < 0 {
		return false
	}
	slots := s.dates[i].TimeSlots
	for j := range slots {
		if slots[j].ID == slotID {
			s.dates[i].TimeSlots = append(slots[:j:j], slots[j+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) RemoveRecurringDate(id string) bool {
	i := s.indexByID(id)
	if i < 0 {
		return false
	}
	s.dates = append(s.dates[:i:i], s.dates[i+1:]...)
	return true
}

func (s *Store) HasDateSelected(d civil.Date) bool {
	return s.indexByDate(d) >= 0
}

// DateTimeSlots returns a copy of the slots on d, or an empty slice.
func (s *Store) DateTimeSlots(d civil.Date) []TimeSlot {
	i := s.indexByDate(d)
	if i < 0 {
		return []TimeSlot{}
	}
	return append([]TimeSlot{}, s.dates[i].TimeSlots...)
}

// Dates returns a deep copy of every recurring date in insertion order.
func (s *Store) Dates() []RecurringDate {
	out := make([]RecurringDate, len(s.dates))
	for i, rd := range s.dates {
		rd.TimeSlots = append([]TimeSlot{}, rd.TimeSlots...)
		out[i] = rd
	}
	return out
}

func (s *Store) Len() int {
	return len(s.dates)
}

func (s *Store) slot(dateID, slotID string) *TimeSlot {
	i := s.indexByID(dateID)
	if i < 0 {
		return nil
	}
	for j := range s.dates[i].TimeSlots {
		if s.dates[i].TimeSlots[j].ID == slotID {
			return &s.dates[i].TimeSlots[j]
		}
	}
	return nil
}

// ToRule converts the session into a rule for the expander. The earliest
// date is the anchor and carries the dominant repeat value; every other date
// becomes a custom occurrence with its first slot's times. Slots after the
// first on a date are not representable and are dropped.
func (s *Store) ToRule(timezone string) (model.RecurrenceRule, error) {
	if len(s.dates) == 0 {
		return model.RecurrenceRule{}, ErrEmpty
	}

	ordered := s.Dates()
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	anchor := ordered[0]
	rule := model.RecurrenceRule{
		Anchor:    anchor.Date,
		Frequency: dominantFrequency(ordered),
		Interval:  1,
		Timezone:  timezone,
	}
	if len(anchor.TimeSlots) > 0 {
		rule.BaseStartTime = anchor.TimeSlots[0].StartTime
		rule.BaseEndTime = anchor.TimeSlots[0].EndTime
	}

	for _, rd := range ordered {
		if len(rd.TimeSlots) > 1 {
			appLog.Debug("store: extra slots not carried into rule", "date", rd.Date, "slots", len(rd.TimeSlots))
		}
		if rd.ID == anchor.ID {
			continue
		}
		co := model.CustomOccurrence{Date: rd.Date}
		if len(rd.TimeSlots) > 0 {
			start, end := rd.TimeSlots[0].StartTime, rd.TimeSlots[0].EndTime
			co.Override.StartTime = &start
			co.Override.EndTime = &end
		}
		rule.CustomOccurrences = append(rule.CustomOccurrences, co)
	}
	return rule, nil
}

// dominantFrequency picks the most common repeat value; ties go to the value
// of the earliest date. dates must be sorted.
func dominantFrequency(dates []RecurringDate) model.Frequency {
	counts := make(map[model.Frequency]int, 4)
	for _, rd := range dates {
		counts[normalizeFrequency(rd.Repeats)]++
	}
	best := normalizeFrequency(dates[0].Repeats)
	for _, rd := range dates {
		f := normalizeFrequency(rd.Repeats)
		if counts[f] > counts[best] {
			best = f
		}
	}
	return best
}

func normalizeFrequency(f model.Frequency) model.Frequency {
	parsed, err := model.ParseFrequency(string(f))
	if err != nil {
		return model.FrequencyOnce
	}
	return parsed
}
