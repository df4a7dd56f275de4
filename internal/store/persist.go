package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ToPersisted encodes the session as a JSON array of recurring dates.
// Durations are left out; they are recomputed on load.
func (s *Store) ToPersisted() ([]byte, error) {
	payload, err := json.Marshal(s.Dates())
	if err != nil {
		return nil, fmt.Errorf("marshal authoring state: %w", err)
	}
	return payload, nil
}

// FromPersisted rebuilds a Store from ToPersisted output. Later entries for a
// date already seen are merged into the first one, and missing ids are
// generated, so the loaded store holds the same invariants as a live one.
func FromPersisted(raw []byte) (*Store, error) {
	var dates []RecurringDate
	if err := json.Unmarshal(raw, &dates); err != nil {
		return nil, fmt.Errorf("decode authoring state: %w", err)
	}

	s := New()
	for _, rd := range dates {
		if rd.Date.IsZero() {
			return nil, fmt.Errorf("decode authoring state: recurring date %q has no date", rd.ID)
		}
		rd.Repeats = normalizeFrequency(rd.Repeats)

		if i := s.indexByDate(rd.Date); i >= 0 {
			s.dates[i].Repeats = rd.Repeats
			s.dates[i].TimeSlots = append(s.dates[i].TimeSlots, loadSlots(rd.TimeSlots)...)
			continue
		}
		if rd.ID == "" {
			rd.ID = uuid.NewString()
		}
		rd.TimeSlots = loadSlots(rd.TimeSlots)
		s.dates = append(s.dates, rd)
	}
	return s, nil
}

func loadSlots(in []TimeSlot) []TimeSlot {
	out := make([]TimeSlot, 0, len(in))
	for _, slot := range in {
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		slot.refresh()
		out = append(out, slot)
	}
	return out
}
