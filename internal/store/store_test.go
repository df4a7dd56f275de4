package store

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"eventocc/internal/civil"
	"eventocc/internal/model"
	"eventocc/internal/recurrence"
)

func day(s string) civil.Date { return civil.MustParse(s) }

func strp(s string) *string { return &s }

// newTestStore hands out predictable ids.
func newTestStore() *Store {
	s := New()
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return s
}

func TestAddRecurringDate_SameDateUpdatesInPlace(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	first := s.AddRecurringDate(day("2025-01-13"), model.FrequencyOnce)
	s.AddRecurringDate(day("2025-01-06"), model.FrequencyOnce)
	again := s.AddRecurringDate(day("2025-01-13T18:00:00Z"), model.FrequencyWeekly)

	if first != again {
		t.Fatalf("expected existing id %q, got %q", first, again)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 dates, got %d", s.Len())
	}
	dates := s.Dates()
	if dates[0].Date != day("2025-01-13") || dates[0].Repeats != model.FrequencyWeekly {
		t.Fatalf("first entry should keep insertion order with new frequency: %+v", dates[0])
	}
}

func TestTimeSlotLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	d := day("2025-01-13")
	dateID := s.AddRecurringDate(d, model.FrequencyOnce)

	slotID, ok := s.AddTimeSlot(dateID, TimeSlot{ID: "ignored", StartTime: "22:00", EndTime: "00:30", Duration: "stale"})
	if !ok {
		t.Fatalf("add slot failed")
	}
	if slotID == "ignored" {
		t.Fatalf("slot id should be generated")
	}
	slots := s.DateTimeSlots(d)
	if len(slots) != 1 || slots[0].Duration != "2h 30m" {
		t.Fatalf("unexpected slots: %+v", slots)
	}

	if !s.UpdateTimeSlot(dateID, slotID, SlotPatch{EndTime: strp("23:00")}) {
		t.Fatalf("update failed")
	}
	if got := s.DateTimeSlots(d)[0]; got.StartTime != "22:00" || got.Duration != "1h" {
		t.Fatalf("update did not merge/recompute: %+v", got)
	}

	if !s.RemoveTimeSlot(dateID, slotID) {
		t.Fatalf("remove slot failed")
	}
	if got := s.DateTimeSlots(d); len(got) != 0 {
		t.Fatalf("slot not removed: %+v", got)
	}
	if !s.RemoveRecurringDate(dateID) {
		t.Fatalf("remove date failed")
	}
	if s.HasDateSelected(d) {
		t.Fatalf("date still selected")
	}
}

func TestUnknownIDsAreNoOps(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	dateID := s.AddRecurringDate(day("2025-01-13"), model.FrequencyOnce)
	slotID, _ := s.AddTimeSlot(dateID, TimeSlot{StartTime: "09:00", EndTime: "10:00"})
	before := s.Dates()

	if _, ok := s.AddTimeSlot("missing", TimeSlot{StartTime: "09:00"}); ok {
		t.Fatalf("AddTimeSlot on unknown date reported success")
	}
	if s.UpdateTimeSlot(dateID, "missing", SlotPatch{StartTime: strp("08:00")}) {
		t.Fatalf("UpdateTimeSlot on unknown slot reported success")
	}
	if s.UpdateTimeSlot("missing", slotID, SlotPatch{StartTime: strp("08:00")}) {
		t.Fatalf("UpdateTimeSlot on unknown date reported success")
	}
	if s.RemoveTimeSlot(dateID, "missing") || s.RemoveTimeSlot("missing", slotID) {
		t.Fatalf("RemoveTimeSlot on unknown id reported success")
	}
	if s.RemoveRecurringDate("missing") {
		t.Fatalf("RemoveRecurringDate on unknown id reported success")
	}
	if !reflect.DeepEqual(before, s.Dates()) {
		t.Fatalf("store changed after no-op mutations")
	}
	if got := s.DateTimeSlots(day("2030-01-01")); got == nil || len(got) != 0 {
		t.Fatalf("absent date should return empty non-nil slice, got %#v", got)
	}
}

func TestDatesReturnsCopies(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	dateID := s.AddRecurringDate(day("2025-01-13"), model.FrequencyOnce)
	s.AddTimeSlot(dateID, TimeSlot{StartTime: "09:00", EndTime: "10:00"})

	dates := s.Dates()
	dates[0].TimeSlots[0].StartTime = "11:00"
	if s.DateTimeSlots(day("2025-01-13"))[0].StartTime != "09:00" {
		t.Fatalf("Dates() leaked internal slot storage")
	}
}

func TestPersistRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	id := s.AddRecurringDate(day("2025-01-13"), model.FrequencyWeekly)
	s.AddTimeSlot(id, TimeSlot{StartTime: "23:00", EndTime: "01:00"})

	raw, err := s.ToPersisted()
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if strings.Contains(string(raw), "2h") || strings.Contains(string(raw), "uration") {
		t.Fatalf("duration must not be persisted: %s", raw)
	}
	if !strings.Contains(string(raw), `"date":"2025-01-13"`) || !strings.Contains(string(raw), `"repeats":"WEEKLY"`) {
		t.Fatalf("unexpected persisted shape: %s", raw)
	}

	loaded, err := FromPersisted(raw)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(loaded.Dates(), s.Dates()) {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", loaded.Dates(), s.Dates())
	}
	if loaded.DateTimeSlots(day("2025-01-13"))[0].Duration != "2h" {
		t.Fatalf("duration not recomputed on load")
	}
}

func TestFromPersisted_MergesDuplicateDates(t *testing.T) {
	t.Parallel()

	raw := []byte(`[
		{"id":"a","date":"2025-01-13","repeats":"once","timeSlots":[{"id":"s1","startTime":"09:00","endTime":"10:00"}]},
		{"id":"b","date":"2025-01-13T12:00:00Z","repeats":"DAILY","timeSlots":[{"startTime":"12:00","endTime":"12:30"}]}
	]`)
	s, err := FromPersisted(raw)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	dates := s.Dates()
	if len(dates) != 1 {
		t.Fatalf("expected merged single date, got %d", len(dates))
	}
	if dates[0].ID != "a" || dates[0].Repeats != model.FrequencyDaily || len(dates[0].TimeSlots) != 2 {
		t.Fatalf("unexpected merge result: %+v", dates[0])
	}
	if dates[0].TimeSlots[1].ID == "" || dates[0].TimeSlots[1].Duration != "30m" {
		t.Fatalf("slot id/duration not filled: %+v", dates[0].TimeSlots[1])
	}

	if _, err := FromPersisted([]byte(`{"not":"an array"}`)); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := FromPersisted([]byte(`[{"id":"x","repeats":"ONCE"}]`)); err == nil {
		t.Fatalf("expected error for missing date")
	}
}

func TestToRule(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	if _, err := s.ToRule("UTC"); !errors.Is(err, ErrEmpty) {
		t.Fatalf("empty store error = %v, want ErrEmpty", err)
	}

	late := s.AddRecurringDate(day("2025-01-15"), model.FrequencyOnce)
	s.AddTimeSlot(late, TimeSlot{StartTime: "12:00", EndTime: "13:00"})
	anchor := s.AddRecurringDate(day("2025-01-06"), model.FrequencyWeekly)
	s.AddTimeSlot(anchor, TimeSlot{StartTime: "19:00", EndTime: "21:00"})
	s.AddTimeSlot(anchor, TimeSlot{StartTime: "22:00", EndTime: "23:00"})
	s.AddRecurringDate(day("2025-01-13"), model.FrequencyWeekly)

	rule, err := s.ToRule("Europe/Berlin")
	if err != nil {
		t.Fatalf("to rule: %v", err)
	}
	if rule.Anchor != day("2025-01-06") || rule.Frequency != model.FrequencyWeekly || rule.Interval != 1 {
		t.Fatalf("unexpected rule header: %+v", rule)
	}
	if rule.BaseStartTime != "19:00" || rule.BaseEndTime != "21:00" || rule.Timezone != "Europe/Berlin" {
		t.Fatalf("unexpected base times: %+v", rule)
	}
	if len(rule.CustomOccurrences) != 2 {
		t.Fatalf("expected 2 custom occurrences, got %+v", rule.CustomOccurrences)
	}

	occs, err := recurrence.Expand(rule, recurrence.Config{Through: day("2025-01-20")})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	var got []string
	for _, o := range occs {
		got = append(got, o.Date.String()+" "+o.StartTime)
	}
	want := []string{"2025-01-06 19:00", "2025-01-13 19:00", "2025-01-15 12:00", "2025-01-20 19:00"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expanded = %v, want %v", got, want)
	}
}

func TestDominantFrequencyTieGoesToEarliest(t *testing.T) {
	t.Parallel()

	dates := []RecurringDate{
		{Date: day("2025-01-01"), Repeats: model.FrequencyMonthly},
		{Date: day("2025-01-02"), Repeats: model.FrequencyDaily},
	}
	if got := dominantFrequency(dates); got != model.FrequencyMonthly {
		t.Fatalf("dominantFrequency() = %q, want MONTHLY", got)
	}
}
