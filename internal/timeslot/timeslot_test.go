package timeslot

import (
	"errors"
	"testing"
)

func TestComputeDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		start, end string
		want       string
	}{
		{name: "hours_only", start: "09:00", end: "11:00", want: "2h"},
		{name: "minutes_only", start: "09:00", end: "09:45", want: "45m"},
		{name: "hours_minutes", start: "09:15", end: "11:45", want: "2h 30m"},
		{name: "overnight", start: "23:00", end: "01:00", want: "2h"},
		{name: "overnight_minutes", start: "22:00", end: "00:30", want: "2h 30m"},
		{name: "same_value_full_day", start: "09:00", end: "09:00", want: "24h"},
		{name: "single_digit_hour", start: "9:00", end: "10:05", want: "1h 5m"},
		{name: "missing_start", start: "", end: "10:00", want: ""},
		{name: "missing_end", start: "10:00", end: " ", want: ""},
		{name: "garbage", start: "ten", end: "11:00", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ComputeDuration(tc.start, tc.end); got != tc.want {
				t.Fatalf("ComputeDuration(%q, %q) = %q, want %q", tc.start, tc.end, got, tc.want)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	if got, err := ParseClock("23:59"); err != nil || got != 1439 {
		t.Fatalf("ParseClock(23:59) = %d, %v", got, err)
	}
	for _, in := range []string{"24:00", "12:60", "1200", "12:5", "", "-1:00"} {
		if _, err := ParseClock(in); !errors.Is(err, ErrClock) {
			t.Fatalf("ParseClock(%q) error = %v, want ErrClock", in, err)
		}
	}
}

func TestAddMinutesWraps(t *testing.T) {
	t.Parallel()

	got, err := AddMinutes("23:30", 90)
	if err != nil {
		t.Fatalf("AddMinutes: %v", err)
	}
	if got != "01:00" {
		t.Fatalf("AddMinutes() = %q, want 01:00", got)
	}
	if FormatClock(-30) != "23:30" {
		t.Fatalf("FormatClock(-30) = %q", FormatClock(-30))
	}
}
