package badge

import (
	"reflect"
	"testing"
	"time"

	"eventocc/internal/civil"
	"eventocc/internal/model"
)

var jan10 = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func occ(date string, state model.State, start string) model.Occurrence {
	return model.Occurrence{Date: civil.MustParse(date), State: state, StartTime: start}
}

func TestDateBadgeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "absent", in: "", want: "TBA"},
		{name: "malformed", in: "next week", want: "TBA"},
		{name: "today", in: "2025-01-10T20:00:00Z", want: "Today"},
		{name: "tomorrow", in: "2025-01-11", want: "Tomorrow"},
		{name: "later", in: "2025-01-13", want: "Jan 13"},
		{name: "utc_fields", in: "2025-02-01T02:00:00+05:00", want: "Jan 31"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := DateBadgeText(tc.in, jan10); got != tc.want {
				t.Fatalf("DateBadgeText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestMultiDateBadgeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		occs   []model.Occurrence
		legacy string
		want   string
	}{
		{
			name: "two_future_dates",
			occs: []model.Occurrence{
				occ("2025-01-20", model.StateScheduled, ""),
				occ("2025-01-13", model.StateScheduled, ""),
			},
			want: "Jan 13 +",
		},
		{
			name: "single_future_date",
			occs: []model.Occurrence{
				occ("2025-01-06", model.StateScheduled, ""),
				occ("2025-01-13", model.StateScheduled, ""),
			},
			want: "Jan 13",
		},
		{
			name: "cancelled_does_not_count",
			occs: []model.Occurrence{
				occ("2025-01-11", model.StateScheduled, ""),
				occ("2025-01-13", model.StateCancelled, ""),
			},
			want: "Tomorrow",
		},
		{
			name: "relative_with_suffix",
			occs: []model.Occurrence{
				occ("2025-01-10", model.StateScheduled, "19:00"),
				occ("2025-01-11", model.StateSoldOut, ""),
			},
			want: "Today +",
		},
		{
			name:   "legacy_fallback",
			occs:   []model.Occurrence{occ("2025-01-01", model.StateScheduled, "")},
			legacy: "2025-03-01",
			want:   "Mar 1",
		},
		{name: "nothing", want: "TBA"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := MultiDateBadgeText(tc.occs, tc.legacy, jan10); got != tc.want {
				t.Fatalf("MultiDateBadgeText() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTooltipLines(t *testing.T) {
	t.Parallel()

	occs := []model.Occurrence{
		occ("2025-01-27", model.StateScheduled, ""),
		occ("2025-01-20", model.StateSoldOut, ""),
		occ("2025-01-13", model.StateScheduled, "19:00"),
		occ("2025-01-06", model.StateScheduled, "19:00"),
		occ("2025-01-15", model.StateCancelled, "19:00"),
	}

	got := TooltipLines(occs, jan10, 3)
	want := []string{"Jan 13 at 19:00", "Jan 20 (Sold Out)", "Jan 27"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TooltipLines() = %q, want %q", got, want)
	}
	if got := TooltipLines(occs, jan10, 0); got != nil {
		t.Fatalf("maxLines 0 should yield nil, got %q", got)
	}
}

func TestLongDateText(t *testing.T) {
	t.Parallel()

	if got := LongDateText(""); got != DateTBA {
		t.Fatalf("LongDateText(empty) = %q", got)
	}
	if got := LongDateText("13/01/2025"); got != InvalidDate {
		t.Fatalf("LongDateText(malformed) = %q", got)
	}
	if got := LongDateText("2025-01-13"); got != "Monday, January 13, 2025" {
		t.Fatalf("LongDateText() = %q", got)
	}
}
