// Package classify places dates and occurrences relative to a caller-supplied
// "now". Nothing here reads the system clock.
package classify

import (
	"sort"
	"time"

	"eventocc/internal/civil"
	"eventocc/internal/model"
	"eventocc/internal/timeslot"
)

const (
	LabelToday        = "Today"
	LabelTomorrow     = "Tomorrow"
	LabelHappeningNow = "Happening Now"
	LabelPastEvent    = "Past Event"
)

// daysInWeek bounds the "within a week" relative label.
const daysInWeek = 7

func IsToday(d, now civil.Date) bool {
	return !d.IsZero() && d == now
}

func IsTomorrow(d, now civil.Date) bool {
	return !d.IsZero() && d == now.AddDays(1)
}

// RelativeLabel returns "Today", "Tomorrow", or the weekday name when d falls
// 2..7 days after now. Exact matches win over the weekday form.
func RelativeLabel(d, now civil.Date) (string, bool) {
	switch {
	case d.IsZero():
		return "", false
	case IsToday(d, now):
		return LabelToday, true
	case IsTomorrow(d, now):
		return LabelTomorrow, true
	}
	if days := d.DaysUntil(now); days > 0 && days <= daysInWeek {
		return d.Weekday().String(), true
	}
	return "", false
}

func IsPast(end, now time.Time) bool {
	return end.Before(now)
}

// IsHappeningNow is inclusive on both bounds.
func IsHappeningNow(start, end, now time.Time) bool {
	return !now.Before(start) && !now.After(end)
}

// StatusLabel reports "Happening Now" before "Past Event"; an event that is
// still running is never past.
func StatusLabel(start, end, now time.Time) (string, bool) {
	if IsHappeningNow(start, end, now) {
		return LabelHappeningNow, true
	}
	if IsPast(end, now) {
		return LabelPastEvent, true
	}
	return "", false
}

// FutureOccurrences drops cancelled occurrences and those dated before the
// UTC day of now, then sorts the rest by date. The input is not modified and
// equal dates keep their input order.
func FutureOccurrences(occurrences []model.Occurrence, now time.Time) []model.Occurrence {
	today := civil.TodayUTC(now)

	out := make([]model.Occurrence, 0, len(occurrences))
	for _, occ := range occurrences {
		if occ.State == model.StateCancelled {
			continue
		}
		if occ.Date.IsZero() || occ.Date.Before(today) {
			continue
		}
		out = append(out, occ)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// InstantsOf resolves an occurrence's wall-clock times in its timezone. An
// end at or before the start falls on the following day; a missing end
// collapses to the start. ok is false when the start time or timezone is
// unusable.
func InstantsOf(occ model.Occurrence) (start, end time.Time, ok bool) {
	loc := time.UTC
	if occ.Timezone != "" {
		l, err := time.LoadLocation(occ.Timezone)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		loc = l
	}
	if occ.Date.IsZero() {
		return time.Time{}, time.Time{}, false
	}

	startMin, err := timeslot.ParseClock(occ.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	start = occ.Date.In(loc, startMin/60, startMin%60)

	if occ.EndTime == "" {
		return start, start, true
	}
	length, err := timeslot.Minutes(occ.StartTime, occ.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, start.Add(time.Duration(length) * time.Minute), true
}
