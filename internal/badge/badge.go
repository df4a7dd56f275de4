// Package badge renders the short date strings shown on listing cards and
// detail pages. Malformed input never fails; it degrades to a sentinel.
package badge

import (
	"strings"
	"time"

	"eventocc/internal/civil"
	"eventocc/internal/classify"
	"eventocc/internal/model"
)

const (
	TBA         = "TBA"
	DateTBA     = "Date TBA"
	InvalidDate = "Invalid Date"
	SoldOut     = "Sold Out"

	moreSuffix = " +"
)

// DateBadgeText is "Today", "Tomorrow" or "Mon D" for an ISO date string, and
// "TBA" when the date is missing or unreadable.
func DateBadgeText(date string, now time.Time) string {
	d, err := civil.ParseISO(date)
	if err != nil {
		return TBA
	}
	return label(d, civil.TodayUTC(now))
}

// MultiDateBadgeText labels the next future occurrence, falling back to the
// legacy single date. A " +" suffix marks more than one future occurrence.
func MultiDateBadgeText(occurrences []model.Occurrence, legacyDate string, now time.Time) string {
	future := classify.FutureOccurrences(occurrences, now)
	if len(future) == 0 {
		return DateBadgeText(legacyDate, now)
	}

	text := label(future[0].Date, civil.TodayUTC(now))
	if len(future) > 1 {
		text += moreSuffix
	}
	return text
}

// TooltipLines lists up to maxLines future occurrences as "Jan 13 at 19:00",
// "Jan 13 (Sold Out)" or "Jan 13".
func TooltipLines(occurrences []model.Occurrence, now time.Time, maxLines int) []string {
	if maxLines <= 0 {
		return nil
	}
	future := classify.FutureOccurrences(occurrences, now)
	if len(future) > maxLines {
		future = future[:maxLines]
	}

	lines := make([]string, 0, len(future))
	for _, occ := range future {
		short := occ.Date.Short()
		switch {
		case strings.TrimSpace(occ.StartTime) != "":
			lines = append(lines, short+" at "+occ.StartTime)
		case occ.State == model.StateSoldOut:
			lines = append(lines, short+" ("+SoldOut+")")
		default:
			lines = append(lines, short)
		}
	}
	return lines
}

// LongDateText renders "Monday, January 13, 2025" for detail pages.
func LongDateText(date string) string {
	if strings.TrimSpace(date) == "" {
		return DateTBA
	}
	d, err := civil.ParseISO(date)
	if err != nil {
		return InvalidDate
	}
	return d.Long()
}

// label only uses the Today/Tomorrow relative forms; anything further out
// gets the short date.
func label(d, today civil.Date) string {
	switch {
	case classify.IsToday(d, today):
		return classify.LabelToday
	case classify.IsTomorrow(d, today):
		return classify.LabelTomorrow
	default:
		return d.Short()
	}
}
