package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"eventocc/internal/classify"
	"eventocc/internal/model"
)

// ExportOptions names the calendar written by Export.
type ExportOptions struct {
	RuleID  string
	Name    string
	Summary string
	// Stamp is written as DTSTAMP on every VEVENT.
	Stamp time.Time
}

// Export renders occurrences as a VCALENDAR. Cancelled occurrences keep their
// VEVENT with STATUS:CANCELLED; occurrences without a usable start time are
// written as all-day events.
func Export(occurrences []model.Occurrence, opts ExportOptions) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//eventocc//occurrences//EN")
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	for _, occ := range occurrences {
		ev := cal.AddEvent(fmt.Sprintf("%s-%s@eventocc", opts.RuleID, occ.Date))
		ev.SetDtStampTime(opts.Stamp)
		if opts.Summary != "" {
			ev.SetSummary(opts.Summary)
		}

		if start, end, ok := classify.InstantsOf(occ); ok {
			ev.SetStartAt(start)
			ev.SetEndAt(end)
		} else {
			ev.SetAllDayStartAt(occ.Date.Midnight())
			ev.SetAllDayEndAt(occ.Date.AddDays(1).Midnight())
		}

		switch occ.State {
		case model.StateCancelled:
			ev.SetStatus(ical.ObjectStatusCancelled)
		case model.StateSoldOut:
			ev.SetStatus(ical.ObjectStatusConfirmed)
			ev.SetProperty(ical.ComponentProperty("X-EVENTOCC-STATE"), string(model.StateSoldOut))
		default:
			ev.SetStatus(ical.ObjectStatusConfirmed)
		}
	}

	return cal.Serialize()
}
