package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"eventocc/internal/civil"
	appLog "eventocc/internal/log"
	"eventocc/internal/model"
	"eventocc/internal/timeslot"
)

const (
	// DefaultHorizonDays bounds expansion to roughly two years past the
	// reference date.
	DefaultHorizonDays = 730

	// DefaultMaxCandidates caps the raw candidates a single rule may generate
	// inside the horizon.
	DefaultMaxCandidates = 1000
)

// ErrValidation is matched (errors.Is) by every *ValidationError.
var ErrValidation = errors.New("recurrence: invalid rule")

// ValidationError reports why a rule could not be expanded.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("recurrence: %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Config controls how far expansion reaches.
type Config struct {
	// Reference is the date the horizon is measured from. If zero, the
	// rule's anchor is used.
	Reference civil.Date

	// Through is an explicit last date (inclusive). When set it replaces
	// Reference + HorizonDays.
	Through civil.Date

	// HorizonDays defaults to DefaultHorizonDays.
	HorizonDays int

	// MaxCandidates defaults to DefaultMaxCandidates. It bounds the window
	// from Reference onwards; an anchor older than Reference adds one
	// candidate per elapsed day so a rule does not outgrow the cap with age.
	MaxCandidates int
}

func (c Config) horizonEnd(anchor civil.Date) civil.Date {
	if !c.Through.IsZero() {
		return c.Through
	}
	ref := c.Reference
	if ref.IsZero() {
		ref = anchor
	}
	days := c.HorizonDays
	if days <= 0 {
		days = DefaultHorizonDays
	}
	return ref.AddDays(days)
}

func (c Config) maxCandidates(anchor civil.Date) int {
	limit := c.MaxCandidates
	if limit <= 0 {
		limit = DefaultMaxCandidates
	}
	if !c.Reference.IsZero() && anchor.Before(c.Reference) {
		limit += c.Reference.DaysUntil(anchor)
	}
	return limit
}

// entry is an occurrence plus whether a custom override produced it.
type entry struct {
	occ    model.Occurrence
	custom bool
}

// Expand turns a rule into its concrete occurrences up to the horizon.
//
//   - candidates come from the frequency/interval (or raw RRULE) at the anchor
//   - exception dates are dropped entirely
//   - custom occurrences override times or cancel a date; a cancelled date
//     stays in the output with state CANCELLED
//   - custom occurrences on dates outside the series are added unless
//     cancelled
//
// The result is sorted by date with one occurrence per date. Expand never
// looks at the wall clock, so the same rule and Config always give the same
// output.
func Expand(rule model.RecurrenceRule, cfg Config) ([]model.Occurrence, error) {
	if err := validate(rule); err != nil {
		return nil, err
	}

	end := cfg.horizonEnd(rule.Anchor)
	limit := cfg.maxCandidates(rule.Anchor)

	dates, err := candidates(rule, end, limit)
	if err != nil {
		return nil, err
	}

	exceptions := make(map[civil.Date]struct{}, len(rule.ExceptionDates))
	for _, d := range rule.ExceptionDates {
		exceptions[d] = struct{}{}
	}

	// Later entries for the same date replace earlier ones.
	overrides := make(map[civil.Date]model.Override, len(rule.CustomOccurrences))
	for _, co := range rule.CustomOccurrences {
		overrides[co.Date] = co.Override
	}
	used := make(map[civil.Date]bool, len(overrides))

	entries := make([]entry, 0, len(dates))
	for _, d := range dates {
		if _, skip := exceptions[d]; skip {
			continue
		}
		if ov, ok := overrides[d]; ok {
			used[d] = true
			entries = append(entries, entry{occ: makeOccurrence(rule, d, &ov), custom: true})
			continue
		}
		entries = append(entries, entry{occ: makeOccurrence(rule, d, nil)})
	}

	// Extra dates authored outside the series. Iterate in input order so the
	// result does not depend on map ordering.
	for _, co := range rule.CustomOccurrences {
		d := co.Date
		if used[d] {
			continue
		}
		used[d] = true
		ov := overrides[d]
		if ov.Cancelled {
			continue
		}
		if _, skip := exceptions[d]; skip {
			continue
		}
		if d.Before(rule.Anchor) || d.After(end) {
			continue
		}
		entries = append(entries, entry{occ: makeOccurrence(rule, d, &ov), custom: true})
	}

	if len(entries) > limit {
		return nil, invalid("horizon", "%d occurrences exceed the limit of %d", len(entries), limit)
	}

	out := sortAndDedupe(entries)

	appLog.Debug("recurrence expanded",
		"rule_id", rule.ID,
		"anchor", rule.Anchor,
		"horizon_end", end,
		"candidates", len(dates),
		"occurrences", len(out),
	)
	return out, nil
}

func validate(rule model.RecurrenceRule) error {
	if rule.Anchor.IsZero() {
		return invalid("anchor", "required")
	}
	if rule.Timezone != "" {
		if _, err := time.LoadLocation(rule.Timezone); err != nil {
			return invalid("timezone", "unknown timezone %q", rule.Timezone)
		}
	}
	if rule.DurationMinutes < 0 {
		return invalid("durationMinutes", "must not be negative")
	}
	if rule.Count < 0 {
		return invalid("count", "must not be negative")
	}
	if err := checkClock("baseStartTime", rule.BaseStartTime); err != nil {
		return err
	}
	if err := checkClock("baseEndTime", rule.BaseEndTime); err != nil {
		return err
	}
	for i, co := range rule.CustomOccurrences {
		field := fmt.Sprintf("customOccurrences[%d]", i)
		if co.Date.IsZero() {
			return invalid(field+".date", "required")
		}
		if co.Override.StartTime != nil {
			if err := checkClock(field+".startTime", *co.Override.StartTime); err != nil {
				return err
			}
		}
		if co.Override.EndTime != nil {
			if err := checkClock(field+".endTime", *co.Override.EndTime); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkClock(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := timeslot.ParseClock(value); err != nil {
		return invalid(field, "%q is not an HH:MM time", value)
	}
	return nil
}

var frequencies = map[model.Frequency]rrule.Frequency{
	model.FrequencyDaily:   rrule.DAILY,
	model.FrequencyWeekly:  rrule.WEEKLY,
	model.FrequencyMonthly: rrule.MONTHLY,
}

// ruleOptions builds the rrule options for a rule, anchored at 00:00 UTC on
// the anchor date so every generated instant maps back to its civil date.
func ruleOptions(rule model.RecurrenceRule) (*rrule.ROption, error) {
	if raw := strings.TrimSpace(rule.RRule); raw != "" {
		raw = strings.TrimPrefix(strings.ToUpper(raw), "RRULE:")
		opt, err := rrule.StrToROption(raw)
		if err != nil {
			return nil, invalid("rrule", "%v", err)
		}
		if opt.Interval < 0 || (opt.Interval == 0 && strings.Contains(raw, "INTERVAL=")) {
			return nil, invalid("rrule", "interval must be positive")
		}
		opt.Dtstart = rule.Anchor.Midnight()
		return opt, nil
	}

	freq, err := model.ParseFrequency(string(rule.Frequency))
	if err != nil {
		return nil, invalid("frequency", "%v", err)
	}
	if freq == model.FrequencyOnce {
		return nil, nil
	}
	if rule.Interval <= 0 {
		return nil, invalid("interval", "must be positive, got %d", rule.Interval)
	}

	opt := &rrule.ROption{
		Freq:     frequencies[freq],
		Interval: rule.Interval,
		Count:    rule.Count,
		Dtstart:  rule.Anchor.Midnight(),
	}
	if !rule.Until.IsZero() {
		opt.Until = rule.Until.Midnight()
	}
	return opt, nil
}

// candidates lists the distinct series dates in [anchor, end]. It fails once
// more than limit raw instants fall inside the horizon.
func candidates(rule model.RecurrenceRule, end civil.Date, limit int) ([]civil.Date, error) {
	opt, err := ruleOptions(rule)
	if err != nil {
		return nil, err
	}
	if opt == nil {
		if rule.Anchor.After(end) {
			return nil, nil
		}
		return []civil.Date{rule.Anchor}, nil
	}

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, invalid("rrule", "%v", err)
	}

	out := make([]civil.Date, 0)
	raw := 0
	next := r.Iterator()
	for {
		t, ok := next()
		if !ok {
			break
		}
		d := civil.Of(t)
		if d.After(end) {
			break
		}
		raw++
		if raw > limit {
			return nil, invalid("horizon", "rule generates more than %d candidates before %s", limit, end)
		}
		// Sub-daily rules can hit a date more than once.
		if n := len(out); n > 0 && out[n-1] == d {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func makeOccurrence(rule model.RecurrenceRule, d civil.Date, ov *model.Override) model.Occurrence {
	start := rule.BaseStartTime
	end := rule.BaseEndTime
	if end == "" && start != "" && rule.DurationMinutes > 0 {
		end, _ = timeslot.AddMinutes(start, rule.DurationMinutes)
	}

	state := model.StateScheduled
	if rule.Cancelled {
		state = model.StateCancelled
	}
	if ov != nil {
		if ov.StartTime != nil {
			start = *ov.StartTime
			if ov.EndTime == nil {
				end = shiftedEnd(rule, start)
			}
		}
		if ov.EndTime != nil {
			end = *ov.EndTime
		}
		if ov.Cancelled {
			state = model.StateCancelled
		}
	}

	occ := model.Occurrence{
		Date:      d,
		StartTime: start,
		EndTime:   end,
		Timezone:  rule.Timezone,
		State:     state,
	}
	if rule.MaxCapacity != nil {
		capacity := *rule.MaxCapacity
		occ.MaxCapacity = &capacity
	}
	return occ
}

// shiftedEnd keeps the series' slot length when an override moves only the
// start time.
func shiftedEnd(rule model.RecurrenceRule, start string) string {
	length := rule.DurationMinutes
	if length <= 0 && rule.BaseStartTime != "" && rule.BaseEndTime != "" {
		length, _ = timeslot.Minutes(rule.BaseStartTime, rule.BaseEndTime)
	}
	if length <= 0 {
		return rule.BaseEndTime
	}
	end, err := timeslot.AddMinutes(start, length)
	if err != nil {
		return rule.BaseEndTime
	}
	return end
}

// sortAndDedupe orders by date and keeps one occurrence per date, preferring
// the custom-override version.
func sortAndDedupe(entries []entry) []model.Occurrence {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].occ.Date.Before(entries[j].occ.Date)
	})

	out := make([]model.Occurrence, 0, len(entries))
	var lastCustom bool
	for _, e := range entries {
		if n := len(out); n > 0 && out[n-1].Date == e.occ.Date {
			if e.custom && !lastCustom {
				out[n-1] = e.occ
				lastCustom = true
			}
			continue
		}
		out = append(out, e.occ)
		lastCustom = e.custom
	}
	return out
}
