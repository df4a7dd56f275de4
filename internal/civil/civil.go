// Package civil provides a calendar date without time-of-day or zone.
//
// A Date is always derived from the UTC calendar fields of an instant, so two
// timestamps for the same instant written with different offsets map to the
// same Date regardless of the process's local timezone.
package civil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrParse is wrapped by every ParseISO failure.
var ErrParse = errors.New("civil: parse error")

// Date is a calendar date. The zero value means "no date".
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// accepted input layouts, most specific first. Layouts without an offset are
// read as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseISO parses an ISO-8601 timestamp or date and keeps only the UTC
// calendar fields.
func ParseISO(text string) (Date, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Date{}, fmt.Errorf("%w: empty input", ErrParse)
	}
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return Of(t), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q is not an ISO-8601 date or timestamp", ErrParse, text)
}

// MustParse is ParseISO for literals known to be valid; it panics otherwise.
func MustParse(text string) Date {
	d, err := ParseISO(text)
	if err != nil {
		panic(err)
	}
	return d
}

// Of returns the UTC calendar date of t.
func Of(t time.Time) Date {
	u := t.UTC()
	return Date{Year: u.Year(), Month: u.Month(), Day: u.Day()}
}

// TodayUTC is Of(now); the package never reads the system clock itself.
func TodayUTC(now time.Time) Date {
	return Of(now)
}

// New builds a Date, normalizing out-of-range fields the way time.Date does.
func New(year int, month time.Month, day int) Date {
	return Of(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// Midnight returns 00:00 UTC on d.
func (d Date) Midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// In returns the wall-clock instant hh:mm on d in loc.
func (d Date) In(loc *time.Location, hour, minute int) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return New(d.Year, d.Month, d.Day+n)
}

// DaysUntil reports how many calendar days lie between from and d; it is
// negative when d is before from.
func (d Date) DaysUntil(from Date) int {
	return int(d.Midnight().Sub(from.Midnight()).Hours() / 24)
}

func (d Date) Weekday() time.Weekday {
	return d.Midnight().Weekday()
}

// Compare returns -1, 0 or +1.
func Compare(a, b Date) int {
	switch {
	case a.Year != b.Year:
		return sign(a.Year - b.Year)
	case a.Month != b.Month:
		return sign(int(a.Month) - int(b.Month))
	default:
		return sign(a.Day - b.Day)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func (d Date) Equal(o Date) bool  { return d == o }
func (d Date) Before(o Date) bool { return Compare(d, o) < 0 }
func (d Date) After(o Date) bool  { return Compare(d, o) > 0 }

// String renders YYYY-MM-DD, or "" for the zero Date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Short renders the badge form, e.g. "Jan 13".
func (d Date) Short() string {
	return fmt.Sprintf("%s %d", d.Month.String()[:3], d.Day)
}

// Long renders e.g. "Monday, January 13, 2025".
func (d Date) Long() string {
	return d.Midnight().Format("Monday, January 2, 2006")
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(strings.TrimSpace(string(b))) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseISO(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
