package timeslot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

// SameValueSlotMinutes is the length given to a slot whose start equals its
// end: the slot runs a full day around the clock.
const SameValueSlotMinutes = minutesPerDay

var ErrClock = errors.New("timeslot: invalid clock")

// ParseClock parses a 24-hour "HH:MM" string into minutes after midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrClock, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrClock, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrClock, s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes after midnight as "HH:MM", wrapping at 24h.
func FormatClock(minutes int) string {
	minutes = ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// AddMinutes shifts an "HH:MM" clock by n minutes.
func AddMinutes(clock string, n int) (string, error) {
	start, err := ParseClock(clock)
	if err != nil {
		return "", err
	}
	return FormatClock(start + n), nil
}

// Minutes returns the slot length from start to end. An end before the start
// crosses midnight; an equal end yields SameValueSlotMinutes.
func Minutes(start, end string) (int, error) {
	s, err := ParseClock(start)
	if err != nil {
		return 0, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return 0, err
	}
	diff := e - s
	if diff == 0 {
		return SameValueSlotMinutes, nil
	}
	if diff < 0 {
		diff += minutesPerDay
	}
	return diff, nil
}

// FormatMinutes renders "2h", "45m" or "2h 30m".
func FormatMinutes(total int) string {
	h, m := total/60, total%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// ComputeDuration is the display duration of a slot. It returns "" when
// either bound is missing or unparseable.
func ComputeDuration(start, end string) string {
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return ""
	}
	total, err := Minutes(start, end)
	if err != nil {
		return ""
	}
	return FormatMinutes(total)
}
