package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseUTC parses feed timestamps such as "2024-03-02T15:04:05.320Z",
// tolerating a missing fraction, arbitrary fraction precision and a missing
// trailing "Z". The result is always UTC.
func ParseUTC(s string) (time.Time, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")

	datePart, timePart, found := strings.Cut(s, "T")
	if !found {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}

	var year, month, day int
	if _, err := fmt.Sscanf(datePart, "%d-%d-%d", &year, &month, &day); err != nil {
		return time.Time{}, fmt.Errorf("invalid date in %q: %w", s, err)
	}

	secPart := timePart
	nanos := 0
	if base, frac, ok := strings.Cut(timePart, "."); ok {
		secPart = base
		n, err := fractionToNanos(frac)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid fraction in %q: %w", s, err)
		}
		nanos = n
	}

	var hour, minute, sec int
	if _, err := fmt.Sscanf(secPart, "%d:%d:%d", &hour, &minute, &sec); err != nil {
		return time.Time{}, fmt.Errorf("invalid time in %q: %w", s, err)
	}

	return time.Date(year, time.Month(month), day, hour, minute, sec, nanos, time.UTC), nil
}

// ParseSessionTime parses durations such as "1:23:45.678", "23:45" or
// "45.678" (hours and minutes optional, fraction optional).
func ParseSessionTime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty session time")
	}

	var hours, minutes int64
	parts := strings.Split(s, ":")
	secPart := parts[len(parts)-1]

	var err error
	switch len(parts) {
	case 3:
		if hours, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
			return 0, fmt.Errorf("invalid hours in %q: %w", s, err)
		}
		if minutes, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
			return 0, fmt.Errorf("invalid minutes in %q: %w", s, err)
		}
	case 2:
		if minutes, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
			return 0, fmt.Errorf("invalid minutes in %q: %w", s, err)
		}
	case 1:
	default:
		return 0, fmt.Errorf("invalid session time %q", s)
	}

	nanos := 0
	if base, frac, ok := strings.Cut(secPart, "."); ok {
		secPart = base
		if nanos, err = fractionToNanos(frac); err != nil {
			return 0, fmt.Errorf("invalid fraction in %q: %w", s, err)
		}
	}
	seconds, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seconds in %q: %w", s, err)
	}

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(nanos), nil
}

func fractionToNanos(frac string) (int, error) {
	if len(frac) > 9 {
		frac = frac[:9]
	}
	n, err := strconv.Atoi(frac)
	if err != nil {
		return 0, err
	}
	for i := len(frac); i < 9; i++ {
		n *= 10
	}
	return n, nil
}
