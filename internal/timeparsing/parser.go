// Package timeparsing turns operator input into a UTC schedule time.
//
// Layers are tried in order and the first match wins:
//  1. Compact duration (+6h, +2d, 1w)
//  2. Absolute timestamp (RFC3339, "2006-01-02 15:04", date only)
//  3. Natural language (tomorrow 9am, next monday at 14:00)
//
// Timestamps without a zone are read in the location of the reference time.
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// compactDurationRe matches [+-]?(\d+)([mhdwy]) where m is minutes.
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([mhdwy])$`)

// absoluteLayouts are tried in order for zone-less input.
var absoluteLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseCompactDuration applies a compact duration to now.
//
// Units:
//   - m = minutes
//   - h = hours
//   - d = days
//   - w = weeks
//   - y = years
//
// A missing sign means the future. Months are not supported because "m" is
// far more often meant as minutes when scheduling a flight.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	matches := compactDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}
	amount, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", matches[2])
	}
	if matches[1] == "-" {
		amount = -amount
	}
	switch matches[3] {
	case "m":
		return now.Add(time.Duration(amount) * time.Minute), nil
	case "h":
		return now.Add(time.Duration(amount) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, amount), nil
	case "w":
		return now.AddDate(0, 0, amount*7), nil
	default:
		return now.AddDate(amount, 0, 0), nil
	}
}

// IsCompactDuration reports whether s uses compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

// ParseAbsolute parses an RFC3339 timestamp or one of the zone-less layouts,
// the latter in loc.
func ParseAbsolute(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not a timestamp: %q", s)
}

// ParseSchedule parses s relative to now and returns the result in UTC.
func ParseSchedule(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}
	if IsCompactDuration(s) {
		t, err := ParseCompactDuration(s, now)
		if err != nil {
			return time.Time{}, err
		}
		return t.UTC(), nil
	}
	if t, err := ParseAbsolute(s, now.Location()); err == nil {
		return t.UTC(), nil
	}
	t, err := ParseNaturalLanguage(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse %q: use RFC3339, \"YYYY-MM-DD HH:MM\", +6h or a phrase like \"tomorrow 9am\"", s)
	}
	return t.UTC(), nil
}
