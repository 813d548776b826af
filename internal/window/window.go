package window

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MonthFormat is the bucket key layout used for monthly rows.
	MonthFormat = "2006-01"
	// DayFormat is the date layout used by search predicates and CLI flags.
	DayFormat = "2006-01-02"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	DayFormat,
}

// Window is an optional, inclusive time range over naive timestamps.
// A zero Since or Until leaves that side unbounded.
type Window struct {
	Since time.Time
	Until time.Time
}

// New parses optional since/until bounds. Blank values leave the bound unset.
func New(since, until string) (Window, error) {
	var w Window
	if strings.TrimSpace(since) != "" {
		parsed, err := ParseTimestamp(since)
		if err != nil {
			return Window{}, fmt.Errorf("parse since: %w", err)
		}
		w.Since = parsed
	}
	if strings.TrimSpace(until) != "" {
		parsed, err := ParseTimestamp(until)
		if err != nil {
			return Window{}, fmt.Errorf("parse until: %w", err)
		}
		w.Until = parsed
	}
	if w.HasSince() && w.HasUntil() && w.Until.Before(w.Since) {
		return Window{}, fmt.Errorf("until %s is before since %s", w.Until.Format(DayFormat), w.Since.Format(DayFormat))
	}
	return w, nil
}

// ParseTimestamp parses an ISO-8601 style timestamp and drops its zone,
// keeping the wall clock reading.
func ParseTimestamp(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, trimmed)
		if err != nil {
			continue
		}
		return stripZone(parsed), nil
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %q", raw)
}

func stripZone(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), time.UTC)
}

// HasSince reports whether the lower bound is set.
func (w Window) HasSince() bool {
	return !w.Since.IsZero()
}

// HasUntil reports whether the upper bound is set.
func (w Window) HasUntil() bool {
	return !w.Until.IsZero()
}

// Contains reports whether ts falls inside the window. Both bounds are inclusive.
func (w Window) Contains(ts time.Time) bool {
	if w.HasSince() && ts.Before(w.Since) {
		return false
	}
	if w.HasUntil() && ts.After(w.Until) {
		return false
	}
	return true
}

// InWindow parses raw and tests it against the window. Unparsable input is out of window.
func (w Window) InWindow(raw string) bool {
	ts, err := ParseTimestamp(raw)
	if err != nil {
		return false
	}
	return w.Contains(ts)
}

// SearchPredicate returns the server-side created: filter, with a leading space,
// or an empty string when the window is unbounded. It only narrows the fetched
// volume; Contains stays authoritative.
func (w Window) SearchPredicate() string {
	switch {
	case w.HasSince() && w.HasUntil():
		return " created:" + w.Since.Format(DayFormat) + ".." + w.Until.Format(DayFormat)
	case w.HasSince():
		return " created:>=" + w.Since.Format(DayFormat)
	case w.HasUntil():
		return " created:<=" + w.Until.Format(DayFormat)
	default:
		return ""
	}
}

// Month returns the monthly bucket key for ts.
func Month(ts time.Time) string {
	return ts.Format(MonthFormat)
}
