package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Layouts the backend is known to send. Timestamps without a zone are UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// ParseTime parses a backend timestamp.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatDateTime renders s as local "2006-01-02 15:04", or s itself when it
// does not parse.
func FormatDateTime(s string) string {
	t, err := ParseTime(s)
	if err != nil {
		return s
	}
	return t.Local().Format("2006-01-02 15:04")
}

// ShortDate renders a list-row date: the time for today, otherwise the day.
func ShortDate(s string, now time.Time) string {
	t, err := ParseTime(s)
	if err != nil {
		return s
	}
	t = t.In(now.Location())
	y1, m1, d1 := t.Date()
	y2, m2, d2 := now.Date()
	switch {
	case y1 == y2 && m1 == m2 && d1 == d2:
		return t.Format("15:04")
	case y1 == y2:
		return t.Format("Jan 2")
	}
	return t.Format("Jan 2, 2006")
}

// Relative renders s relative to now, e.g. "3 minutes ago". An absent
// timestamp renders as "never".
func Relative(s *string, now time.Time) string {
	if s == nil || *s == "" {
		return "never"
	}
	t, err := ParseTime(*s)
	if err != nil {
		return *s
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Size renders a byte count, e.g. "1.2 MB".
func Size(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
