// ABOUTME: Display formatting for dates, counts and durations
// ABOUTME: Parses the backend's timestamp forms and renders them for the terminal

package format

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// NoDate is shown for missing timestamps
const NoDate = "no date"

// DefaultLayout renders as YYYY-MM-DD HH:mm:ss
const DefaultLayout = "2006-01-02 15:04:05"

// ParseTimestamp accepts RFC 3339 and the RFC 1123 form the backend's JSON
// encoder produces. Empty input yields the zero time and no error.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, http.TimeFormat, time.RFC1123, time.RFC1123Z, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Date renders t in local time using layout (DefaultLayout when empty).
func Date(t time.Time, layout string) string {
	if t.IsZero() {
		return NoDate
	}
	if layout == "" {
		layout = DefaultLayout
	}
	return t.Local().Format(layout)
}

// DateString parses and renders a backend timestamp; unparseable input is
// returned as-is.
func DateString(s, layout string) string {
	t, err := ParseTimestamp(s)
	if err != nil {
		return s
	}
	return Date(t, layout)
}

// FromNow renders t relative to now, e.g. "3 hours ago".
func FromNow(t time.Time) string {
	if t.IsZero() {
		return NoDate
	}
	return humanize.Time(t)
}

// Count renders an integer with thousands separators.
func Count(n int64) string {
	return humanize.Comma(n)
}

// Duration renders whole seconds as e.g. "1h 2m 3s".
func Duration(seconds int64) string {
	if seconds <= 0 {
		return "0s"
	}
	d := seconds / 86400
	h := (seconds % 86400) / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	var parts []string
	if d > 0 {
		parts = append(parts, fmt.Sprintf("%dd", d))
	}
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	if s > 0 {
		parts = append(parts, fmt.Sprintf("%ds", s))
	}
	return strings.Join(parts, " ")
}
