// Package timeutil provides the ISO-8601/UTC parsing and hour-bucketing
// helpers shared by the provider clients and observation cache.
package timeutil

import "time"

// ToISOZ formats t as UTC RFC3339 with a literal "Z" suffix, or returns ""
// for the zero time.
func ToISOZ(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// ParseUTC parses an RFC3339 timestamp (with "Z" or an explicit offset)
// and normalizes it to UTC. It returns the zero time and false if value
// cannot be parsed.
func ParseUTC(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// HourBucket reduces t to a whole-hour bucket index, counted from the
// Unix epoch, so two timestamps within the same UTC hour map to the same
// cache key.
func HourBucket(t time.Time) int64 {
	return t.UTC().Unix() / 3600
}

// TruncateToHour returns t rounded down to the start of its UTC hour.
func TruncateToHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// WithinEpsilon reports whether a and b are within tol of each other,
// used when picking the "worst" forecast slot among near-ties.
func WithinEpsilon(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}
