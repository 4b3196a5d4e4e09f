package timeutil

import (
	"testing"
	"time"
)

func TestToISOZ_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	s := ToISOZ(now)
	if s != "2026-03-05T14:30:00Z" {
		t.Errorf("unexpected format: %v", s)
	}

	parsed, ok := ParseUTC(s)
	if !ok {
		t.Fatal("expected successful parse")
	}
	if !parsed.Equal(now) {
		t.Errorf("round trip mismatch: %v vs %v", parsed, now)
	}
}

func TestToISOZ_ZeroTime(t *testing.T) {
	if s := ToISOZ(time.Time{}); s != "" {
		t.Errorf("expected empty string for zero time, got %v", s)
	}
}

func TestParseUTC_InvalidInput(t *testing.T) {
	if _, ok := ParseUTC("not-a-timestamp"); ok {
		t.Error("expected parse failure")
	}
	if _, ok := ParseUTC(""); ok {
		t.Error("expected parse failure on empty string")
	}
}

func TestParseUTC_ConvertsOffsetToUTC(t *testing.T) {
	parsed, ok := ParseUTC("2026-03-05T10:30:00-04:00")
	if !ok {
		t.Fatal("expected successful parse")
	}
	if parsed.Location() != time.UTC {
		t.Errorf("expected UTC location, got %v", parsed.Location())
	}
	if parsed.Hour() != 14 {
		t.Errorf("expected offset converted to 14:30 UTC, got %v", parsed)
	}
}

func TestHourBucket_SameHourSameBucket(t *testing.T) {
	a := time.Date(2026, 3, 5, 14, 5, 0, 0, time.UTC)
	b := time.Date(2026, 3, 5, 14, 55, 0, 0, time.UTC)
	if HourBucket(a) != HourBucket(b) {
		t.Error("timestamps within same UTC hour should share a bucket")
	}
}

func TestHourBucket_DifferentHourDifferentBucket(t *testing.T) {
	a := time.Date(2026, 3, 5, 14, 59, 0, 0, time.UTC)
	b := time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC)
	if HourBucket(a) == HourBucket(b) {
		t.Error("timestamps crossing an hour boundary should have different buckets")
	}
}

func TestTruncateToHour(t *testing.T) {
	ts := time.Date(2026, 3, 5, 14, 45, 30, 0, time.UTC)
	truncated := TruncateToHour(ts)
	if truncated.Minute() != 0 || truncated.Second() != 0 {
		t.Errorf("expected truncation to the hour, got %v", truncated)
	}
}

func TestWithinEpsilon(t *testing.T) {
	if !WithinEpsilon(1.0, 1.04, 0.05) {
		t.Error("expected values within epsilon to match")
	}
	if WithinEpsilon(1.0, 1.2, 0.05) {
		t.Error("expected values outside epsilon to not match")
	}
}
