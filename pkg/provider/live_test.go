package provider

import (
	"testing"
	"time"

	"enrichment-svc/vrp"
)

func TestParseWeatherObservation_MissingFieldsYieldUnknown(t *testing.T) {
	obs := parseWeatherObservation(vrp.Coordinate{Lat: 1, Lng: 2}, map[string]any{})
	if obs.Status != vrp.StatusUnknown {
		t.Errorf("expected unknown status for empty payload, got %v", obs.Status)
	}
}

func TestParseWeatherObservation_ExtractsNestedFields(t *testing.T) {
	payload := map[string]any{
		"places": []any{
			map[string]any{
				"observations": []any{
					map[string]any{
						"temperature":  18.5,
						"windSpeedMps": 5.0,
						"condition":    "Rain",
						"utcTime":      "2026-03-05T10:00:00Z",
					},
				},
			},
		},
	}
	obs := parseWeatherObservation(vrp.Coordinate{Lat: 1, Lng: 2}, payload)
	if obs.Status != vrp.StatusObserved {
		t.Fatalf("expected observed status, got %v", obs.Status)
	}
	if obs.TemperatureC == nil || *obs.TemperatureC != 18.5 {
		t.Errorf("expected temperature 18.5, got %v", obs.TemperatureC)
	}
	if obs.WindKPH == nil || *obs.WindKPH != 18.0 {
		t.Errorf("expected wind converted from m/s to 18.0 kph, got %v", obs.WindKPH)
	}
	if obs.Condition != "Rain" {
		t.Errorf("expected condition Rain, got %v", obs.Condition)
	}
}

func TestParseTrafficStatus_DerivesJamFactorFromSpeed(t *testing.T) {
	flow := map[string]any{
		"results": []any{
			map[string]any{
				"currentFlow": map[string]any{
					"speed":    30.0,
					"freeFlow": 60.0,
				},
			},
		},
	}
	obs := parseTrafficStatus(vrp.Coordinate{Lat: 1, Lng: 2}, 300, flow, map[string]any{})
	if obs.JamFactor == nil {
		t.Fatal("expected derived jam factor")
	}
	if *obs.JamFactor < 4.9 || *obs.JamFactor > 5.1 {
		t.Errorf("expected derived jam factor around 5, got %v", *obs.JamFactor)
	}
	if obs.Congestion != "medium" {
		t.Errorf("expected medium congestion, got %v", obs.Congestion)
	}
}

func TestParseTrafficStatus_EmptyResultsYieldsNilJamFactor(t *testing.T) {
	obs := parseTrafficStatus(vrp.Coordinate{Lat: 1, Lng: 2}, 300, map[string]any{}, map[string]any{})
	if obs.JamFactor != nil {
		t.Errorf("expected nil jam factor for empty payload, got %v", *obs.JamFactor)
	}
}

func TestExtractRouteSummary_ValidPayload(t *testing.T) {
	payload := map[string]any{
		"routes": []any{
			map[string]any{
				"sections": []any{
					map[string]any{
						"summary": map[string]any{
							"duration":     float64(1200),
							"baseDuration": float64(900),
						},
					},
				},
			},
		},
	}
	summary := extractRouteSummary(payload)
	if summary == nil {
		t.Fatal("expected non-nil summary")
	}
	if summary.durationSec != 1200 || summary.baseDurationSec != 900 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestExtractRouteSummary_MissingSections(t *testing.T) {
	if summary := extractRouteSummary(map[string]any{"routes": []any{}}); summary != nil {
		t.Errorf("expected nil summary for empty routes, got %+v", summary)
	}
}

func TestPickNumber_PrioritizesFirstMatch(t *testing.T) {
	item := map[string]any{"b": 2.0, "a": nil}
	if v := pickNumber(item, []string{"a", "b"}); v == nil || *v != 2.0 {
		t.Errorf("expected fallback to second key, got %v", v)
	}
}

func TestPickString_TrimsAndSkipsBlank(t *testing.T) {
	item := map[string]any{"a": "  ", "b": "hello  "}
	if got := pickString(item, []string{"a", "b"}); got != "hello" {
		t.Errorf("expected trimmed fallback value, got %q", got)
	}
}

func TestWorstTrafficWindow_Empty(t *testing.T) {
	cfg := NewConfig(Config{})
	window := worstTrafficWindow(cfg, nil)
	if window.WorstCaseDelayRatio != nil {
		t.Error("expected nil worst case ratio for empty slots")
	}
}

func TestNewConfig_ClampsDefaults(t *testing.T) {
	cfg := NewConfig(Config{TimeoutSec: 1, TrafficRadiusM: 1, ForecastWindowHours: 0, ForecastIntervalMin: 1})
	if cfg.TimeoutSec != DefaultTimeoutSec {
		t.Errorf("expected timeout to fall back to default, got %v", cfg.TimeoutSec)
	}
	if cfg.TrafficRadiusM != DefaultTrafficRadiusM {
		t.Errorf("expected radius to fall back to default, got %v", cfg.TrafficRadiusM)
	}
	if cfg.ForecastWindowHours != DefaultForecastWindowHrs {
		t.Errorf("expected window hours to fall back to default, got %v", cfg.ForecastWindowHours)
	}
	if cfg.ForecastIntervalMin != DefaultForecastIntervalM {
		t.Errorf("expected interval to fall back to default, got %v", cfg.ForecastIntervalMin)
	}
}

func TestNewBreaker_Name(t *testing.T) {
	b := newBreaker("https://example.com/endpoint")
	if b.Name() != "https://example.com/endpoint" {
		t.Errorf("unexpected breaker name: %v", b.Name())
	}
}

func TestToUTCHour_Truncates(t *testing.T) {
	ts := time.Date(2026, 3, 5, 14, 45, 0, 0, time.UTC)
	truncated := toUTCHour(ts)
	if truncated.Minute() != 0 {
		t.Errorf("expected truncation to the hour, got %v", truncated)
	}
}
