package provider

import (
	"context"
	"testing"
	"time"

	"enrichment-svc/vrp"
)

func TestEmulator_FetchWeather_Deterministic(t *testing.T) {
	ctx := context.Background()
	coord := vrp.Coordinate{Lat: 40.0, Lng: -3.0}
	ref := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

	a := NewEmulator(Config{EmulatorSeed: "abc"})
	b := NewEmulator(Config{EmulatorSeed: "abc"})

	resA, err := a.FetchWeather(ctx, coord, ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resB, err := b.FetchWeather(ctx, coord, ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if *resA.Realtime.TemperatureC != *resB.Realtime.TemperatureC {
		t.Errorf("expected identical temperature across instances with same seed: %v vs %v",
			*resA.Realtime.TemperatureC, *resB.Realtime.TemperatureC)
	}
	if resA.Realtime.Condition != resB.Realtime.Condition {
		t.Errorf("expected identical condition: %v vs %v", resA.Realtime.Condition, resB.Realtime.Condition)
	}
}

func TestEmulator_FetchWeather_DifferentSeedDiffers(t *testing.T) {
	ctx := context.Background()
	coord := vrp.Coordinate{Lat: 40.0, Lng: -3.0}
	ref := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

	a := NewEmulator(Config{EmulatorSeed: "abc"})
	b := NewEmulator(Config{EmulatorSeed: "xyz"})

	resA, _ := a.FetchWeather(ctx, coord, ref)
	resB, _ := b.FetchWeather(ctx, coord, ref)

	if *resA.Realtime.TemperatureC == *resB.Realtime.TemperatureC &&
		resA.Realtime.Condition == resB.Realtime.Condition {
		t.Error("expected different seeds to produce at least one differing field")
	}
}

func TestEmulator_FetchWeather_CachesRepeatedCalls(t *testing.T) {
	ctx := context.Background()
	coord := vrp.Coordinate{Lat: 40.0, Lng: -3.0}
	ref := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

	e := NewEmulator(Config{EmulatorSeed: "abc"})
	if _, err := e.FetchWeather(ctx, coord, ref); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.FetchWeather(ctx, coord, ref); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats := e.Stats()
	if stats.WeatherQueries != 1 {
		t.Errorf("expected one weather query on cache hit, got %v", stats.WeatherQueries)
	}
	if stats.CacheHits != 1 {
		t.Errorf("expected one cache hit, got %v", stats.CacheHits)
	}
}

func TestEmulator_FetchTrafficStatus_JamFactorBounds(t *testing.T) {
	ctx := context.Background()
	e := NewEmulator(Config{EmulatorSeed: "abc"})
	obs, err := e.FetchTrafficStatus(ctx, vrp.Coordinate{Lat: 45.5, Lng: -73.6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.JamFactor != nil && (*obs.JamFactor < 0 || *obs.JamFactor > 10) {
		t.Errorf("jam factor out of bounds: %v", *obs.JamFactor)
	}
}

func TestEmulator_FetchTrafficForecast_WorstSlotWithinEpsilon(t *testing.T) {
	ctx := context.Background()
	e := NewEmulator(Config{EmulatorSeed: "abc", ForecastWindowHours: 6, ForecastIntervalMin: 60})
	origin := vrp.Coordinate{Lat: 40.0, Lng: -3.0}
	dest := vrp.Coordinate{Lat: 40.5, Lng: -3.5}
	forecast, err := e.FetchTrafficForecast(ctx, origin, dest, time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if forecast.WorstCaseDelayRatio == nil {
		t.Fatal("expected worst case delay ratio to be set")
	}
	for _, slot := range forecast.WorstSlots {
		if slot.DelayRatio < *forecast.WorstCaseDelayRatio-0.01-1e-9 {
			t.Errorf("worst slot ratio %v too far from worst case %v", slot.DelayRatio, *forecast.WorstCaseDelayRatio)
		}
	}
	if len(forecast.WorstSlots) > 6 {
		t.Errorf("expected at most 6 worst slots, got %v", len(forecast.WorstSlots))
	}
}

func TestEmulator_Stats_MarkedEmulated(t *testing.T) {
	e := NewEmulator(Config{})
	if !e.Stats().Emulated {
		t.Error("expected emulator stats to report Emulated=true")
	}
}
