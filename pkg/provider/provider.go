// Package provider implements the weather/traffic capability described in
// the HERE Platform contract: a live HTTP client against the real HERE
// endpoints and a deterministic emulator variant, both satisfying the
// same TrafficWeatherProvider interface so the enrichment pipeline is
// indifferent to which one it talks to.
package provider

import (
	"context"
	"time"

	"enrichment-svc/vrp"
)

// Config tunes either provider variant. Zero values are replaced with
// the defaults below by NewConfig.
type Config struct {
	TimeoutSec            int
	TrafficRadiusM         int
	ForecastWindowHours    int
	ForecastIntervalMin    int
	EmulatorSeed           string
}

// Default tuning values, mirrored from the external interface table.
const (
	DefaultTimeoutSec         = 12
	DefaultTrafficRadiusM     = 300
	DefaultForecastWindowHrs  = 24
	DefaultForecastIntervalM  = 120
	DefaultEmulatorSeed       = "here-emulator-v1"
)

// NewConfig fills unset fields with defaults and clamps the rest to the
// same minimums the original client enforced.
func NewConfig(c Config) Config {
	if c.TimeoutSec < 3 {
		c.TimeoutSec = DefaultTimeoutSec
	}
	if c.TrafficRadiusM < 50 {
		c.TrafficRadiusM = DefaultTrafficRadiusM
	}
	if c.ForecastWindowHours < 1 {
		c.ForecastWindowHours = DefaultForecastWindowHrs
	}
	if c.ForecastIntervalMin < 30 {
		c.ForecastIntervalMin = DefaultForecastIntervalM
	}
	if c.EmulatorSeed == "" {
		c.EmulatorSeed = DefaultEmulatorSeed
	}
	return c
}

// WeatherResult bundles a realtime observation with its 24h forecast.
type WeatherResult struct {
	Realtime     vrp.Observation
	Forecast24h  vrp.ForecastWindow
}

// TrafficWeatherProvider is the capability every provider variant (live,
// emulator, and eventually a record/replay test double) implements.
type TrafficWeatherProvider interface {
	FetchWeather(ctx context.Context, coord vrp.Coordinate, referenceTime time.Time) (WeatherResult, error)
	FetchTrafficStatus(ctx context.Context, coord vrp.Coordinate) (vrp.Observation, error)
	FetchTrafficForecast(ctx context.Context, origin, destination vrp.Coordinate, referenceTime time.Time) (vrp.ForecastWindow, error)
	Stats() Stats
}

// Stats is the counter set every provider variant exposes, used both for
// operational metrics and to assert cache/coalescing behavior in tests.
type Stats struct {
	CacheHits       int64 `json:"cache_hits"`
	HTTPRequests    int64 `json:"http_requests"`
	WeatherQueries  int64 `json:"weather_queries"`
	TrafficQueries  int64 `json:"traffic_queries"`
	RoutingQueries  int64 `json:"routing_queries"`
	Errors          int64 `json:"errors"`
	Emulated        bool  `json:"emulated"`
}

// ProviderError wraps a transport or parsing failure with the endpoint
// that produced it, so the orchestrator can isolate it as a segment-level
// error entry instead of failing the whole request.
type ProviderError struct {
	Reason   string
	Endpoint string
}

func (e *ProviderError) Error() string {
	return e.Reason + " (" + e.Endpoint + ")"
}

// ErrCircuitOpen is returned by the live provider when its breaker is
// open and no fallback value is available.
type ErrCircuitOpen struct {
	Endpoint string
}

func (e *ErrCircuitOpen) Error() string {
	return "circuit open for " + e.Endpoint
}

func toUTCHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}
