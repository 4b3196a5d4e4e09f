package provider

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"enrichment-svc/pkg/cache"
	"enrichment-svc/vrp"
)

// CachingProvider decorates a TrafficWeatherProvider with a process- or
// cluster-wide ObservationCache (backed by Redis or memory, per
// config.CacheConfig), keyed by coordinate and UTC hour bucket, so
// repeated requests over the same corridor within the same hour do not
// re-fetch from the underlying provider.
type CachingProvider struct {
	inner      TrafficWeatherProvider
	obs        *cache.ObservationCache
	cacheHits  int64
}

// NewCachingProvider wraps inner with obs. obs may come from
// cache.NewObservationCache over either backend.
func NewCachingProvider(inner TrafficWeatherProvider, obs *cache.ObservationCache) *CachingProvider {
	return &CachingProvider{inner: inner, obs: obs}
}

func hourBucket(t time.Time) int64 {
	return t.UTC().Truncate(time.Hour).Unix()
}

// FetchWeather consults the shared cache before delegating to inner.
func (c *CachingProvider) FetchWeather(ctx context.Context, coord vrp.Coordinate, referenceTime time.Time) (WeatherResult, error) {
	bucket := hourBucket(referenceTime)
	if cached, ok, _ := c.obs.Get(ctx, "weather", coord.Lat, coord.Lng, bucket); ok {
		var result WeatherResult
		if err := json.Unmarshal([]byte(cached.Payload), &result); err == nil {
			atomic.AddInt64(&c.cacheHits, 1)
			return result, nil
		}
	}

	result, err := c.inner.FetchWeather(ctx, coord, referenceTime)
	if err != nil {
		return result, err
	}
	c.store("weather", coord, bucket, result)
	return result, nil
}

// FetchTrafficStatus consults the shared cache before delegating to inner.
func (c *CachingProvider) FetchTrafficStatus(ctx context.Context, coord vrp.Coordinate) (vrp.Observation, error) {
	bucket := hourBucket(time.Now())
	if cached, ok, _ := c.obs.Get(ctx, "traffic", coord.Lat, coord.Lng, bucket); ok {
		var obs vrp.Observation
		if err := json.Unmarshal([]byte(cached.Payload), &obs); err == nil {
			atomic.AddInt64(&c.cacheHits, 1)
			return obs, nil
		}
	}

	obs, err := c.inner.FetchTrafficStatus(ctx, coord)
	if err != nil {
		return obs, err
	}
	c.store("traffic", coord, bucket, obs)
	return obs, nil
}

// FetchTrafficForecast consults the shared cache keyed on the origin,
// since forecasts are one-per-corridor-per-hour.
func (c *CachingProvider) FetchTrafficForecast(ctx context.Context, origin, destination vrp.Coordinate, referenceTime time.Time) (vrp.ForecastWindow, error) {
	bucket := hourBucket(referenceTime)
	if cached, ok, _ := c.obs.Get(ctx, "forecast", origin.Lat, origin.Lng, bucket); ok {
		var window vrp.ForecastWindow
		if err := json.Unmarshal([]byte(cached.Payload), &window); err == nil {
			atomic.AddInt64(&c.cacheHits, 1)
			return window, nil
		}
	}

	window, err := c.inner.FetchTrafficForecast(ctx, origin, destination, referenceTime)
	if err != nil {
		return window, err
	}
	c.store("forecast", origin, bucket, window)
	return window, nil
}

// Stats merges the inner provider's counters with this layer's cache hits.
func (c *CachingProvider) Stats() Stats {
	stats := c.inner.Stats()
	stats.CacheHits += atomic.LoadInt64(&c.cacheHits)
	return stats
}

func (c *CachingProvider) store(kind string, coord vrp.Coordinate, bucket int64, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = c.obs.Set(context.Background(), kind, coord.Lat, coord.Lng, bucket, &cache.CachedObservation{
		Kind:    kind,
		Payload: string(data),
	}, 0)
}
