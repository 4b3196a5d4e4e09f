package cache

import (
	"context"
	"encoding/json"
	"time"
)

// ObservationCache is a specialized cache for provider observations
// (weather/traffic readings), keyed by location and hour bucket so that
// repeated enrichment requests over the same corridor reuse prior fetches
// instead of hitting the upstream provider again.
type ObservationCache struct {
	cache      Cache
	defaultTTL time.Duration
}

// CachedObservation is the JSON-serializable form of a provider observation
// stored in the cache.
type CachedObservation struct {
	Kind         string    `json:"kind"` // "weather" or "traffic"
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	HourBucket   int64     `json:"hour_bucket"`
	Payload      string    `json:"payload"` // caller-defined JSON blob
	Severity     float64   `json:"severity"`
	Congestion   string    `json:"congestion,omitempty"`
	ComputedAt   time.Time `json:"computed_at"`
	ProviderName string    `json:"provider_name"`
}

// NewObservationCache creates a cache for provider observations.
func NewObservationCache(cache Cache, defaultTTL time.Duration) *ObservationCache {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &ObservationCache{cache: cache, defaultTTL: defaultTTL}
}

// Get fetches a cached observation for the given segment/hour.
func (oc *ObservationCache) Get(ctx context.Context, prefix string, lat, lng float64, hourBucket int64) (*CachedObservation, bool, error) {
	key := BucketedKey(prefix, lat, lng, hourBucket)

	data, err := oc.cache.Get(ctx, key)
	if err != nil {
		if err == ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	var obs CachedObservation
	if err := json.Unmarshal(data, &obs); err != nil {
		_ = oc.cache.Delete(ctx, key)
		return nil, false, nil
	}

	return &obs, true, nil
}

// Set stores an observation for the given segment/hour.
func (oc *ObservationCache) Set(ctx context.Context, prefix string, lat, lng float64, hourBucket int64, obs *CachedObservation, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = oc.defaultTTL
	}

	obs.Lat, obs.Lng, obs.HourBucket = lat, lng, hourBucket
	obs.ComputedAt = time.Now()

	data, err := json.Marshal(obs)
	if err != nil {
		return err
	}

	return oc.cache.Set(ctx, BucketedKey(prefix, lat, lng, hourBucket), data, ttl)
}

// InvalidateKind removes every cached observation of the given kind prefix.
func (oc *ObservationCache) InvalidateKind(ctx context.Context, prefix string) (int64, error) {
	return oc.cache.DeleteByPattern(ctx, prefix+":*")
}
