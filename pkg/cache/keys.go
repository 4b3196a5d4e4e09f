package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// QuickHash returns the full SHA-256 hex digest of data.
func QuickHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ShortHash returns a 16-character SHA-256 hex prefix of data, suitable for
// cache keys where full collision resistance is not required.
func ShortHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// CoordKey builds a canonical cache key for a single lat/lng sample,
// rounded to 5 decimal places (~1.1m) so nearby lookups coalesce.
func CoordKey(prefix string, lat, lng float64) string {
	return fmt.Sprintf("%s:%.5f:%.5f", prefix, lat, lng)
}

// SegmentKey builds a canonical cache key for a route segment spanning two
// coordinates, used to key provider-observation lookups.
func SegmentKey(prefix string, fromLat, fromLng, toLat, toLng float64) string {
	return fmt.Sprintf("%s:%.5f:%.5f:%.5f:%.5f", prefix, fromLat, fromLng, toLat, toLng)
}

// BucketedKey builds a cache key that folds in an hour bucket, used for
// time-varying provider observations (traffic, weather) where the same
// location can have a different value each hour.
func BucketedKey(prefix string, lat, lng float64, hourBucket int64) string {
	return fmt.Sprintf("%s:%.5f:%.5f:h%d", prefix, lat, lng, hourBucket)
}

// ReverseGeocodeKey builds the address-book cache key for a reverse
// geocoding lookup.
func ReverseGeocodeKey(lat, lng float64) string {
	return CoordKey("revgeo", lat, lng)
}

// ProvinceCapitalKey builds the cache key for a resolved province capital.
func ProvinceCapitalKey(province string) string {
	return fmt.Sprintf("province_capital:%s", ShortHash([]byte(province)))
}
