package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Standard span attribute keys.
const (
	// Route
	AttrRouteID      = "route.id"
	AttrRouteStops   = "route.stops"
	AttrRouteMode    = "route.enrichment_mode"
	AttrSegmentCount = "route.segment_count"

	// Provider
	AttrProviderKind = "provider.kind"
	AttrProviderName = "provider.name"
	AttrCacheHit     = "provider.cache_hit"

	// Geocoding
	AttrGeocodeQuery  = "geocode.query"
	AttrAdminLevel    = "geocode.admin_level"
	AttrResolutionTag = "geocode.resolution"

	// POI
	AttrPOICandidates = "poi.candidates"
	AttrPOIReturned   = "poi.returned"
)

// RouteAttributes returns span attributes describing a route.
func RouteAttributes(routeID string, stops, segments int, mode string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRouteID, routeID),
		attribute.Int(AttrRouteStops, stops),
		attribute.Int(AttrSegmentCount, segments),
		attribute.String(AttrRouteMode, mode),
	}
}

// ProviderAttributes returns span attributes describing a provider call.
func ProviderAttributes(kind, name string, cacheHit bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrProviderKind, kind),
		attribute.String(AttrProviderName, name),
		attribute.Bool(AttrCacheHit, cacheHit),
	}
}

// GeocodeAttributes returns span attributes describing a geocoding call.
func GeocodeAttributes(query string, adminLevel int, resolution string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrGeocodeQuery, query),
		attribute.Int(AttrAdminLevel, adminLevel),
		attribute.String(AttrResolutionTag, resolution),
	}
}

// POIAttributes returns span attributes describing point-of-interest selection.
func POIAttributes(candidates, returned int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrPOICandidates, candidates),
		attribute.Int(AttrPOIReturned, returned),
	}
}
