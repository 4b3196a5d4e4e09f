// Package municipality implements the two-phase administrative-geography
// resolver: phase 1 resolves every distinct endpoint coordinate in a
// request, phase 2 samples each route segment's polyline and resolves
// those too, producing the per-segment and per-route admin vectors.
package municipality

import (
	"context"
	"sort"

	"enrichment-svc/pkg/geo"
	"enrichment-svc/pkg/geocode"
	"enrichment-svc/vrp"
)

// Config tunes the resolver, mirroring the municipality_* request keys.
type Config struct {
	StepKM               float64
	MaxSamplesPerSegment int
	UseRouteGeometry     bool
	ProvinceCapitalLookup bool
}

// DefaultConfig matches the external interface table defaults.
func DefaultConfig() Config {
	return Config{
		StepKM:                20.0,
		MaxSamplesPerSegment:  12,
		UseRouteGeometry:      true,
		ProvinceCapitalLookup: true,
	}
}

// OnRoadGeometry abstracts the optional on-road polyline provider used
// in phase 2 step 1. A nil client (or any error) falls back to the
// straight-line segment.
type OnRoadGeometry interface {
	Polyline(ctx context.Context, from, to vrp.Coordinate) ([]vrp.Coordinate, error)
}

// PointReport is phase 1's per-coordinate output.
type PointReport struct {
	CoordKey             string
	Role                 string // "depot" or "customer"
	Status               vrp.ResolutionStatus
	MunicipalityName     string
	ProvinceName         string
	ProvinceCapitalName  string
	CountryCode          string
}

// SegmentResult is phase 2's per-segment output.
type SegmentResult struct {
	SegmentIndex        int
	MunicipalityTrace    []string
	Vector               vrp.AdminVector
	FallbackToStraight   bool
}

// Stats tallies lookups and fallbacks across one resolver run, surfaced
// in the response's municipality_api.lookup_stats/route_geometry.
type Stats struct {
	Phase1Resolved        int
	Phase1Unknown         int
	Phase1Failed          int
	Phase2SegmentsTraced  int
	FallbackToStraight    int
}

// Resolver runs both phases against a shared ReverseGeocoder instance so
// the minimum-interval timer and address-book cache are shared across
// phase 1 and phase 2 (Open Question 2).
type Resolver struct {
	cfg       Config
	geocoder  *geocode.ReverseGeocoder
	areaQuery *geocode.AreaQuery
	geometry  OnRoadGeometry
}

// NewResolver builds a two-phase resolver. geometry may be nil, in which
// case phase 2 always uses the straight-line segment.
func NewResolver(cfg Config, geocoder *geocode.ReverseGeocoder, areaQuery *geocode.AreaQuery, geometry OnRoadGeometry) *Resolver {
	return &Resolver{cfg: cfg, geocoder: geocoder, areaQuery: areaQuery, geometry: geometry}
}

// WithConfig returns a shallow copy of the resolver using cfg instead,
// sharing the same geocoder address book, area query cache, and geometry
// client. This lets a single request apply municipality_* overrides
// without losing the warm cache a long-lived Resolver accumulates.
func (r *Resolver) WithConfig(cfg Config) *Resolver {
	clone := *r
	clone.cfg = cfg
	return &clone
}

// ResolvePoint runs phase 1 for a single coordinate plus its role,
// optionally chasing the province capital when configured.
func (r *Resolver) ResolvePoint(ctx context.Context, coord vrp.Coordinate, role string, stats *Stats) PointReport {
	resolution, err := r.geocoder.Resolve(ctx, coord)
	report := PointReport{CoordKey: coord.CoordKey(), Role: role}
	if err != nil {
		report.Status = vrp.ResolutionError
		stats.Phase1Failed++
		return report
	}

	report.Status = resolution.Status
	report.MunicipalityName = resolution.MunicipalityName
	report.ProvinceName = resolution.ProvinceName
	report.CountryCode = resolution.CountryCode

	switch resolution.Status {
	case vrp.ResolutionResolved:
		stats.Phase1Resolved++
	case vrp.ResolutionUnknown:
		stats.Phase1Unknown++
	default:
		stats.Phase1Failed++
	}

	if r.cfg.ProvinceCapitalLookup && r.areaQuery != nil && resolution.ProvinceName != "" {
		capital, err := r.areaQuery.ResolveProvinceCapital(ctx, resolution.ProvinceName, resolution.CountryCode)
		if err == nil && capital.Status == vrp.ResolutionResolved {
			report.ProvinceCapitalName = capital.CapitalName
		}
	}

	return report
}

// ResolveSegment runs phase 2 for one route segment: optionally fetches
// on-road geometry, resamples it, resolves every sample, and suppresses
// adjacent duplicate municipality names.
func (r *Resolver) ResolveSegment(ctx context.Context, segmentIndex int, start, end vrp.Coordinate, distanceIsOnRoad bool, stats *Stats) SegmentResult {
	points := []vrp.Coordinate{start, end}
	fallback := false

	if r.cfg.UseRouteGeometry && distanceIsOnRoad && r.geometry != nil {
		poly, err := r.geometry.Polyline(ctx, start, end)
		if err != nil || len(poly) < 2 {
			fallback = true
			stats.FallbackToStraight++
		} else {
			points = poly
		}
	}

	samples := resamplePoints(points, r.cfg.StepKM, r.cfg.MaxSamplesPerSegment)

	var trace []string
	var vector vrp.AdminVector
	for _, sample := range samples {
		resolution, err := r.geocoder.Resolve(ctx, sample)
		if err != nil || resolution.Status != vrp.ResolutionResolved {
			continue
		}
		trace = appendDedup(trace, resolution.MunicipalityName)
		vector.MunicipalityNames = appendDedup(vector.MunicipalityNames, resolution.MunicipalityName)
		vector.ProvinceNames = appendDedup(vector.ProvinceNames, resolution.ProvinceName)

		if r.cfg.ProvinceCapitalLookup && r.areaQuery != nil && resolution.ProvinceName != "" {
			capital, err := r.areaQuery.ResolveProvinceCapital(ctx, resolution.ProvinceName, resolution.CountryCode)
			if err == nil && capital.Status == vrp.ResolutionResolved {
				vector.ProvinceCapitalNames = appendDedup(vector.ProvinceCapitalNames, capital.CapitalName)
			}
		}
	}
	stats.Phase2SegmentsTraced++

	return SegmentResult{
		SegmentIndex:       segmentIndex,
		MunicipalityTrace:  trace,
		Vector:             vector,
		FallbackToStraight: fallback,
	}
}

func appendDedup(items []string, next string) []string {
	if next == "" {
		return items
	}
	if len(items) > 0 && items[len(items)-1] == next {
		return items
	}
	return append(items, next)
}

// resamplePoints walks points (straight line or on-road polyline) by
// arc length at stepKM, capped to maxSamples by evenly-spaced selection
// preserving both endpoints.
func resamplePoints(points []vrp.Coordinate, stepKM float64, maxSamples int) []vrp.Coordinate {
	geoPoints := make([]geo.Point, len(points))
	for i, p := range points {
		geoPoints[i] = geo.Point(p)
	}

	total, cumulative := geo.ResamplePolyline(geoPoints)
	if total == 0 || stepKM <= 0 {
		return points
	}

	n := int(total/stepKM) + 1
	if n < 1 {
		n = 1
	}

	samples := make([]vrp.Coordinate, 0, n+1)
	targetDistances := make([]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		targetDistances = append(targetDistances, (float64(i)/float64(n))*total)
	}

	for _, target := range targetDistances {
		samples = append(samples, vrp.Coordinate(interpolateAlong(geoPoints, cumulative, target)))
	}

	return capSamples(samples, maxSamples)
}

func interpolateAlong(points []geo.Point, cumulative []float64, target float64) geo.Point {
	for i := 1; i < len(cumulative); i++ {
		if target <= cumulative[i] {
			segLen := cumulative[i] - cumulative[i-1]
			if segLen <= 0 {
				return points[i]
			}
			t := (target - cumulative[i-1]) / segLen
			return geo.Interpolate(points[i-1], points[i], t)
		}
	}
	return points[len(points)-1]
}

func capSamples(samples []vrp.Coordinate, maxSamples int) []vrp.Coordinate {
	if maxSamples <= 0 || len(samples) <= maxSamples {
		return samples
	}
	if maxSamples == 1 {
		return []vrp.Coordinate{samples[0]}
	}

	picked := make([]vrp.Coordinate, 0, maxSamples)
	indices := make(map[int]bool, maxSamples)
	for i := 0; i < maxSamples; i++ {
		idx := int(float64(i) / float64(maxSamples-1) * float64(len(samples)-1))
		indices[idx] = true
	}
	sortedIdx := make([]int, 0, len(indices))
	for idx := range indices {
		sortedIdx = append(sortedIdx, idx)
	}
	sort.Ints(sortedIdx)
	for _, idx := range sortedIdx {
		picked = append(picked, samples[idx])
	}
	return picked
}

// AddressBook returns a snapshot of every coordinate resolved so far
// through this resolver's geocoder, for the response's
// municipality_address_book field.
func (r *Resolver) AddressBook() map[string]vrp.AdminResolution {
	return r.geocoder.AddressBookSnapshot()
}

// RouteVector folds a sequence of per-segment vectors into the
// route-level vector via order-preserving, adjacent-deduplicated
// concatenation.
func RouteVector(segments []SegmentResult) vrp.AdminVector {
	var out vrp.AdminVector
	for _, s := range segments {
		out = vrp.AppendVector(out, s.Vector)
	}
	return out
}

// PostOutputNotice summarizes fallback/unresolved conditions into a
// single human-readable sentence for the response's notices field.
func PostOutputNotice(stats Stats) string {
	if stats.FallbackToStraight > 0 {
		return sentenceFallback(stats.FallbackToStraight)
	}
	if stats.Phase1Unknown > 0 || stats.Phase1Failed > 0 {
		return sentenceUnresolved(stats.Phase1Unknown, stats.Phase1Failed)
	}
	return "none"
}

func sentenceFallback(n int) string {
	if n == 1 {
		return "Municipality tracing used straight-line fallback in 1 segment."
	}
	return "Municipality tracing used straight-line fallback in " + itoa(n) + " segments."
}

func sentenceUnresolved(unknown, failed int) string {
	return "Municipality phase 1 has unresolved coordinates (unknown=" + itoa(unknown) + ", failed=" + itoa(failed) + ")."
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
