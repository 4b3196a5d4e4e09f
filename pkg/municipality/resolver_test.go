package municipality

import (
	"context"
	"errors"
	"testing"
	"time"

	"enrichment-svc/pkg/geocode"
	"enrichment-svc/vrp"
)

type fakeEndpoint struct {
	byCoord map[string]map[string]string
	calls   int
}

func (f *fakeEndpoint) Name() string { return "fake" }

func (f *fakeEndpoint) ReverseGeocode(ctx context.Context, coord vrp.Coordinate) (map[string]string, string, error) {
	f.calls++
	addr, ok := f.byCoord[coord.CoordKey()]
	if !ok {
		return map[string]string{}, "", nil
	}
	return addr, "", nil
}

func newTestGeocoder(ep geocode.Endpoint) *geocode.ReverseGeocoder {
	return geocode.NewReverseGeocoder([]geocode.Endpoint{ep}, time.Millisecond)
}

func TestResolvePoint_ResolvedReportsMunicipality(t *testing.T) {
	ep := &fakeEndpoint{byCoord: map[string]map[string]string{
		"45.500000,-73.600000": {"city": "Montreal", "state": "Quebec", "country_code": "ca"},
	}}
	rg := newTestGeocoder(ep)
	r := NewResolver(DefaultConfig(), rg, nil, nil)

	stats := &Stats{}
	report := r.ResolvePoint(context.Background(), vrp.Coordinate{Lat: 45.5, Lng: -73.6}, "depot", stats)

	if report.Status != vrp.ResolutionResolved {
		t.Fatalf("expected resolved, got %v", report.Status)
	}
	if report.MunicipalityName != "Montreal" {
		t.Errorf("expected Montreal, got %v", report.MunicipalityName)
	}
	if stats.Phase1Resolved != 1 {
		t.Errorf("expected 1 resolved in stats, got %v", stats.Phase1Resolved)
	}
}

func TestResolvePoint_GeocoderFailureMarksError(t *testing.T) {
	ep := &fakeEndpoint{byCoord: map[string]map[string]string{}}
	rg := geocode.NewReverseGeocoder(nil, time.Millisecond)
	_ = ep
	r := NewResolver(DefaultConfig(), rg, nil, nil)

	stats := &Stats{}
	report := r.ResolvePoint(context.Background(), vrp.Coordinate{Lat: 1, Lng: 1}, "customer", stats)
	if report.Status != vrp.ResolutionError {
		t.Fatalf("expected error status with no endpoints, got %v", report.Status)
	}
	if stats.Phase1Failed != 1 {
		t.Errorf("expected 1 failed in stats, got %v", stats.Phase1Failed)
	}
}

func TestResolveSegment_StraightLineWithoutFallbackFlagWhenNoGeometry(t *testing.T) {
	ep := &fakeEndpoint{byCoord: map[string]map[string]string{}}
	rg := newTestGeocoder(ep)
	r := NewResolver(DefaultConfig(), rg, nil, nil)

	stats := &Stats{}
	result := r.ResolveSegment(context.Background(), 0, vrp.Coordinate{Lat: 45.5, Lng: -73.6}, vrp.Coordinate{Lat: 46.8, Lng: -71.2}, true, stats)
	if result.FallbackToStraight {
		t.Error("expected no fallback flag when geometry client is simply absent (straight line is the default, not a fallback)")
	}
	if stats.Phase2SegmentsTraced != 1 {
		t.Errorf("expected 1 traced segment, got %v", stats.Phase2SegmentsTraced)
	}
}

type erroringGeometry struct{}

func (erroringGeometry) Polyline(ctx context.Context, from, to vrp.Coordinate) ([]vrp.Coordinate, error) {
	return nil, errors.New("no route found")
}

func TestResolveSegment_FallsBackOnGeometryError(t *testing.T) {
	ep := &fakeEndpoint{byCoord: map[string]map[string]string{}}
	rg := newTestGeocoder(ep)
	r := NewResolver(DefaultConfig(), rg, nil, erroringGeometry{})

	stats := &Stats{}
	result := r.ResolveSegment(context.Background(), 0, vrp.Coordinate{Lat: 45.5, Lng: -73.6}, vrp.Coordinate{Lat: 46.8, Lng: -71.2}, true, stats)
	if !result.FallbackToStraight {
		t.Error("expected fallback flag when geometry provider errors")
	}
	if stats.FallbackToStraight != 1 {
		t.Errorf("expected fallback counted in stats, got %v", stats.FallbackToStraight)
	}
}

func TestResolveSegment_SuppressesAdjacentDuplicates(t *testing.T) {
	ep := &fakeEndpoint{byCoord: map[string]map[string]string{}}
	// force every sample to resolve to the same municipality name.
	ep.byCoord = nil
	rg := geocode.NewReverseGeocoder([]geocode.Endpoint{&constantEndpoint{name: "Laval", province: "Quebec", country: "CA"}}, time.Millisecond)
	cfg := DefaultConfig()
	cfg.MaxSamplesPerSegment = 6
	cfg.ProvinceCapitalLookup = false
	r := NewResolver(cfg, rg, nil, nil)

	stats := &Stats{}
	result := r.ResolveSegment(context.Background(), 2, vrp.Coordinate{Lat: 45.5, Lng: -73.6}, vrp.Coordinate{Lat: 45.6, Lng: -73.7}, false, stats)
	if len(result.MunicipalityTrace) != 1 || result.MunicipalityTrace[0] != "Laval" {
		t.Errorf("expected deduped trace of [Laval], got %v", result.MunicipalityTrace)
	}
}

type constantEndpoint struct {
	name, province, country string
}

func (c *constantEndpoint) Name() string { return "constant" }

func (c *constantEndpoint) ReverseGeocode(ctx context.Context, coord vrp.Coordinate) (map[string]string, string, error) {
	return map[string]string{"city": c.name, "state": c.province, "country_code": c.country}, "", nil
}

func TestRouteVector_ConcatenatesAcrossSegments(t *testing.T) {
	segs := []SegmentResult{
		{Vector: vrp.AdminVector{MunicipalityNames: []string{"Laval", "Montreal"}}},
		{Vector: vrp.AdminVector{MunicipalityNames: []string{"Montreal", "Longueuil"}}},
	}
	out := RouteVector(segs)
	want := []string{"Laval", "Montreal", "Longueuil"}
	if len(out.MunicipalityNames) != len(want) {
		t.Fatalf("expected %v, got %v", want, out.MunicipalityNames)
	}
	for i, name := range want {
		if out.MunicipalityNames[i] != name {
			t.Errorf("at %d: expected %v, got %v", i, name, out.MunicipalityNames[i])
		}
	}
}

func TestPostOutputNotice_None(t *testing.T) {
	if got := PostOutputNotice(Stats{}); got != "none" {
		t.Errorf("expected none, got %v", got)
	}
}

func TestPostOutputNotice_Fallback(t *testing.T) {
	got := PostOutputNotice(Stats{FallbackToStraight: 2})
	if got == "none" {
		t.Error("expected a non-none notice when fallbacks occurred")
	}
}

func TestResamplePoints_CapsToMaxSamples(t *testing.T) {
	points := []vrp.Coordinate{
		{Lat: 45.0, Lng: -73.0},
		{Lat: 45.5, Lng: -73.5},
		{Lat: 46.0, Lng: -74.0},
		{Lat: 46.5, Lng: -74.5},
	}
	samples := resamplePoints(points, 1.0, 3)
	if len(samples) > 3 {
		t.Errorf("expected at most 3 samples, got %v", len(samples))
	}
}
