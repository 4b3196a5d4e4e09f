package enrichment

import (
	"context"
	"testing"
	"time"

	"enrichment-svc/pkg/geocode"
	"enrichment-svc/pkg/municipality"
	"enrichment-svc/pkg/provider"
	"enrichment-svc/pkg/solver"
	"enrichment-svc/vrp"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
}

func basicRequest() Request {
	return Request{
		Depot: vrp.Stop{ID: "depot", Lat: 45.5, Lng: -73.6},
		Customers: []vrp.Stop{
			{ID: "c1", Lat: 45.51, Lng: -73.61, Demand: 2},
			{ID: "c2", Lat: 45.52, Lng: -73.62, Demand: 2},
		},
		Vehicles: 1,
		Capacity: 10,
	}
}

func newTestOrchestrator() *Orchestrator {
	return New(Dependencies{
		Solver: solver.New(nil),
		Now:    fixedNow,
	})
}

func TestSolve_ReturnsRoutesWithoutSemanticLayerByOptOut(t *testing.T) {
	off := false
	req := basicRequest()
	req.IncludeSemanticLayer = &off

	o := newTestOrchestrator()
	resp, err := o.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Routes) != 1 {
		t.Fatalf("expected 1 route, got %v", len(resp.Routes))
	}
	if resp.SemanticLayer != nil {
		t.Errorf("expected no semantic layer when opted out, got %+v", resp.SemanticLayer)
	}
}

func TestSolve_BadRequestMissingCustomers(t *testing.T) {
	req := basicRequest()
	req.Customers = nil

	o := newTestOrchestrator()
	_, err := o.Solve(context.Background(), req)
	if err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestSolve_BadRequestDemandExceedsCapacity(t *testing.T) {
	req := basicRequest()
	req.Customers[0].Demand = 999

	o := newTestOrchestrator()
	_, err := o.Solve(context.Background(), req)
	if err == nil {
		t.Fatal("expected a validation error for demand exceeding capacity")
	}
}

func TestSolve_SemanticLayerDefaultsOnAndIncludesSegmentContext(t *testing.T) {
	req := basicRequest()
	o := newTestOrchestrator()

	resp, err := o.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.SemanticLayer == nil {
		t.Fatal("expected semantic layer to be attached by default")
	}
	if resp.SemanticLayerError != "" {
		t.Errorf("expected no semantic layer error, got %v", resp.SemanticLayerError)
	}
	if len(resp.SemanticLayer.Routes) != 1 {
		t.Fatalf("expected 1 route context, got %v", len(resp.SemanticLayer.Routes))
	}
	if len(resp.SemanticLayer.Routes[0].SegmentContext) == 0 {
		t.Error("expected at least one segment context")
	}
}

func TestSolve_SemanticLayerFailureNeverDropsRoutes(t *testing.T) {
	req := basicRequest()
	o := New(Dependencies{
		Solver: solver.New(nil),
		HereClientFactory: func(req Request) provider.TrafficWeatherProvider {
			panic("provider factory exploded")
		},
		Now: fixedNow,
	})

	resp, err := o.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected top-level error: %v", err)
	}
	if len(resp.Routes) != 1 {
		t.Fatalf("expected routes to survive semantic layer failure, got %v", len(resp.Routes))
	}
	if resp.SemanticLayerError == "" {
		t.Error("expected semantic_layer_error to be set")
	}
	if resp.SemanticLayer != nil {
		t.Error("expected no semantic layer when assembly panicked")
	}
}

func TestSolve_ProviderObservationsAttachToSegments(t *testing.T) {
	req := basicRequest()
	o := New(Dependencies{
		Solver: solver.New(nil),
		HereClientFactory: func(req Request) provider.TrafficWeatherProvider {
			return provider.NewEmulator(provider.Config{EmulatorSeed: "test-seed"})
		},
		Now: fixedNow,
	})

	resp, err := o.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seg := resp.SemanticLayer.Routes[0].SegmentContext[0]
	if seg.Weather.Status != vrp.StatusObserved {
		t.Errorf("expected provider weather to be observed, got %v", seg.Weather.Status)
	}
}

func TestSolve_HerePrefetchDisabledWhenUseHerePlatformFalse(t *testing.T) {
	req := basicRequest()
	useHere := false
	req.UseHerePlatform = &useHere

	o := newTestOrchestrator()
	resp, err := o.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.HerePrefetch["status"] != "disabled" {
		t.Errorf("expected disabled here_prefetch, got %v", resp.HerePrefetch)
	}
}

func TestSolve_HerePrefetchDisabledWithoutClientFactory(t *testing.T) {
	req := basicRequest()
	o := newTestOrchestrator()

	resp, err := o.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.HerePrefetch["status"] != "disabled" {
		t.Errorf("expected here_prefetch disabled when no factory is wired, got %v", resp.HerePrefetch)
	}
}

func TestSolve_MunicipalityDisabledByDefault(t *testing.T) {
	req := basicRequest()
	o := newTestOrchestrator()

	resp, err := o.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.SemanticLayer.MunicipalityAPI.Status != "disabled" {
		t.Errorf("expected municipality_api disabled by default, got %v", resp.SemanticLayer.MunicipalityAPI.Status)
	}
}

type constantEndpoint struct {
	municipality, province, country string
}

func (e constantEndpoint) Name() string { return "constant" }

func (e constantEndpoint) ReverseGeocode(ctx context.Context, coord vrp.Coordinate) (map[string]string, string, error) {
	return map[string]string{
		"city":         e.municipality,
		"state":        e.province,
		"country_code": e.country,
	}, "osm/1", nil
}

func TestSolve_MunicipalityEnabledPopulatesRouteVectors(t *testing.T) {
	req := basicRequest()
	on := true
	req.MunicipalityEnrichmentEnabled = &on

	geocoder := geocode.NewReverseGeocoder([]geocode.Endpoint{constantEndpoint{municipality: "Laval", province: "Quebec", country: "CA"}}, time.Millisecond)
	resolver := municipality.NewResolver(municipality.DefaultConfig(), geocoder, nil, nil)

	o := New(Dependencies{
		Solver:               solver.New(nil),
		MunicipalityResolver: resolver,
		Now:                  fixedNow,
	})

	resp, err := o.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.SemanticLayer.MunicipalityAPI.Status != "ok" {
		t.Fatalf("expected municipality_api ok, got %v", resp.SemanticLayer.MunicipalityAPI.Status)
	}
	route := resp.SemanticLayer.Routes[0]
	if len(route.MunicipalityVector) == 0 || route.MunicipalityVector[0] != "Laval" {
		t.Errorf("expected route municipality vector to include Laval, got %v", route.MunicipalityVector)
	}
	if resp.SemanticLayer.MunicipalityPostOutputNotice != "none" {
		t.Errorf("expected no fallback/unresolved notice, got %v", resp.SemanticLayer.MunicipalityPostOutputNotice)
	}
}

func TestSolve_POICandidatesScoredIntoSemanticLocations(t *testing.T) {
	req := basicRequest()
	req.CandidateLocations = []vrp.CandidateLocation{
		{ID: "fuel1", Lat: 45.51, Lng: -73.61, Tags: map[string]string{"amenity": "fuel"}},
	}

	o := newTestOrchestrator()
	resp, err := o.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.SemanticLayer.Routes[0].SemanticLocations) != 1 {
		t.Fatalf("expected 1 scored location, got %v", len(resp.SemanticLayer.Routes[0].SemanticLocations))
	}
}

func TestSolve_DeadlineExceededYieldsPartialStatus(t *testing.T) {
	req := basicRequest()
	req.RequestDeadlineSec = 1

	o := New(Dependencies{
		Solver: solver.New(nil),
		HereClientFactory: func(req Request) provider.TrafficWeatherProvider {
			return slowProvider{}
		},
		Now: fixedNow,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	time.Sleep(2 * time.Millisecond)

	resp, err := o.Solve(ctx, req)
	if err != nil {
		t.Fatalf("unexpected top-level error: %v", err)
	}
	if resp.SemanticLayer == nil {
		t.Fatal("expected a semantic layer even on deadline exceeded")
	}
	if resp.SemanticLayer.Status != StatusPartial {
		t.Errorf("expected partial status on deadline exceeded, got %v", resp.SemanticLayer.Status)
	}
}

type slowProvider struct{}

func (slowProvider) FetchWeather(ctx context.Context, coord vrp.Coordinate, referenceTime time.Time) (provider.WeatherResult, error) {
	<-ctx.Done()
	return provider.WeatherResult{}, ctx.Err()
}

func (slowProvider) FetchTrafficStatus(ctx context.Context, coord vrp.Coordinate) (vrp.Observation, error) {
	<-ctx.Done()
	return vrp.Observation{}, ctx.Err()
}

func (slowProvider) FetchTrafficForecast(ctx context.Context, origin, destination vrp.Coordinate, referenceTime time.Time) (vrp.ForecastWindow, error) {
	<-ctx.Done()
	return vrp.ForecastWindow{}, ctx.Err()
}

func (slowProvider) Stats() provider.Stats { return provider.Stats{} }
