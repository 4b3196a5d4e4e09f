package solver

import (
	"context"
	"errors"
	"testing"

	"enrichment-svc/vrp"
)

func TestSolve_AssignsAllCustomersWhenCapacitySuffices(t *testing.T) {
	s := New(nil)
	req := Request{
		Depot: vrp.Coordinate{Lat: 45.5, Lng: -73.6},
		Customers: []vrp.Stop{
			{ID: "c1", Lat: 45.51, Lng: -73.61, Demand: 2},
			{ID: "c2", Lat: 45.52, Lng: -73.62, Demand: 2},
		},
		VehicleCount:    1,
		VehicleCapacity: 10,
	}

	result, err := s.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.UnservedCustomerIDs) != 0 {
		t.Errorf("expected no unserved customers, got %v", result.UnservedCustomerIDs)
	}
	if len(result.Routes) != 1 {
		t.Fatalf("expected 1 route, got %v", len(result.Routes))
	}
	if len(result.Routes[0].ServedCustomerIDs) != 2 {
		t.Errorf("expected both customers served by the single vehicle, got %v", result.Routes[0].ServedCustomerIDs)
	}
}

func TestSolve_ReportsUnservedWhenCapacityExhausted(t *testing.T) {
	s := New(nil)
	req := Request{
		Depot: vrp.Coordinate{Lat: 45.5, Lng: -73.6},
		Customers: []vrp.Stop{
			{ID: "c1", Lat: 45.51, Lng: -73.61, Demand: 5},
			{ID: "c2", Lat: 45.52, Lng: -73.62, Demand: 5},
			{ID: "c3", Lat: 45.53, Lng: -73.63, Demand: 5},
		},
		VehicleCount:    1,
		VehicleCapacity: 10,
	}

	result, err := s.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.UnservedCustomerIDs) != 1 {
		t.Fatalf("expected exactly 1 unserved customer, got %v", result.UnservedCustomerIDs)
	}
}

func TestSolve_RoutesStartAndEndAtDepot(t *testing.T) {
	s := New(nil)
	req := Request{
		Depot: vrp.Coordinate{Lat: 45.5, Lng: -73.6},
		Customers: []vrp.Stop{
			{ID: "c1", Lat: 45.51, Lng: -73.61, Demand: 1},
		},
		VehicleCount:    1,
		VehicleCapacity: 10,
	}
	result, err := s.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stops := result.Routes[0].Stops
	if stops[0].ID != "depot" || stops[len(stops)-1].ID != "depot" {
		t.Errorf("expected route to start and end at depot, got %v", stops)
	}
}

type failingGeometry struct{}

func (failingGeometry) DistanceKM(ctx context.Context, from, to vrp.Coordinate) (float64, error) {
	return 0, errors.New("no route found")
}

func TestSolve_OSRMFailureFallsBackToDirectWithWarning(t *testing.T) {
	s := New(failingGeometry{})
	req := Request{
		Depot: vrp.Coordinate{Lat: 45.5, Lng: -73.6},
		Customers: []vrp.Stop{
			{ID: "c1", Lat: 45.51, Lng: -73.61, Demand: 1},
		},
		VehicleCount:    1,
		VehicleCapacity: 10,
		DistanceMode:    DistanceOSRM,
	}
	result, err := s.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, w := range result.Warnings {
		if w == "using direct distances" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected fallback warning, got %v", result.Warnings)
	}
}

type workingGeometry struct{ distance float64 }

func (w workingGeometry) DistanceKM(ctx context.Context, from, to vrp.Coordinate) (float64, error) {
	return w.distance, nil
}

func TestSolve_OSRMModeUsesGeometryDistance(t *testing.T) {
	s := New(workingGeometry{distance: 42})
	req := Request{
		Depot: vrp.Coordinate{Lat: 45.5, Lng: -73.6},
		Customers: []vrp.Stop{
			{ID: "c1", Lat: 45.51, Lng: -73.61, Demand: 1},
		},
		VehicleCount:    1,
		VehicleCapacity: 10,
		DistanceMode:    DistanceOSRM,
	}
	result, err := s.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Routes[0].DistanceKM != 84 {
		t.Errorf("expected distance 42+42=84 from fixed geometry distance, got %v", result.Routes[0].DistanceKM)
	}
}

func TestSolve_MultipleVehiclesSplitCustomers(t *testing.T) {
	s := New(nil)
	req := Request{
		Depot: vrp.Coordinate{Lat: 45.5, Lng: -73.6},
		Customers: []vrp.Stop{
			{ID: "c1", Lat: 45.51, Lng: -73.61, Demand: 6},
			{ID: "c2", Lat: 45.52, Lng: -73.62, Demand: 6},
		},
		VehicleCount:    2,
		VehicleCapacity: 10,
	}
	result, err := s.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Routes) != 2 {
		t.Fatalf("expected 2 routes, got %v", len(result.Routes))
	}
	if len(result.UnservedCustomerIDs) != 0 {
		t.Errorf("expected all customers served across vehicles, got unserved %v", result.UnservedCustomerIDs)
	}
}

func TestSolve_NoCustomers(t *testing.T) {
	s := New(nil)
	req := Request{
		Depot:           vrp.Coordinate{Lat: 45.5, Lng: -73.6},
		VehicleCount:    1,
		VehicleCapacity: 10,
	}
	result, err := s.Solve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Routes) != 0 {
		t.Errorf("expected no routes when there are no customers, got %v", len(result.Routes))
	}
}
