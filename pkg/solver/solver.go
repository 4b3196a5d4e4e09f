// Package solver implements a minimal in-process nearest-neighbor VRP
// construction heuristic, enough to produce a valid capacity-respecting
// Route sequence for the enrichment pipeline to consume.
package solver

import (
	"context"

	"enrichment-svc/pkg/geo"
	"enrichment-svc/vrp"
)

// DistanceMode selects how leg distances are computed.
type DistanceMode string

const (
	DistanceDirect DistanceMode = "direct"
	DistanceOSRM   DistanceMode = "osrm"
)

// OnRoadGeometry returns the real driving distance between two
// coordinates, used only in DistanceOSRM mode.
type OnRoadGeometry interface {
	DistanceKM(ctx context.Context, from, to vrp.Coordinate) (float64, error)
}

// Request is the solver's input: one depot, a customer list, and a
// homogeneous vehicle fleet.
type Request struct {
	Depot          vrp.Coordinate
	Customers      []vrp.Stop
	VehicleCount   int
	VehicleCapacity int
	DistanceMode   DistanceMode
}

// Result is the solver's output.
type Result struct {
	Routes             []vrp.Route
	UnservedCustomerIDs []string
	Warnings            []string
}

// Solver builds a set of routes from a Request.
type Solver interface {
	Solve(ctx context.Context, req Request) (Result, error)
}

// NearestNeighbor is the only Solver implementation: a greedy
// construction heuristic, not a competitor to Clarke-Wright or
// metaheuristic solvers.
type NearestNeighbor struct {
	geometry OnRoadGeometry
}

// New builds a NearestNeighbor solver. geometry may be nil; it is only
// consulted in DistanceOSRM mode.
func New(geometry OnRoadGeometry) *NearestNeighbor {
	return &NearestNeighbor{geometry: geometry}
}

// Solve assigns customers to vehicles greedily: from the current
// position, repeatedly append the nearest not-yet-served customer whose
// demand fits the vehicle's remaining capacity. When none fit, the route
// closes back at the depot and the next vehicle starts. Customers left
// over after every vehicle is exhausted are reported, never dropped.
func (s *NearestNeighbor) Solve(ctx context.Context, req Request) (Result, error) {
	mode := req.DistanceMode
	if mode == "" {
		mode = DistanceDirect
	}

	remaining := make(map[string]vrp.Stop, len(req.Customers))
	order := make([]string, 0, len(req.Customers))
	for _, c := range req.Customers {
		remaining[c.ID] = c
		order = append(order, c.ID)
	}

	var routes []vrp.Route
	var warnings []string

	// Every vehicle in the fleet produces a route, even an empty
	// depot-to-depot one once customers run out, so len(routes) always
	// equals the requested vehicle count for a non-empty customer list.
	routeCount := req.VehicleCount
	if len(req.Customers) == 0 {
		routeCount = 0
	}

	for i := 0; i < routeCount; i++ {
		vehicleID := i + 1
		route, usedOSRM, err := s.buildOneRoute(ctx, vehicleID, req, remaining, mode)
		if err != nil && mode == DistanceOSRM {
			route, _, fallbackErr := s.buildOneRoute(ctx, vehicleID, req, remaining, DistanceDirect)
			if fallbackErr != nil {
				return Result{}, fallbackErr
			}
			warnings = append(warnings, "using direct distances")
			routes = append(routes, route)
			for _, id := range route.ServedCustomerIDs {
				delete(remaining, id)
			}
			continue
		}
		if err != nil {
			return Result{}, err
		}
		if !usedOSRM && mode == DistanceOSRM {
			warnings = append(warnings, "using direct distances")
		}

		routes = append(routes, route)
		for _, id := range route.ServedCustomerIDs {
			delete(remaining, id)
		}
	}

	var unserved []string
	for _, id := range order {
		if _, ok := remaining[id]; ok {
			unserved = append(unserved, id)
		}
	}

	return Result{Routes: routes, UnservedCustomerIDs: unserved, Warnings: dedupeWarnings(warnings)}, nil
}

func (s *NearestNeighbor) buildOneRoute(ctx context.Context, vehicleID int, req Request, remaining map[string]vrp.Stop, mode DistanceMode) (vrp.Route, bool, error) {
	capacity := req.VehicleCapacity
	current := req.Depot
	used := 0
	stops := []vrp.Stop{{ID: "depot", Lat: req.Depot.Lat, Lng: req.Depot.Lng}}
	var served []string
	totalDist := 0.0
	usedOSRM := mode == DistanceOSRM

	candidates := make(map[string]vrp.Stop, len(remaining))
	for k, v := range remaining {
		candidates[k] = v
	}

	for {
		nextID, nextStop, dist, found, err := s.findNearestFitting(ctx, current, candidates, capacity-used, mode)
		if err != nil {
			return vrp.Route{}, false, err
		}
		if !found {
			break
		}

		totalDist += dist
		used += nextStop.Demand
		stops = append(stops, nextStop)
		served = append(served, nextID)
		current = nextStop.Coord()
		delete(candidates, nextID)
	}

	closingDist, err := legDistance(ctx, s.geometry, current, req.Depot, mode)
	if err != nil {
		return vrp.Route{}, false, err
	}
	totalDist += closingDist
	stops = append(stops, vrp.Stop{ID: "depot", Lat: req.Depot.Lat, Lng: req.Depot.Lng})

	return vrp.Route{
		VehicleID:         vehicleID,
		Capacity:          capacity,
		Used:              used,
		DistanceKM:         totalDist,
		Stops:              stops,
		ServedCustomerIDs:  served,
	}, usedOSRM, nil
}

func (s *NearestNeighbor) findNearestFitting(ctx context.Context, from vrp.Coordinate, candidates map[string]vrp.Stop, remainingCapacity int, mode DistanceMode) (string, vrp.Stop, float64, bool, error) {
	bestDist := -1.0
	var bestID string
	var bestStop vrp.Stop
	found := false

	for id, stop := range candidates {
		if stop.Demand > remainingCapacity {
			continue
		}
		dist, err := legDistance(ctx, s.geometry, from, stop.Coord(), mode)
		if err != nil {
			return "", vrp.Stop{}, 0, false, err
		}
		if !found || dist < bestDist || (dist == bestDist && id < bestID) {
			bestDist = dist
			bestID = id
			bestStop = stop
			found = true
		}
	}

	return bestID, bestStop, bestDist, found, nil
}

func legDistance(ctx context.Context, geometry OnRoadGeometry, from, to vrp.Coordinate, mode DistanceMode) (float64, error) {
	if mode == DistanceOSRM && geometry != nil {
		d, err := geometry.DistanceKM(ctx, from, to)
		if err != nil {
			return 0, err
		}
		return d, nil
	}
	return geo.HaversineKM(geo.Point(from), geo.Point(to)), nil
}

func dedupeWarnings(warnings []string) []string {
	seen := make(map[string]bool, len(warnings))
	var out []string
	for _, w := range warnings {
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
