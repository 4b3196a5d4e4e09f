// Package poi scores caller-supplied candidate locations against a
// route's corridor and returns the top-K most relevant ones.
package poi

import (
	"sort"

	"enrichment-svc/pkg/geo"
	"enrichment-svc/vrp"
)

// Config tunes the relevance formula and result shape.
type Config struct {
	RadiusKM            float64
	ProximityWeight     float64
	CategoryWeight      float64
	TopK                int
	RequestedCategories []string
}

// DefaultConfig matches the external interface table defaults.
func DefaultConfig() Config {
	return Config{
		RadiusKM:        1.2,
		ProximityWeight: 0.65,
		CategoryWeight:  0.35,
		TopK:            8,
	}
}

// Score computes r = proximityWeight*max(0, 1 - d/radius) +
// categoryWeight*(1.0 if category matches else 0.25) for one candidate
// against the route polyline formed by stops.
func Score(cfg Config, candidate vrp.CandidateLocation, stops []vrp.Coordinate) vrp.ScoredLocation {
	geoStops := make([]geo.Point, len(stops))
	for i, s := range stops {
		geoStops[i] = geo.Point(s)
	}

	point := geo.Point(candidate.Coord())
	segIdx, distKM := geo.NearestSegment(point, geoStops)

	proximity := 0.0
	if cfg.RadiusKM > 0 {
		proximity = 1.0 - distKM/cfg.RadiusKM
		if proximity < 0 {
			proximity = 0
		}
	}

	category := vrp.InferCategory(candidate)
	categoryScore := 0.25
	if len(cfg.RequestedCategories) == 0 || containsCategory(cfg.RequestedCategories, category) {
		categoryScore = 1.0
	}

	relevance := cfg.ProximityWeight*proximity + cfg.CategoryWeight*categoryScore

	detour := 2 * distKM

	return vrp.ScoredLocation{
		CandidateLocation:   candidate,
		DistanceToRouteKM:   distKM,
		EstimatedDetourKM:   detour,
		NearestSegmentIndex: segIdx,
		RelevanceScore:      relevance,
	}
}

// TopK scores every candidate within cfg.RadiusKM of the route and
// returns the cfg.TopK highest-scoring ones, ordered by
// (-score, distance, id).
func TopK(cfg Config, candidates []vrp.CandidateLocation, stops []vrp.Coordinate) []vrp.ScoredLocation {
	scored := make([]vrp.ScoredLocation, 0, len(candidates))
	for _, c := range candidates {
		s := Score(cfg, c, stops)
		if s.DistanceToRouteKM <= cfg.RadiusKM {
			scored = append(scored, s)
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if !vrp.FloatEquals(scored[i].RelevanceScore, scored[j].RelevanceScore) {
			return scored[i].RelevanceScore > scored[j].RelevanceScore
		}
		if !vrp.FloatEquals(scored[i].DistanceToRouteKM, scored[j].DistanceToRouteKM) {
			return scored[i].DistanceToRouteKM < scored[j].DistanceToRouteKM
		}
		return scored[i].ID < scored[j].ID
	})

	k := cfg.TopK
	if k <= 0 || k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

func containsCategory(categories []string, category string) bool {
	for _, c := range categories {
		if c == category {
			return true
		}
	}
	return false
}
