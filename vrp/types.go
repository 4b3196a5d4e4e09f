// Package vrp holds the domain types shared by the solver and the
// enrichment pipeline: coordinates, stops, routes, segments, observations,
// forecast windows, candidate locations and their scored form, and the
// administrative-geography vocabulary (municipality/province/capital).
//
// Entities are immutable after construction except for the caches living
// inside provider clients, which guard their own state independently.
package vrp

import (
	"fmt"
	"math"
)

// Epsilon is the tolerance used for float comparisons across this module,
// matching the convention of comparing route distances and ETA deltas.
const Epsilon = 1e-9

// FloatEquals reports whether a and b are equal within Epsilon.
func FloatEquals(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// FloatLess reports whether a < b, accounting for Epsilon.
func FloatLess(a, b float64) bool {
	return a < b-Epsilon
}

// FloatGreaterOrEqual reports whether a >= b, accounting for Epsilon.
func FloatGreaterOrEqual(a, b float64) bool {
	return a > b-Epsilon || FloatEquals(a, b)
}

// Coordinate is a validated lat/lng pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is a finite point on Earth.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// CoordKey returns the canonical cache/dedup key for a coordinate,
// rounded to 6 decimal places (~11cm).
func (c Coordinate) CoordKey() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// Stop is a coordinate with a caller-opaque id and optional demand.
type Stop struct {
	ID         string `json:"id"`
	Coordinate `json:"-"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Demand     int     `json:"demand,omitempty"`
}

// Coord returns the stop's coordinate as a Coordinate value.
func (s Stop) Coord() Coordinate {
	return Coordinate{Lat: s.Lat, Lng: s.Lng}
}

// Route is one vehicle's closed tour: depot, served customers, depot.
type Route struct {
	VehicleID          int      `json:"vehicle_id"`
	Capacity           int      `json:"capacity"`
	Used               int      `json:"used"`
	DistanceKM         float64  `json:"distance_km"`
	Stops              []Stop   `json:"stops"`
	ServedCustomerIDs  []string `json:"served_customer_ids"`
}

// Segment is one leg of a route between two consecutive stops.
type Segment struct {
	SegmentIndex        int        `json:"segment_index"`
	FromStopID          string     `json:"from_stop_id"`
	ToStopID            string     `json:"to_stop_id"`
	DistanceKM          float64    `json:"distance_km"`
	CumulativeKM        float64    `json:"cumulative_distance_km"`
	ETAMinFromDeparture float64    `json:"eta_min_from_departure"`
	ETAUTC              *string    `json:"eta_utc"`
	Midpoint            Coordinate `json:"midpoint"`
	Start               Coordinate `json:"start"`
	End                 Coordinate `json:"end"`
}

// ObservationKind distinguishes weather from traffic observations.
type ObservationKind string

const (
	ObservationWeather ObservationKind = "weather"
	ObservationTraffic ObservationKind = "traffic"
)

// ObservationStatus tags whether an observation reflects an actual
// measurement or is a placeholder produced when nothing could be
// resolved.
type ObservationStatus string

const (
	StatusObserved ObservationStatus = "observed"
	StatusUnknown  ObservationStatus = "unknown"
)

// Observation is a single weather or traffic reading at a coordinate,
// optionally timestamped.
type Observation struct {
	Kind         ObservationKind   `json:"kind"`
	Coordinate   Coordinate        `json:"-"`
	Lat          float64           `json:"lat"`
	Lng          float64           `json:"lng"`
	ObservedAt   *string           `json:"observed_at_utc,omitempty"`
	Status       ObservationStatus `json:"status"`
	Condition    string            `json:"condition,omitempty"`
	TemperatureC *float64          `json:"temperature_c,omitempty"`
	PrecipMM     *float64          `json:"precipitation_mm,omitempty"`
	PrecipProb   *float64          `json:"precipitation_probability,omitempty"`
	WindKPH      *float64          `json:"wind_kph,omitempty"`
	JamFactor    *float64          `json:"jam_factor,omitempty"`
	Congestion   string            `json:"congestion_level,omitempty"`
	SpeedKPH     *float64          `json:"speed_kph,omitempty"`
	FreeFlowKPH  *float64          `json:"free_flow_kph,omitempty"`
	ProviderName string            `json:"provider,omitempty"`
}

// ForecastSlot is one time-bucketed sample inside a ForecastWindow.
type ForecastSlot struct {
	StartUTC   string  `json:"start_utc"`
	EndUTC     string  `json:"end_utc"`
	Score      float64 `json:"score,omitempty"`
	DelayRatio float64 `json:"delay_ratio,omitempty"`
	DelaySec   float64 `json:"delay_seconds,omitempty"`
	Condition  string  `json:"condition,omitempty"`
}

// ForecastWindow describes a run of forecast slots plus the worst-case
// summary required for segment enrichment.
type ForecastWindow struct {
	WindowHours        int            `json:"window_hours"`
	IntervalMin        int            `json:"interval_min"`
	Slots              []ForecastSlot `json:"slots"`
	WorstCaseScore      *float64      `json:"worst_case_score,omitempty"`
	WorstCaseDelayRatio *float64      `json:"worst_case_delay_ratio,omitempty"`
	WorstCaseDelaySec   *float64      `json:"worst_case_delay_seconds,omitempty"`
	WorstSlots          []ForecastSlot `json:"worst_slots,omitempty"`
}

// CandidateLocation is a caller-supplied point of interest to be scored
// against a route's corridor.
type CandidateLocation struct {
	ID                string            `json:"id"`
	Name              string            `json:"name,omitempty"`
	Lat               float64           `json:"lat"`
	Lng               float64           `json:"lng"`
	Tags              map[string]string `json:"tags,omitempty"`
	SemanticCategory  string            `json:"semantic_category,omitempty"`
}

// Coord returns the candidate's coordinate.
func (c CandidateLocation) Coord() Coordinate {
	return Coordinate{Lat: c.Lat, Lng: c.Lng}
}

// ScoredLocation is a CandidateLocation enriched with its relevance to a
// specific route.
type ScoredLocation struct {
	CandidateLocation
	DistanceToRouteKM   float64 `json:"distance_to_route_km"`
	EstimatedDetourKM   float64 `json:"estimated_detour_km"`
	NearestSegmentIndex int     `json:"nearest_segment_index"`
	RelevanceScore      float64 `json:"relevance_score"`
}

// PointRegistryEntry tracks every stop/customer id that resolved to the
// same coordinate key, so the municipality resolver only looks up each
// distinct point once.
type PointRegistryEntry struct {
	CoordKey    string          `json:"coord_key"`
	Lat         float64         `json:"lat"`
	Lng         float64         `json:"lng"`
	StopIDs     map[string]bool `json:"-"`
	CustomerIDs map[string]bool `json:"-"`
	SourceTags  map[string]bool `json:"-"`
}

// Source tag values for PointRegistryEntry.SourceTags.
const (
	SourceDepotInput     = "depot_input"
	SourceCustomerInput  = "customer_input"
	SourceRouteStop      = "route_stop"
	SourceSegmentSample  = "segment_sample"
)

// NewPointRegistryEntry creates an entry for the given coordinate.
func NewPointRegistryEntry(coord Coordinate) *PointRegistryEntry {
	return &PointRegistryEntry{
		CoordKey:    coord.CoordKey(),
		Lat:         coord.Lat,
		Lng:         coord.Lng,
		StopIDs:     make(map[string]bool),
		CustomerIDs: make(map[string]bool),
		SourceTags:  make(map[string]bool),
	}
}

// ResolutionStatus tags an AdminResolution or ProvinceCapital lookup.
type ResolutionStatus string

const (
	ResolutionResolved ResolutionStatus = "resolved"
	ResolutionUnknown  ResolutionStatus = "unknown"
	ResolutionError    ResolutionStatus = "error"
)

// AdminResolution is the result of reverse-geocoding a single coordinate.
type AdminResolution struct {
	Status                  ResolutionStatus `json:"status"`
	MunicipalityName        string           `json:"municipality_name,omitempty"`
	MunicipalitySourceField string           `json:"municipality_source_field,omitempty"`
	ProvinceName            string           `json:"province_name,omitempty"`
	CountryCode             string           `json:"country_code,omitempty"`
	AddressRef              string           `json:"address_ref"`
	OSMRef                  string           `json:"osm_ref,omitempty"`
	ResolutionNote          string           `json:"resolution_note,omitempty"`
	Error                   string           `json:"error,omitempty"`
}

// SourceRole describes which OSM relation member role supplied a
// province capital's coordinate.
type SourceRole string

const (
	SourceRoleAdminCentre SourceRole = "admin_centre"
	SourceRoleCapital     SourceRole = "capital"
	SourceRoleLabel       SourceRole = "label"
)

// ProvinceCapital is the result of resolving a province's capital city.
type ProvinceCapital struct {
	ProvinceName    string           `json:"province_name"`
	CountryCode     string           `json:"country_code,omitempty"`
	Status          ResolutionStatus `json:"status"`
	CapitalName     string           `json:"capital_name,omitempty"`
	CapitalCoord    *Coordinate      `json:"capital_coordinate,omitempty"`
	SourceRole      SourceRole       `json:"source_role,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// AdminVector is the three parallel, adjacent-deduplicated name
// sequences attached to a segment or route.
type AdminVector struct {
	MunicipalityNames    []string `json:"municipality_names"`
	ProvinceNames        []string `json:"province_names"`
	ProvinceCapitalNames []string `json:"province_capital_names"`
}

// DedupeAdjacent removes consecutive duplicate strings, preserving order.
func DedupeAdjacent(items []string) []string {
	if len(items) == 0 {
		return items
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if len(out) > 0 && out[len(out)-1] == item {
			continue
		}
		out = append(out, item)
	}
	return out
}

// AppendVector concatenates two admin vectors order-preservingly and
// deduplicates adjacent entries in each of the three sequences, used when
// folding a segment vector into a route vector.
func AppendVector(base, next AdminVector) AdminVector {
	return AdminVector{
		MunicipalityNames:    DedupeAdjacent(append(append([]string{}, base.MunicipalityNames...), next.MunicipalityNames...)),
		ProvinceNames:        DedupeAdjacent(append(append([]string{}, base.ProvinceNames...), next.ProvinceNames...)),
		ProvinceCapitalNames: DedupeAdjacent(append(append([]string{}, base.ProvinceCapitalNames...), next.ProvinceCapitalNames...)),
	}
}
