// Package enrichment implements the pipeline orchestrator and merger: it
// wires the solver, provider, geocode, municipality, segment, and poi
// packages into the /solve_vrp and /enrich_municipality request/response
// contract, isolating every enrichment failure so the routing result is
// never lost.
package enrichment

import (
	"time"

	"enrichment-svc/pkg/municipality"
	"enrichment-svc/pkg/provider"
	"enrichment-svc/pkg/solver"
	"enrichment-svc/vrp"
)

// PipelineMode selects when provider/geocode work happens relative to
// the solver call. here_pipeline_mode on the wire spells these
// "before_vrp" and "postprocessing"; PipelineMode is the internal name
// used once a Request has been resolved to an EffectiveConfig.
type PipelineMode string

const (
	ModePrefetchBeforeSolve   PipelineMode = "prefetch_before_solve"
	ModePostprocessAfterSolve PipelineMode = "postprocess_after_solve"
)

// resolvePipelineMode maps the wire-level here_pipeline_mode value onto
// the internal PipelineMode, defaulting invalid or empty values to
// postprocess_after_solve.
func resolvePipelineMode(wireValue string) PipelineMode {
	if wireValue == "before_vrp" {
		return ModePrefetchBeforeSolve
	}
	return ModePostprocessAfterSolve
}

// Status values for the semantic_layer and for individual
// segment/resolution pieces.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Request is the closed set of recognized fields for POST /solve_vrp.
// Unknown JSON keys are ignored by the caller's decoder configuration.
type Request struct {
	Depot     vrp.Stop   `json:"depot"`
	Customers []vrp.Stop `json:"customers"`
	Vehicles  int        `json:"vehicles"`
	Capacity  int        `json:"capacity"`

	DistanceMode          string `json:"distance_mode"`
	OSRMBaseURL           string `json:"osrm_base_url"`
	IncludeSemanticLayer  *bool  `json:"include_semantic_layer"`
	DepartureTimeUTC      string `json:"departure_time_utc"`
	RouteAvgSpeedKMH      float64 `json:"route_avg_speed_kmh"`

	SemanticCorridorRadiusKM float64  `json:"semantic_corridor_radius_km"`
	SemanticTopK             int      `json:"semantic_top_k"`
	SemanticCategories       []string `json:"semantic_categories"`
	SemanticProximityWeight  float64  `json:"semantic_proximity_weight"`
	SemanticCategoryWeight   float64  `json:"semantic_category_weight"`
	CandidateLocations       []vrp.CandidateLocation `json:"candidate_locations"`

	WeatherObservations []vrp.Observation `json:"weather_observations"`
	TrafficObservations []vrp.Observation `json:"traffic_observations"`

	UseHerePlatform        *bool  `json:"use_here_platform"`
	HereDataSource         string `json:"here_data_source"`
	HereEmulatorSeed       string `json:"here_emulator_seed"`
	HerePipelineMode       string `json:"here_pipeline_mode"`
	HereTimeoutSec         int    `json:"here_timeout_sec"`
	HereTrafficRadiusM     int    `json:"here_traffic_radius_m"`
	HereForecastWindowHrs  int    `json:"here_forecast_window_hours"`
	HereForecastIntervalM  int    `json:"here_forecast_interval_min"`

	MunicipalityEnrichmentEnabled    *bool   `json:"municipality_enrichment_enabled"`
	MunicipalityStepKM               float64 `json:"municipality_step_km"`
	MunicipalityRadiusKM             float64 `json:"municipality_radius_km"`
	MunicipalityMaxSamplesPerSegment int     `json:"municipality_max_samples_per_segment"`
	MunicipalityReverseMinIntervalMs int     `json:"municipality_reverse_min_interval_ms"`
	MunicipalityUseRouteGeometry     *bool   `json:"municipality_use_route_geometry"`
	ProvinceCapitalLookupEnabled     *bool   `json:"province_capital_lookup_enabled"`

	RequestDeadlineSec int `json:"request_deadline_sec"`
}

// EffectiveConfig is the resolved set of options after defaults are
// applied, echoed back in semantic_layer.config.
type EffectiveConfig struct {
	DistanceMode             string   `json:"distance_mode"`
	IncludeSemanticLayer     bool     `json:"include_semantic_layer"`
	RouteAvgSpeedKMH         float64  `json:"route_avg_speed_kmh"`
	SemanticCorridorRadiusKM float64  `json:"semantic_corridor_radius_km"`
	SemanticTopK             int      `json:"semantic_top_k"`
	SemanticCategories       []string `json:"semantic_categories"`
	SemanticProximityWeight  float64  `json:"semantic_proximity_weight"`
	SemanticCategoryWeight   float64  `json:"semantic_category_weight"`
	UseHerePlatform          bool     `json:"use_here_platform"`
	HereDataSource           string   `json:"here_data_source"`
	HerePipelineMode         string   `json:"here_pipeline_mode"`
	MunicipalityEnabled      bool     `json:"municipality_enrichment_enabled"`
	ProvinceCapitalLookup    bool     `json:"province_capital_lookup_enabled"`
	RequestDeadlineSec       int      `json:"request_deadline_sec"`
}

// Summary is the routing-level counters block.
type Summary struct {
	Vehicles       int     `json:"vehicles"`
	Customers      int     `json:"customers"`
	Served         int     `json:"served"`
	Unserved       int     `json:"unserved"`
	TotalDistanceKM float64 `json:"total_distance_km"`
	DistanceSource string  `json:"distance_source"`
}

// RouteSemanticContext is the per-route enrichment block.
type RouteSemanticContext struct {
	VehicleID              int                  `json:"vehicle_id"`
	SemanticLocations      []vrp.ScoredLocation `json:"semantic_locations"`
	SegmentContext         []SegmentContext     `json:"segment_context"`
	StopMunicipalityLinks  []string             `json:"stop_municipality_links,omitempty"`
	MunicipalityVector     []string             `json:"municipality_vector,omitempty"`
	ProvinceVector         []string             `json:"province_vector,omitempty"`
	ProvinceCapitalVector  []string             `json:"province_capital_vector,omitempty"`
}

// SegmentContext is one entry of a route's segment_context array.
type SegmentContext struct {
	vrp.Segment
	Weather            vrp.Observation    `json:"weather"`
	Traffic            vrp.Observation    `json:"traffic"`
	Forecast           vrp.ForecastWindow `json:"forecast,omitempty"`
	MunicipalityTrace  []string           `json:"municipality_trace,omitempty"`
	MunicipalityNames  []string           `json:"municipality_names,omitempty"`
	ProvinceNames      []string           `json:"province_names,omitempty"`
	ProvinceCapitalNames []string         `json:"province_capital_names,omitempty"`
}

// SemanticLayer is the full enrichment result attached to a /solve_vrp
// response, or produced standalone by /enrich_municipality.
type SemanticLayer struct {
	Version                      string                  `json:"version"`
	GeneratedAtUTC               string                  `json:"generated_at_utc"`
	Status                       string                  `json:"status"`
	Config                       EffectiveConfig         `json:"config"`
	Summary                      map[string]any          `json:"summary"`
	Errors                       []string                `json:"errors"`
	MunicipalityAPI              MunicipalityAPI         `json:"municipality_api"`
	MunicipalityAddressBook      map[string]vrp.AdminResolution `json:"municipality_address_book,omitempty"`
	MunicipalityPhase1Points     []municipalityPhase1Point `json:"municipality_phase1_input_points,omitempty"`
	MunicipalityPostOutputNotice string                  `json:"municipality_post_output_notice"`
	Routes                       []RouteSemanticContext  `json:"routes"`
}

// MunicipalityAPI is semantic_layer.municipality_api.
type MunicipalityAPI struct {
	Status          string         `json:"status"`
	Phase1          map[string]any `json:"phase1"`
	Phase2          map[string]any `json:"phase2"`
	LookupStats     map[string]any `json:"lookup_stats"`
	RouteGeometry   map[string]any `json:"route_geometry"`
	ProvinceCapitals map[string]vrp.ProvinceCapital `json:"province_capitals,omitempty"`
}

type municipalityPhase1Point struct {
	CoordKey         string `json:"coord_key"`
	Role             string `json:"role"`
	Status           string `json:"status"`
	MunicipalityName string `json:"municipality_name,omitempty"`
	ProvinceName     string `json:"province_name,omitempty"`
	CountryCode      string `json:"country_code,omitempty"`
}

// Response is the top-level /solve_vrp JSON response.
type Response struct {
	Routes              []vrp.Route    `json:"routes"`
	UnservedCustomerIDs []string       `json:"unserved_customer_ids"`
	Warnings            []string       `json:"warnings"`
	Summary             Summary        `json:"summary"`
	SemanticLayer       *SemanticLayer `json:"semantic_layer,omitempty"`
	SemanticLayerError  string         `json:"semantic_layer_error,omitempty"`
	HerePrefetch        map[string]any `json:"here_prefetch,omitempty"`
}

// Dependencies bundles the process-wide collaborators the orchestrator
// needs. HereClientFactory lets the service layer inject a live or
// emulator provider per request without the orchestrator importing the
// HTTP bootstrap package. MunicipalityResolver is shared across requests
// so its address book and rate limiter stay warm.
type Dependencies struct {
	Solver               solver.Solver
	HereClientFactory    func(req Request) provider.TrafficWeatherProvider
	MunicipalityResolver *municipality.Resolver
	Now                  func() time.Time
}
