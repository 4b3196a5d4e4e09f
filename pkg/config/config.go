// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure for the enrichment service.
type Config struct {
	App          AppConfig          `koanf:"app"`
	HTTP         HTTPConfig         `koanf:"http"`
	Log          LogConfig          `koanf:"log"`
	Metrics      MetricsConfig      `koanf:"metrics"`
	Tracing      TracingConfig      `koanf:"tracing"`
	Cache        CacheConfig        `koanf:"cache"`
	RateLimit    RateLimitConfig    `koanf:"rate_limit"`
	Audit        AuditConfig        `koanf:"audit"`
	Here         HereConfig         `koanf:"here"`
	Municipality MunicipalityConfig `koanf:"municipality"`
	Semantic     SemanticConfig     `koanf:"semantic"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Solver       SolverConfig       `koanf:"solver"`
}

// AppConfig holds general application metadata.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// HTTPConfig configures the plain net/http JSON API server.
type HTTPConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORS            CORSConfig    `koanf:"cors"`
}

// CORSConfig configures cross-origin access to the JSON API.
type CORSConfig struct {
	Enabled          bool     `koanf:"enabled"`
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	ExposedHeaders   []string `koanf:"exposed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

// LogConfig configures the process-global slog logger.
type LogConfig struct {
	Level      string `koanf:"level"`       // debug, info, warn, error
	Format     string `koanf:"format"`      // json, text
	Output     string `koanf:"output"`      // stdout, stderr, file
	FilePath   string `koanf:"file_path"`   // path to the log file
	MaxSize    int    `koanf:"max_size"`    // MB
	MaxBackups int    `koanf:"max_backups"` // number of rotated backups
	MaxAge     int    `koanf:"max_age"`     // days
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// CacheConfig configures the provider content caches, the address book, and
// the province-capital cache.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // redis, memory
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"` // in-memory backend only
}

// Address returns the cache server address.
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig configures the ingress HTTP rate limiter (distinct from
// the per-provider-endpoint limiters configured under Here/Municipality).
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Requests        int           `koanf:"requests"`
	Window          time.Duration `koanf:"window"`
	Strategy        string        `koanf:"strategy"`
	Backend         string        `koanf:"backend"`
	BurstSize       int           `koanf:"burst_size"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	RedisAddr       string        `koanf:"redis_addr"`
}

// AuditConfig configures the orchestrator-level audit trail.
type AuditConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Backend     string        `koanf:"backend"` // stdout, file
	FilePath    string        `koanf:"file_path"`
	BufferSize  int           `koanf:"buffer_size"`
	FlushPeriod time.Duration `koanf:"flush_period"`
}

// HereConfig configures the TrafficWeatherProvider capability: the
// live HERE-platform-style client and the deterministic emulator variant.
type HereConfig struct {
	Enabled              bool          `koanf:"enabled"`                // use_here_platform
	DataSource           string        `koanf:"data_source"`            // "here" or "emulator"
	PipelineMode         string        `koanf:"pipeline_mode"`          // "postprocessing" or "before_vrp"
	EmulatorSeed         string        `koanf:"emulator_seed"`          // here_emulator_seed
	TimeoutSec           int           `koanf:"timeout_sec"`            // here_timeout_sec
	TrafficRadiusM       int           `koanf:"traffic_radius_m"`       // here_traffic_radius_m
	ForecastWindowHours  int           `koanf:"forecast_window_hours"`  // here_forecast_window_hours
	ForecastIntervalMin  int           `koanf:"forecast_interval_min"`  // here_forecast_interval_min
	WeatherBaseURL       string        `koanf:"weather_base_url"`
	TrafficFlowBaseURL   string        `koanf:"traffic_flow_base_url"`
	TrafficIncidentURL   string        `koanf:"traffic_incident_base_url"`
	RouterBaseURL        string        `koanf:"router_base_url"`
	APIKeyEnvVar         string        `koanf:"api_key_env_var"` // HERE_API_KEY
	MaxRetries           int           `koanf:"max_retries"`
	RetryJitterMinMs     int           `koanf:"retry_jitter_min_ms"`
	RetryJitterMaxMs     int           `koanf:"retry_jitter_max_ms"`
	CircuitFailThreshold uint32        `koanf:"circuit_fail_threshold"`
	CircuitResetTimeout  time.Duration `koanf:"circuit_reset_timeout"`
}

// MunicipalityConfig configures the two-phase municipality resolver.
type MunicipalityConfig struct {
	Enabled                  bool    `koanf:"enabled"`                      // municipality_enrichment_enabled
	StepKM                   float64 `koanf:"step_km"`                      // municipality_step_km
	RadiusKM                 float64 `koanf:"radius_km"`                    // municipality_radius_km
	MaxSamplesPerSegment     int     `koanf:"max_samples_per_segment"`      // municipality_max_samples_per_segment
	ReverseMinIntervalMs     int     `koanf:"reverse_min_interval_ms"`      // municipality_reverse_min_interval_ms
	UseRouteGeometry         bool    `koanf:"use_route_geometry"`           // municipality_use_route_geometry
	ProvinceCapitalLookup    bool    `koanf:"province_capital_lookup"`      // province_capital_lookup_enabled
	ReverseGeocodeBaseURL    string  `koanf:"reverse_geocode_base_url"`
	AreaQueryBaseURL         string  `koanf:"area_query_base_url"`
	OnRoadGeometryBaseURL    string  `koanf:"on_road_geometry_base_url"`
}

// SemanticConfig configures the POI relevance scorer.
type SemanticConfig struct {
	CorridorRadiusKM float64  `koanf:"corridor_radius_km"` // semantic_corridor_radius_km
	TopK             int      `koanf:"top_k"`              // semantic_top_k
	Categories       []string `koanf:"categories"`         // semantic_categories
	ProximityWeight  float64  `koanf:"proximity_weight"`   // semantic_proximity_weight
	CategoryWeight   float64  `koanf:"category_weight"`    // semantic_category_weight
}

// OrchestratorConfig configures pipeline-wide concurrency and cancellation.
type OrchestratorConfig struct {
	DefaultPipelineMode string        `koanf:"default_pipeline_mode"` // postprocess_after_solve, prefetch_before_solve
	WorkerPoolSize      int           `koanf:"worker_pool_size"`      // not read; the orchestrator always bounds fan-out at min(8, 2*NumCPU)
	RequestDeadlineSec  int           `koanf:"request_deadline_sec"`  // request_deadline_sec
	CallTimeoutSec      int           `koanf:"call_timeout_sec"`
	MinIntervalJitter   time.Duration `koanf:"min_interval_jitter"`
}

// SolverConfig configures the in-process nearest-neighbor VRP solver.
type SolverConfig struct {
	DefaultDistanceMode string  `koanf:"default_distance_mode"` // direct, osrm
	OSRMBaseURL         string  `koanf:"osrm_base_url"`
	DefaultAvgSpeedKMH  float64 `koanf:"default_avg_speed_kmh"`
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	validDataSources := map[string]bool{"here": true, "emulator": true}
	if c.Here.DataSource != "" && !validDataSources[c.Here.DataSource] {
		errs = append(errs, fmt.Sprintf("here.data_source must be one of: here, emulator, got %s", c.Here.DataSource))
	}

	validPipelineModes := map[string]bool{"postprocessing": true, "before_vrp": true}
	if c.Here.PipelineMode != "" && !validPipelineModes[c.Here.PipelineMode] {
		c.Here.PipelineMode = "postprocessing"
	}

	if c.Municipality.StepKM < 0 {
		errs = append(errs, "municipality.step_km must be non-negative")
	}

	if c.Semantic.TopK < 0 {
		errs = append(errs, "semantic.top_k must be non-negative")
	}

	validDistanceModes := map[string]bool{"direct": true, "osrm": true}
	if c.Solver.DefaultDistanceMode != "" && !validDistanceModes[c.Solver.DefaultDistanceMode] {
		errs = append(errs, fmt.Sprintf("solver.default_distance_mode must be one of: direct, osrm, got %s", c.Solver.DefaultDistanceMode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment reports whether the service runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction reports whether the service runs in a production environment.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
