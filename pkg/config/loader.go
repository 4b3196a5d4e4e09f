// pkg/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "ENRICH_"
	configEnvVar = "CONFIG_PATH"
)

// Loader loads configuration from layered sources: defaults, an optional
// YAML file, then environment variables (highest priority).
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"config.yaml",
			"config/config.yaml",
			"/etc/enrichment/config.yaml",
		},
		envPrefix: envPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConfigPaths sets the list of paths searched for a config file.
func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.configPaths = paths
	}
}

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// Load loads configuration with priority:
// 1. Defaults (lowest)
// 2. Config file (yaml)
// 3. Environment variables (highest)
func (l *Loader) Load() (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional; log a warning and continue.
		fmt.Printf("Warning: %v\n", err)
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDefaults loads the built-in default values.
func (l *Loader) loadDefaults() error {
	defaults := map[string]any{
		// App
		"app.name":        "enrichment-svc",
		"app.version":     "1.0.0",
		"app.environment": "development",
		"app.debug":       false,

		// HTTP
		"http.port":                   8080,
		"http.read_timeout":           30 * time.Second,
		"http.write_timeout":          65 * time.Second,
		"http.shutdown_timeout":       10 * time.Second,
		"http.cors.enabled":           true,
		"http.cors.allowed_origins":   []string{"*"},
		"http.cors.allowed_methods":   []string{"GET", "POST", "OPTIONS"},
		"http.cors.allowed_headers":   []string{"*"},
		"http.cors.exposed_headers":   []string{},
		"http.cors.allow_credentials": false,
		"http.cors.max_age":           86400,

		// Log
		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     7,
		"log.compress":    true,

		// Metrics
		"metrics.enabled":   true,
		"metrics.port":      9090,
		"metrics.path":      "/metrics",
		"metrics.namespace": "enrichment",
		"metrics.subsystem": "",

		// Tracing
		"tracing.enabled":      false,
		"tracing.endpoint":     "localhost:4317",
		"tracing.service_name": "enrichment-svc",
		"tracing.sample_rate":  0.1,

		// Cache
		"cache.enabled":     false,
		"cache.driver":      "memory",
		"cache.host":        "localhost",
		"cache.port":        6379,
		"cache.db":          0,
		"cache.default_ttl": 1 * time.Hour,
		"cache.max_entries": 100000,

		// Rate limit (HTTP ingress)
		"rate_limit.enabled":          true,
		"rate_limit.requests":         120,
		"rate_limit.window":           time.Minute,
		"rate_limit.strategy":         "sliding_window",
		"rate_limit.backend":          "memory",
		"rate_limit.burst_size":       20,
		"rate_limit.cleanup_interval": 5 * time.Minute,

		// Audit
		"audit.enabled":      true,
		"audit.backend":      "stdout",
		"audit.buffer_size":  1000,
		"audit.flush_period": 5 * time.Second,

		// Here / TrafficWeatherProvider
		"here.enabled":                    true,
		"here.data_source":                "here",
		"here.pipeline_mode":              "postprocessing",
		"here.emulator_seed":              "here-emulator-v1",
		"here.timeout_sec":                12,
		"here.traffic_radius_m":           300,
		"here.forecast_window_hours":      24,
		"here.forecast_interval_min":      120,
		"here.weather_base_url":           "https://weather.hereapi.com/v3/report",
		"here.traffic_flow_base_url":      "https://data.traffic.hereapi.com/v7/flow",
		"here.traffic_incident_base_url":  "https://data.traffic.hereapi.com/v7/incidents",
		"here.router_base_url":            "https://router.hereapi.com/v8/routes",
		"here.api_key_env_var":            "HERE_API_KEY",
		"here.max_retries":                2,
		"here.retry_jitter_min_ms":        150,
		"here.retry_jitter_max_ms":        350,
		"here.circuit_fail_threshold":     5,
		"here.circuit_reset_timeout":      30 * time.Second,

		// Municipality resolver
		"municipality.enabled":                     false,
		"municipality.step_km":                     20.0,
		"municipality.radius_km":                   5.0,
		"municipality.max_samples_per_segment":      12,
		"municipality.reverse_min_interval_ms":      1100,
		"municipality.use_route_geometry":           true,
		"municipality.province_capital_lookup":      true,
		"municipality.reverse_geocode_base_url":     "https://nominatim.openstreetmap.org/reverse",
		"municipality.area_query_base_url":          "https://overpass-api.de/api/interpreter",
		"municipality.on_road_geometry_base_url":    "https://router.project-osrm.org/route/v1/driving",

		// Semantic / POI scorer
		"semantic.corridor_radius_km": 1.2,
		"semantic.top_k":              8,
		"semantic.categories":         []string{},
		"semantic.proximity_weight":   0.65,
		"semantic.category_weight":    0.35,

		// Orchestrator
		"orchestrator.default_pipeline_mode": "postprocess_after_solve",
		"orchestrator.worker_pool_size":      0, // 0 means min(8, 2*NumCPU)
		"orchestrator.request_deadline_sec":  60,
		"orchestrator.call_timeout_sec":      12,
		"orchestrator.min_interval_jitter":   50 * time.Millisecond,

		// Solver
		"solver.default_distance_mode":  "direct",
		"solver.osrm_base_url":          "https://router.project-osrm.org",
		"solver.default_avg_speed_kmh":  40.0,
	}

	return l.k.Load(confmap.Provider(defaults, "."), nil)
}

// loadConfigFile loads configuration from a YAML file, if one can be found.
func (l *Loader) loadConfigFile() error {
	if configPath := os.Getenv(configEnvVar); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return l.k.Load(file.Provider(configPath), yaml.Parser())
		}
	}

	for _, path := range l.configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			return l.k.Load(file.Provider(absPath), yaml.Parser())
		}
	}

	return fmt.Errorf("config file not found in paths: %v", l.configPaths)
}

// loadEnv loads configuration overrides from environment variables.
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		// ENRICH_LOG_LEVEL -> log.level. Every underscore becomes a dot, so
		// keys that contain an underscore themselves (here.timeout_sec)
		// cannot be set from the environment.
		return strings.ReplaceAll(
			strings.ToLower(
				strings.TrimPrefix(s, l.envPrefix),
			),
			"_", ".",
		)
	}), nil)
}

// MustLoad loads configuration or panics.
func MustLoad(opts ...LoaderOption) *Config {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Load is a convenience function that loads configuration with default options.
func Load() (*Config, error) {
	return NewLoader().Load()
}

// LoadWithServiceDefaults loads configuration, overriding the service name
// and HTTP port when they were left at their defaults.
func LoadWithServiceDefaults(serviceName string, defaultPort int) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if cfg.HTTP.Port == 8080 && defaultPort != 0 {
		cfg.HTTP.Port = defaultPort
	}

	if cfg.App.Name == "enrichment-svc" {
		cfg.App.Name = serviceName
	}

	return cfg, nil
}
