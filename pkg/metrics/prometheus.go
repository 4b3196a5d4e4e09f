package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the global metrics container.
type Metrics struct {
	// HTTP metrics for the enrichment API
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Enrichment pipeline metrics
	EnrichmentRunsTotal     *prometheus.CounterVec
	EnrichmentDuration      *prometheus.HistogramVec
	EnrichmentSegmentsTotal *prometheus.HistogramVec
	EnrichmentPartialTotal  *prometheus.CounterVec

	// Provider metrics (traffic/weather)
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
	ProviderCacheTotal      *prometheus.CounterVec
	ProviderCircuitState    *prometheus.GaugeVec

	// Geocoding and municipality resolution metrics
	GeocodeRequestsTotal   *prometheus.CounterVec
	GeocodeRateLimitWait   prometheus.Histogram
	MunicipalityResolution *prometheus.CounterVec

	// POI metrics
	POICandidatesTotal *prometheus.HistogramVec
	POIReturnedTotal   *prometheus.HistogramVec

	// System metrics
	MemoryUsage *prometheus.GaugeVec
	Goroutines  prometheus.Gauge

	// Service info
	ServiceInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics registers and returns the global metrics set.
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"route"},
		),

		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		// Enrichment pipeline
		EnrichmentRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "enrichment_runs_total",
				Help:      "Total number of route enrichment runs",
			},
			[]string{"mode", "status"},
		),

		EnrichmentDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "enrichment_duration_seconds",
				Help:      "Duration of a full route enrichment run",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"mode"},
		),

		EnrichmentSegmentsTotal: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "enrichment_segments_total",
				Help:      "Number of route segments processed per run",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
			[]string{"mode"},
		),

		EnrichmentPartialTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "enrichment_partial_total",
				Help:      "Total number of runs that completed with partial results",
			},
			[]string{"reason"},
		),

		// Providers
		ProviderRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "provider_requests_total",
				Help:      "Total number of outbound provider requests",
			},
			[]string{"provider", "kind", "status"},
		),

		ProviderRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "provider_request_duration_seconds",
				Help:      "Duration of outbound provider requests",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"provider", "kind"},
		),

		ProviderCacheTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "provider_cache_total",
				Help:      "Total number of provider cache lookups",
			},
			[]string{"kind", "result"},
		),

		ProviderCircuitState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "provider_circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"provider"},
		),

		// Geocoding
		GeocodeRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "geocode_requests_total",
				Help:      "Total number of reverse geocoding requests",
			},
			[]string{"status"},
		),

		GeocodeRateLimitWait: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "geocode_rate_limit_wait_seconds",
				Help:      "Time spent waiting for the minimum reverse-geocode interval",
				Buckets:   []float64{0, .1, .25, .5, 1, 2, 5},
			},
		),

		MunicipalityResolution: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "municipality_resolution_total",
				Help:      "Total number of municipality resolutions by outcome",
			},
			[]string{"phase", "outcome"},
		),

		// POI
		POICandidatesTotal: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "poi_candidates_total",
				Help:      "Number of candidate points of interest considered per segment",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
			[]string{"category"},
		),

		POIReturnedTotal: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "poi_returned_total",
				Help:      "Number of points of interest returned per segment after scoring",
				Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
			},
			[]string{"category"},
		),

		// System metrics
		MemoryUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage",
			},
			[]string{"type"},
		),

		Goroutines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goroutines",
				Help:      "Current number of goroutines",
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics set, initializing it with defaults if needed.
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("enrichment", "")
	}
	return defaultMetrics
}

// RecordHTTPRequest records the outcome of one HTTP request.
func (m *Metrics) RecordHTTPRequest(route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordEnrichmentRun records the outcome of a completed enrichment run.
func (m *Metrics) RecordEnrichmentRun(mode string, success bool, duration time.Duration, segments int) {
	status := "success"
	if !success {
		status = "error"
	}

	m.EnrichmentRunsTotal.WithLabelValues(mode, status).Inc()
	m.EnrichmentDuration.WithLabelValues(mode).Observe(duration.Seconds())
	m.EnrichmentSegmentsTotal.WithLabelValues(mode).Observe(float64(segments))
}

// RecordPartialResult records an enrichment run that completed with partial results.
func (m *Metrics) RecordPartialResult(reason string) {
	m.EnrichmentPartialTotal.WithLabelValues(reason).Inc()
}

// RecordProviderRequest records an outbound call to an external provider.
func (m *Metrics) RecordProviderRequest(provider, kind, status string, duration time.Duration) {
	m.ProviderRequestsTotal.WithLabelValues(provider, kind, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, kind).Observe(duration.Seconds())
}

// RecordProviderCache records a provider cache lookup result.
func (m *Metrics) RecordProviderCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ProviderCacheTotal.WithLabelValues(kind, result).Inc()
}

// SetCircuitState sets a provider's current circuit breaker state.
func (m *Metrics) SetCircuitState(provider string, state int) {
	m.ProviderCircuitState.WithLabelValues(provider).Set(float64(state))
}

// RecordGeocodeRequest records the outcome of a reverse geocoding call.
func (m *Metrics) RecordGeocodeRequest(status string, waited time.Duration) {
	m.GeocodeRequestsTotal.WithLabelValues(status).Inc()
	m.GeocodeRateLimitWait.Observe(waited.Seconds())
}

// RecordMunicipalityResolution records the outcome of a municipality resolution.
func (m *Metrics) RecordMunicipalityResolution(phase, outcome string) {
	m.MunicipalityResolution.WithLabelValues(phase, outcome).Inc()
}

// RecordPOIScoring records the candidate and returned point-of-interest counts.
func (m *Metrics) RecordPOIScoring(category string, candidates, returned int) {
	m.POICandidatesTotal.WithLabelValues(category).Observe(float64(candidates))
	m.POIReturnedTotal.WithLabelValues(category).Observe(float64(returned))
}

// SetServiceInfo publishes the running service's version and environment.
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer runs a standalone HTTP server exposing /metrics.
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK")) //nolint:errcheck // health endpoint, write failure is not actionable
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
