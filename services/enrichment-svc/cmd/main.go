// Package main is the entry point for enrichment-svc.
//
// enrichment-svc exposes the route enrichment pipeline over a plain JSON
// HTTP API: POST /solve_vrp runs the in-process nearest-neighbor solver
// and attaches the semantic layer (weather, traffic, municipality,
// points of interest) to the resulting routes; POST /enrich_municipality
// re-runs just the municipality pass against an existing /solve_vrp
// result and merges the two.
//
// Configuration is loaded with the following priority (highest to
// lowest): environment variables (prefix ENRICH_), config.yaml in one of
// the standard locations, then the built-in defaults in
// pkg/config/loader.go.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"enrichment-svc/pkg/audit"
	"enrichment-svc/pkg/cache"
	"enrichment-svc/pkg/config"
	"enrichment-svc/pkg/enrichment"
	"enrichment-svc/pkg/geocode"
	"enrichment-svc/pkg/logger"
	"enrichment-svc/pkg/metrics"
	"enrichment-svc/pkg/municipality"
	"enrichment-svc/pkg/provider"
	"enrichment-svc/pkg/ratelimit"
	"enrichment-svc/pkg/routing"
	"enrichment-svc/pkg/solver"
	"enrichment-svc/pkg/telemetry"
	"enrichment-svc/services/enrichment-svc/internal/httpapi"
)

const serviceName = "enrichment-svc"

func main() {
	cfg, err := config.LoadWithServiceDefaults(serviceName, 8080)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	ctx := context.Background()

	if cfg.Tracing.Enabled {
		tp, err := telemetry.Init(ctx, telemetry.Config{
			Enabled:     cfg.Tracing.Enabled,
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
			Environment: cfg.App.Environment,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			logger.Warn("failed to init telemetry", "error", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logger.Warn("failed to shutdown telemetry", "error", err)
				}
			}()
			logger.Info("telemetry initialized", "endpoint", cfg.Tracing.Endpoint)
		}
	}

	metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	metrics.Get().SetServiceInfo(cfg.App.Version, cfg.App.Environment)

	var observationCache *cache.ObservationCache
	if cfg.Cache.Enabled {
		baseCache, err := cache.New(cache.FromConfig(&cfg.Cache))
		if err != nil {
			logger.Warn("failed to create cache, continuing without provider caching", "error", err)
		} else {
			observationCache = cache.NewObservationCache(baseCache, cfg.Cache.DefaultTTL)
			logger.Info("provider observation cache initialized", "driver", cfg.Cache.Driver, "ttl", cfg.Cache.DefaultTTL)
		}
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.New(&ratelimit.Config{
			Requests:        cfg.RateLimit.Requests,
			Window:          cfg.RateLimit.Window,
			Strategy:        cfg.RateLimit.Strategy,
			Backend:         cfg.RateLimit.Backend,
			BurstSize:       cfg.RateLimit.BurstSize,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
			RedisAddr:       cfg.RateLimit.RedisAddr,
		})
		if err != nil {
			logger.Warn("failed to create rate limiter, continuing without ingress rate limiting", "error", err)
			limiter = nil
		}
	}

	if cfg.Audit.Enabled {
		auditLogger, err := audit.New(&audit.Config{
			Enabled:     cfg.Audit.Enabled,
			Backend:     cfg.Audit.Backend,
			FilePath:    cfg.Audit.FilePath,
			BufferSize:  cfg.Audit.BufferSize,
			FlushPeriod: cfg.Audit.FlushPeriod,
		})
		if err != nil {
			logger.Warn("failed to init audit logger, continuing without audit trail", "error", err)
		} else {
			audit.SetGlobal(auditLogger)
		}
	}

	osrmClient := routing.New(cfg.Solver.OSRMBaseURL, 10*time.Second)
	vrpSolver := solver.New(osrmClient)

	reverseEndpoints := []geocode.Endpoint{
		geocode.NewHTTPEndpoint("primary", cfg.Municipality.ReverseGeocodeBaseURL, 12*time.Second),
	}
	reverseGeocoder := geocode.NewReverseGeocoder(reverseEndpoints, time.Duration(cfg.Municipality.ReverseMinIntervalMs)*time.Millisecond)
	areaEndpoint := geocode.NewHTTPAreaEndpoint(cfg.Municipality.AreaQueryBaseURL, cfg.Municipality.ReverseGeocodeBaseURL, 12*time.Second)
	areaQuery := geocode.NewAreaQuery(areaEndpoint)
	municipalityResolver := municipality.NewResolver(municipality.DefaultConfig(), reverseGeocoder, areaQuery, osrmClient)

	hereAPIKeyEnvVar := cfg.Here.APIKeyEnvVar
	if hereAPIKeyEnvVar == "" {
		hereAPIKeyEnvVar = "HERE_API_KEY"
	}
	hereAPIKey := os.Getenv(hereAPIKeyEnvVar)

	hereClientFactory := func(req enrichment.Request) provider.TrafficWeatherProvider {
		dataSource := req.HereDataSource
		if dataSource != "here" && dataSource != "emulator" {
			dataSource = cfg.Here.DataSource
		}

		pcfg := enrichment.ProviderConfig(req)

		var base provider.TrafficWeatherProvider
		if dataSource == "here" && hereAPIKey != "" {
			base = provider.NewLive(hereAPIKey, pcfg)
		} else {
			base = provider.NewEmulator(pcfg)
		}

		if observationCache != nil {
			return provider.NewCachingProvider(base, observationCache)
		}
		return base
	}

	orchestrator := enrichment.New(enrichment.Dependencies{
		Solver:               vrpSolver,
		HereClientFactory:    hereClientFactory,
		MunicipalityResolver: municipalityResolver,
	})

	ready := httpapi.NewReadiness()
	handler := httpapi.NewHandler(orchestrator, ready)
	router := httpapi.NewRouter(handler, cfg.HTTP.CORS, limiter)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("starting enrichment service",
			"port", cfg.HTTP.Port,
			"environment", cfg.App.Environment,
			"version", cfg.App.Version,
			"here_data_source", cfg.Here.DataSource,
			"here_live_key_configured", hereAPIKey != "",
		)
		ready.MarkReady()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down enrichment service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	if limiter != nil {
		if err := limiter.Close(); err != nil {
			logger.Warn("failed to close rate limiter", "error", err)
		}
	}
	if auditLogger := audit.Get(); auditLogger != nil {
		if err := auditLogger.Close(); err != nil {
			logger.Warn("failed to close audit logger", "error", err)
		}
	}

	logger.Info("server stopped")
}
