package enrichment

import (
	"strings"

	"enrichment-svc/pkg/municipality"
	"enrichment-svc/pkg/poi"
	"enrichment-svc/pkg/provider"
	"enrichment-svc/pkg/solver"
)

// resolve fills every optional Request field with its documented
// default and returns the EffectiveConfig echoed in the response.
func resolve(req Request) EffectiveConfig {
	cfg := EffectiveConfig{
		DistanceMode:             strings.ToLower(req.DistanceMode),
		IncludeSemanticLayer:     true,
		RouteAvgSpeedKMH:         req.RouteAvgSpeedKMH,
		SemanticCorridorRadiusKM: req.SemanticCorridorRadiusKM,
		SemanticTopK:             req.SemanticTopK,
		SemanticCategories:       req.SemanticCategories,
		SemanticProximityWeight:  req.SemanticProximityWeight,
		SemanticCategoryWeight:   req.SemanticCategoryWeight,
		UseHerePlatform:          true,
		HereDataSource:           req.HereDataSource,
		HerePipelineMode:         req.HerePipelineMode,
		MunicipalityEnabled:      false,
		ProvinceCapitalLookup:    true,
		RequestDeadlineSec:       req.RequestDeadlineSec,
	}

	if cfg.DistanceMode != string(solver.DistanceOSRM) {
		cfg.DistanceMode = string(solver.DistanceDirect)
	}
	if req.IncludeSemanticLayer != nil {
		cfg.IncludeSemanticLayer = *req.IncludeSemanticLayer
	}
	if cfg.RouteAvgSpeedKMH <= 0 {
		cfg.RouteAvgSpeedKMH = 40.0
	}
	if cfg.SemanticCorridorRadiusKM <= 0 {
		cfg.SemanticCorridorRadiusKM = 1.2
	}
	if cfg.SemanticTopK <= 0 {
		cfg.SemanticTopK = 8
	}
	if cfg.SemanticProximityWeight == 0 && cfg.SemanticCategoryWeight == 0 {
		cfg.SemanticProximityWeight = 0.65
		cfg.SemanticCategoryWeight = 0.35
	}
	if req.UseHerePlatform != nil {
		cfg.UseHerePlatform = *req.UseHerePlatform
	}
	if cfg.HereDataSource != "here" && cfg.HereDataSource != "emulator" {
		cfg.HereDataSource = "here"
	}
	if cfg.HerePipelineMode != "postprocessing" && cfg.HerePipelineMode != "before_vrp" {
		cfg.HerePipelineMode = "postprocessing"
	}
	if req.MunicipalityEnrichmentEnabled != nil {
		cfg.MunicipalityEnabled = *req.MunicipalityEnrichmentEnabled
	}
	if req.ProvinceCapitalLookupEnabled != nil {
		cfg.ProvinceCapitalLookup = *req.ProvinceCapitalLookupEnabled
	}
	if cfg.RequestDeadlineSec <= 0 {
		cfg.RequestDeadlineSec = 60
	}

	return cfg
}

// ProviderConfig maps a request's here_* fields onto a provider.Config,
// for the service layer to use when building a per-request live/emulator
// client via Dependencies.HereClientFactory.
func ProviderConfig(req Request) provider.Config {
	return provider.NewConfig(provider.Config{
		TimeoutSec:          req.HereTimeoutSec,
		TrafficRadiusM:      req.HereTrafficRadiusM,
		ForecastWindowHours: req.HereForecastWindowHrs,
		ForecastIntervalMin: req.HereForecastIntervalM,
		EmulatorSeed:        req.HereEmulatorSeed,
	})
}

// MunicipalityConfig maps a request's municipality_* fields onto a
// municipality.Config, layered over DefaultConfig.
func MunicipalityConfig(req Request) municipality.Config {
	cfg := municipality.DefaultConfig()
	if req.MunicipalityStepKM > 0 {
		cfg.StepKM = req.MunicipalityStepKM
	}
	if req.MunicipalityMaxSamplesPerSegment > 0 {
		cfg.MaxSamplesPerSegment = req.MunicipalityMaxSamplesPerSegment
	}
	if req.MunicipalityUseRouteGeometry != nil {
		cfg.UseRouteGeometry = *req.MunicipalityUseRouteGeometry
	}
	if req.ProvinceCapitalLookupEnabled != nil {
		cfg.ProvinceCapitalLookup = *req.ProvinceCapitalLookupEnabled
	}
	return cfg
}

func poiConfig(eff EffectiveConfig) poi.Config {
	return poi.Config{
		RadiusKM:            eff.SemanticCorridorRadiusKM,
		ProximityWeight:     eff.SemanticProximityWeight,
		CategoryWeight:      eff.SemanticCategoryWeight,
		TopK:                eff.SemanticTopK,
		RequestedCategories: eff.SemanticCategories,
	}
}
