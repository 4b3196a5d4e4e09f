package enrichment

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"enrichment-svc/pkg/apperror"
	"enrichment-svc/pkg/municipality"
	"enrichment-svc/pkg/poi"
	"enrichment-svc/pkg/provider"
	"enrichment-svc/pkg/segment"
	"enrichment-svc/pkg/solver"
	"enrichment-svc/pkg/timeutil"
	"enrichment-svc/vrp"
)

const semanticLayerVersion = "1"

// Orchestrator wires the solver and every enrichment concern (provider,
// geocode, municipality, poi, segment) into the /solve_vrp and
// /enrich_municipality pipelines, keeping the routing result intact no
// matter what fails downstream of it.
type Orchestrator struct {
	deps Dependencies
}

// New builds an Orchestrator. deps.Now defaults to time.Now.
func New(deps Dependencies) *Orchestrator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{deps: deps}
}

func workerLimit() int {
	limit := 2 * runtime.NumCPU()
	if limit > 8 {
		limit = 8
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

func validate(req Request) error {
	if !req.Depot.Coord().Valid() {
		return apperror.NewWithField(apperror.CodeBadRequest, "depot coordinate out of range", "depot")
	}
	if len(req.Customers) == 0 {
		return apperror.NewWithField(apperror.CodeBadRequest, "at least one customer is required", "customers")
	}
	if req.Vehicles <= 0 {
		return apperror.NewWithField(apperror.CodeBadRequest, "vehicles must be positive", "vehicles")
	}
	if req.Capacity <= 0 {
		return apperror.NewWithField(apperror.CodeBadRequest, "capacity must be positive", "capacity")
	}
	for _, c := range req.Customers {
		coord := c.Coord()
		if !coord.Valid() {
			return apperror.NewWithField(apperror.CodeBadRequest, fmt.Sprintf("customer %q has an invalid coordinate", c.ID), "customers")
		}
		if c.Demand > req.Capacity {
			return apperror.NewWithField(apperror.CodeBadRequest, fmt.Sprintf("customer %q demand exceeds vehicle capacity", c.ID), "customers")
		}
	}
	return nil
}

// Solve runs the full /solve_vrp pipeline: validate, solve, then (unless
// the caller opted out) attach the semantic layer. Routing success is
// reported independently of semantic layer success.
func (o *Orchestrator) Solve(ctx context.Context, req Request) (*Response, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	eff := resolve(req)

	deadline := time.Duration(eff.RequestDeadlineSec) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	mode := resolvePipelineMode(eff.HerePipelineMode)
	prefetched := false
	var prefetchSummary map[string]any
	if mode == ModePrefetchBeforeSolve && eff.UseHerePlatform && o.deps.HereClientFactory != nil {
		if client := o.deps.HereClientFactory(req); client != nil {
			req, prefetchSummary = o.prefetchBeforeSolve(runCtx, req, client, parseDepartureTime(req))
			prefetched = true
		}
	}

	solveResult, err := o.deps.Solver.Solve(runCtx, solver.Request{
		Depot:           req.Depot.Coord(),
		Customers:       req.Customers,
		VehicleCount:    req.Vehicles,
		VehicleCapacity: req.Capacity,
		DistanceMode:    solver.DistanceMode(eff.DistanceMode),
	})
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeProviderTransient, "routing solver failed")
	}

	resp := &Response{
		Routes:              solveResult.Routes,
		UnservedCustomerIDs: solveResult.UnservedCustomerIDs,
		Warnings:            solveResult.Warnings,
		Summary:             buildSummary(req, eff, solveResult),
	}
	resp.HerePrefetch = o.herePrefetchStatus(req, eff)
	for k, v := range prefetchSummary {
		resp.HerePrefetch[k] = v
	}

	if !eff.IncludeSemanticLayer {
		return resp, nil
	}

	layer, layerErr := o.safeRunSemanticLayer(runCtx, req, eff, solveResult.Routes, prefetched)
	if layerErr != nil {
		resp.SemanticLayerError = layerErr.Error()
		return resp, nil
	}
	resp.SemanticLayer = layer
	return resp, nil
}

// parseDepartureTime resolves the request's departure_time_utc field,
// returning nil when absent or unparseable.
func parseDepartureTime(req Request) *time.Time {
	if req.DepartureTimeUTC == "" {
		return nil
	}
	if t, ok := timeutil.ParseUTC(req.DepartureTimeUTC); ok {
		return &t
	}
	return nil
}

// prefetchBeforeSolve implements the prefetch_before_solve pipeline mode:
// for every input point (depot + every customer), fetch realtime
// weather and traffic-status, and a traffic forecast from the depot to
// each customer at the departure time, attaching the realtime readings
// to the caller-supplied observation arrays before the solver ever runs.
// The returned summary is merged into the response's here_prefetch block;
// the caller is expected to skip per-segment provider calls afterward
// since this pass already holds the data.
func (o *Orchestrator) prefetchBeforeSolve(ctx context.Context, req Request, client provider.TrafficWeatherProvider, departureTime *time.Time) (Request, map[string]any) {
	refTime := o.deps.Now()
	if departureTime != nil {
		refTime = *departureTime
	}

	points := make([]vrp.Stop, 0, len(req.Customers)+1)
	points = append(points, req.Depot)
	points = append(points, req.Customers...)

	var weatherQueries, trafficQueries, forecastQueries, errorCount int
	for _, p := range points {
		coord := p.Coord()
		if w, err := client.FetchWeather(ctx, coord, refTime); err == nil {
			req.WeatherObservations = append(req.WeatherObservations, w.Realtime)
			weatherQueries++
		} else {
			errorCount++
		}
		if t, err := client.FetchTrafficStatus(ctx, coord); err == nil {
			req.TrafficObservations = append(req.TrafficObservations, t)
			trafficQueries++
		} else {
			errorCount++
		}
	}

	for _, c := range req.Customers {
		if _, err := client.FetchTrafficForecast(ctx, req.Depot.Coord(), c.Coord(), refTime); err == nil {
			forecastQueries++
		} else {
			errorCount++
		}
	}

	summary := map[string]any{
		"mode":             "prefetch_before_solve",
		"weather_queries":  weatherQueries,
		"traffic_queries":  trafficQueries,
		"forecast_queries": forecastQueries,
		"errors":           errorCount,
	}
	return req, summary
}

func buildSummary(req Request, eff EffectiveConfig, result solver.Result) Summary {
	total := 0.0
	for _, r := range result.Routes {
		total += r.DistanceKM
	}
	source := eff.DistanceMode
	for _, w := range result.Warnings {
		if w == "using direct distances" {
			source = "direct_fallback"
		}
	}
	return Summary{
		Vehicles:        req.Vehicles,
		Customers:       len(req.Customers),
		Served:          len(req.Customers) - len(result.UnservedCustomerIDs),
		Unserved:        len(result.UnservedCustomerIDs),
		TotalDistanceKM: total,
		DistanceSource:  source,
	}
}

// herePrefetchStatus reports whether the HERE platform client is usable
// for this request, independent of whether the semantic layer itself
// succeeds. A missing API key degrades to a disabled status rather than
// failing the request, and a panicking client factory is reported as a
// failed status.
func (o *Orchestrator) herePrefetchStatus(req Request, eff EffectiveConfig) (status map[string]any) {
	if !eff.UseHerePlatform {
		return map[string]any{"status": "disabled", "reason": "use_here_platform=false"}
	}
	if o.deps.HereClientFactory == nil {
		return map[string]any{"status": "disabled", "error": "no provider configured"}
	}
	defer func() {
		if r := recover(); r != nil {
			status = map[string]any{"status": "failed", "error": fmt.Sprintf("provider client construction failed: %v", r)}
		}
	}()
	client := o.deps.HereClientFactory(req)
	if client == nil {
		return map[string]any{"status": "disabled", "error": "API key not set"}
	}
	stats := client.Stats()
	return map[string]any{"status": "ok", "data_source": eff.HereDataSource, "emulated": stats.Emulated}
}

func (o *Orchestrator) safeRunSemanticLayer(ctx context.Context, req Request, eff EffectiveConfig, routes []vrp.Route, skipProviderFanout bool) (layer *SemanticLayer, err error) {
	defer func() {
		if r := recover(); r != nil {
			layer = nil
			err = fmt.Errorf("semantic layer assembly failed: %v", r)
		}
	}()
	result, runErr := o.runSemanticLayer(ctx, req, eff, routes, skipProviderFanout)
	return result, runErr
}

// errorSink collects enrichment error strings under a lock, truncated to
// 40 entries as the response contract requires.
type errorSink struct {
	mu     sync.Mutex
	errors []string
}

func (s *errorSink) add(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errors) >= 40 {
		return
	}
	s.errors = append(s.errors, fmt.Sprintf(format, args...))
}

func (s *errorSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.errors))
	copy(out, s.errors)
	return out
}

func (o *Orchestrator) runSemanticLayer(ctx context.Context, req Request, eff EffectiveConfig, routes []vrp.Route, skipProviderFanout bool) (*SemanticLayer, error) {
	sink := &errorSink{}
	generatedAt := timeutil.ToISOZ(o.deps.Now())

	// prefetch_before_solve already populated req.WeatherObservations /
	// req.TrafficObservations for every point; segment matching reuses
	// those caller-supplied arrays instead of calling the provider again.
	var client provider.TrafficWeatherProvider
	if !skipProviderFanout && eff.UseHerePlatform && o.deps.HereClientFactory != nil {
		client = o.deps.HereClientFactory(req)
	}

	departureTime := parseDepartureTime(req)

	resolver := o.deps.MunicipalityResolver
	if resolver != nil {
		resolver = resolver.WithConfig(MunicipalityConfig(req))
	}
	var stats municipality.Stats
	var statsMu sync.Mutex
	var phase1Points []municipalityPhase1Point

	if eff.MunicipalityEnabled && resolver != nil {
		report := resolver.ResolvePoint(ctx, req.Depot.Coord(), "depot", &stats)
		phase1Points = append(phase1Points, toPhase1Point(report))
		for _, c := range req.Customers {
			report := resolver.ResolvePoint(ctx, c.Coord(), "customer", &stats)
			phase1Points = append(phase1Points, toPhase1Point(report))
		}
	}

	routeContexts := make([]RouteSemanticContext, len(routes))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workerLimit())

	for i, route := range routes {
		i, route := i, route
		group.Go(func() error {
			rc := o.buildRouteContext(gctx, req, eff, route, client, departureTime, resolver, &stats, &statsMu, sink)
			routeContexts[i] = rc
			return nil
		})
	}
	_ = group.Wait()

	status := StatusOK
	if ctx.Err() != nil {
		status = StatusPartial
		sink.add("deadline_exceeded")
	} else if len(sink.snapshot()) > 0 {
		status = StatusPartial
	}

	summary := map[string]any{
		"routes_enriched": len(routeContexts),
	}
	if client != nil {
		summary["here_client_stats"] = client.Stats()
	}

	layer := &SemanticLayer{
		Version:        semanticLayerVersion,
		GeneratedAtUTC: generatedAt,
		Status:         status,
		Config:         eff,
		Summary:        summary,
		Errors:                       sink.snapshot(),
		MunicipalityPostOutputNotice: "none",
		Routes:                       routeContexts,
	}

	if eff.MunicipalityEnabled && resolver != nil {
		statsMu.Lock()
		snapshotStats := stats
		statsMu.Unlock()

		layer.MunicipalityAddressBook = resolver.AddressBook()
		layer.MunicipalityPhase1Points = phase1Points
		layer.MunicipalityPostOutputNotice = municipality.PostOutputNotice(snapshotStats)
		layer.MunicipalityAPI = MunicipalityAPI{
			Status: "ok",
			Phase1: map[string]any{
				"resolved": snapshotStats.Phase1Resolved,
				"unknown":  snapshotStats.Phase1Unknown,
				"failed":   snapshotStats.Phase1Failed,
			},
			Phase2: map[string]any{
				"segments_traced": snapshotStats.Phase2SegmentsTraced,
			},
			LookupStats: map[string]any{
				"fallback_to_straight": snapshotStats.FallbackToStraight,
			},
			RouteGeometry: map[string]any{
				"fallback_to_straight": snapshotStats.FallbackToStraight,
			},
		}
	} else {
		layer.MunicipalityAPI = MunicipalityAPI{Status: "disabled"}
	}

	return layer, nil
}

func toPhase1Point(r municipality.PointReport) municipalityPhase1Point {
	return municipalityPhase1Point{
		CoordKey:         r.CoordKey,
		Role:             r.Role,
		Status:           string(r.Status),
		MunicipalityName: r.MunicipalityName,
		ProvinceName:     r.ProvinceName,
		CountryCode:      r.CountryCode,
	}
}

// buildRouteContext runs the per-segment state machine for one route:
// build segments, attach caller observations then provider data, trace
// municipalities, score POI candidates. Each step is isolated: a failure
// downgrades that piece instead of aborting the whole route.
func (o *Orchestrator) buildRouteContext(ctx context.Context, req Request, eff EffectiveConfig, route vrp.Route, client provider.TrafficWeatherProvider, departureTime *time.Time, resolver *municipality.Resolver, stats *municipality.Stats, statsMu *sync.Mutex, sink *errorSink) RouteSemanticContext {
	segments := segment.Build(route.Stops, eff.RouteAvgSpeedKMH, departureTime)
	callerObs := segment.MatchCallerObservations(segments, append(append([]vrp.Observation{}, req.WeatherObservations...), req.TrafficObservations...))

	now := o.deps.Now()
	segmentCtx := make([]SegmentContext, len(segments))
	var segGroup errgroup.Group
	segGroup.SetLimit(workerLimit())

	municipalitySegments := make([]municipality.SegmentResult, len(segments))

	for i, seg := range segments {
		i, seg := i, seg
		segGroup.Go(func() error {
			if ctx.Err() != nil {
				sink.add("route %d segment %d: %s", route.VehicleID, seg.SegmentIndex, ctx.Err())
				segmentCtx[i] = SegmentContext{Segment: seg}
				return nil
			}

			enrichment := segment.AttachProvider(ctx, client, seg, callerObs[seg.SegmentIndex], departureTime, now)
			sc := SegmentContext{
				Segment:  seg,
				Weather:  enrichment.Weather,
				Traffic:  enrichment.Traffic,
				Forecast: enrichment.Forecast,
			}

			if eff.MunicipalityEnabled && resolver != nil {
				statsMu.Lock()
				result := resolver.ResolveSegment(ctx, seg.SegmentIndex, seg.Start, seg.End, eff.DistanceMode == "osrm", stats)
				statsMu.Unlock()
				municipalitySegments[i] = result
				sc.MunicipalityTrace = result.MunicipalityTrace
				sc.MunicipalityNames = result.Vector.MunicipalityNames
				sc.ProvinceNames = result.Vector.ProvinceNames
				sc.ProvinceCapitalNames = result.Vector.ProvinceCapitalNames
			}

			segmentCtx[i] = sc
			return nil
		})
	}
	_ = segGroup.Wait()

	rc := RouteSemanticContext{
		VehicleID:      route.VehicleID,
		SegmentContext: segmentCtx,
	}

	if eff.MunicipalityEnabled && resolver != nil {
		vector := municipality.RouteVector(municipalitySegments)
		rc.MunicipalityVector = vector.MunicipalityNames
		rc.ProvinceVector = vector.ProvinceNames
		rc.ProvinceCapitalVector = vector.ProvinceCapitalNames
		rc.StopMunicipalityLinks = stopMunicipalityLinks(route, municipalitySegments)
	}

	if len(req.CandidateLocations) > 0 {
		stops := make([]vrp.Coordinate, len(route.Stops))
		for i, s := range route.Stops {
			stops[i] = s.Coord()
		}
		rc.SemanticLocations = poi.TopK(poiConfig(eff), req.CandidateLocations, stops)
	}

	return rc
}

// stopMunicipalityLinks maps each stop id to the municipality trace name
// of the segment starting at it, skipping the closing depot stop.
func stopMunicipalityLinks(route vrp.Route, segments []municipality.SegmentResult) []string {
	links := make([]string, 0, len(segments))
	for i, s := range segments {
		if i >= len(route.Stops) {
			break
		}
		name := ""
		if len(s.MunicipalityTrace) > 0 {
			name = s.MunicipalityTrace[0]
		}
		links = append(links, route.Stops[i].ID+":"+name)
	}
	return links
}

