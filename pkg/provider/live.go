package provider

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"enrichment-svc/pkg/logger"
	"enrichment-svc/pkg/timeutil"
	"enrichment-svc/vrp"
)

const (
	weatherEndpoint        = "https://weather.hereapi.com/v3/report"
	trafficFlowEndpoint    = "https://data.traffic.hereapi.com/v7/flow"
	trafficIncidentEndpoint = "https://data.traffic.hereapi.com/v7/incidents"
	routerEndpoint          = "https://router.hereapi.com/v8/routes"
)

// newTransport builds the pooled HTTP transport every live provider call
// shares, tuned for many short-lived outbound requests against the same
// handful of upstream hosts.
func newTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// Live is the HERE Platform HTTP client. It issues GET requests against
// the real HERE endpoints, retries transient I/O failures a bounded
// number of times with jitter, and trips a circuit breaker per endpoint
// after repeated consecutive failures.
type Live struct {
	apiKey string
	cfg    Config
	client *http.Client

	breakers map[string]*gobreaker.CircuitBreaker

	mu           sync.Mutex
	httpCache    map[string][]byte
	weatherCache map[string]WeatherResult
	trafficCache map[string]vrp.Observation
	routeCache   map[string]routeSummary
	stats        Stats
}

// NewLive builds a live HERE Platform client. apiKey must be non-empty;
// callers are expected to check for a missing key before constructing one.
func NewLive(apiKey string, cfg Config) *Live {
	cfg = NewConfig(cfg)
	l := &Live{
		apiKey: strings.TrimSpace(apiKey),
		cfg:    cfg,
		client: &http.Client{
			Timeout:   time.Duration(cfg.TimeoutSec) * time.Second,
			Transport: newTransport(),
		},
		breakers:     make(map[string]*gobreaker.CircuitBreaker),
		httpCache:    make(map[string][]byte),
		weatherCache: make(map[string]WeatherResult),
		trafficCache: make(map[string]vrp.Observation),
		routeCache:   make(map[string]routeSummary),
	}
	for _, ep := range []string{weatherEndpoint, trafficFlowEndpoint, trafficIncidentEndpoint, routerEndpoint} {
		l.breakers[ep] = newBreaker(ep)
	}
	return l
}

func newBreaker(endpoint string) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:    endpoint,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log.Warn("provider circuit breaker state change", "endpoint", name, "from", from.String(), "to", to.String())
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}

type routeSummary struct {
	durationSec     int
	baseDurationSec int
}

// getJSON fetches and caches url+params, retrying transient failures up
// to twice with 150-350ms jitter, and short-circuits through the
// endpoint's circuit breaker.
func (l *Live) getJSON(ctx context.Context, endpoint string, params url.Values, keyParam string) (map[string]any, error) {
	if keyParam != "" {
		params.Set(keyParam, l.apiKey)
	}
	fullURL := endpoint + "?" + params.Encode()

	l.mu.Lock()
	if cached, ok := l.httpCache[fullURL]; ok {
		l.stats.CacheHits++
		l.mu.Unlock()
		var payload map[string]any
		_ = json.Unmarshal(cached, &payload)
		return payload, nil
	}
	l.mu.Unlock()

	breaker := l.breakers[endpoint]
	result, err := breaker.Execute(func() (any, error) {
		return l.doGetWithRetry(ctx, fullURL)
	})
	if err != nil {
		l.statsIncr(func(s *Stats) { s.Errors++ })
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &ErrCircuitOpen{Endpoint: endpoint}
		}
		return nil, &ProviderError{Reason: err.Error(), Endpoint: endpoint}
	}

	body := result.([]byte)
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ProviderError{Reason: "invalid JSON: " + err.Error(), Endpoint: endpoint}
	}

	l.mu.Lock()
	l.httpCache[fullURL] = body
	l.stats.HTTPRequests++
	l.mu.Unlock()

	return payload, nil
}

func (l *Live) doGetWithRetry(ctx context.Context, fullURL string) ([]byte, error) {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			jitter := time.Duration(150+rand.Intn(200)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := l.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("upstream status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
		}
		return body, nil
	}
	return nil, lastErr
}

// FetchWeather issues weather.hereapi.com/v3/report and parses realtime
// + forecast entries defensively: every field is pulled from a
// prioritized list of candidate keys.
func (l *Live) FetchWeather(ctx context.Context, coord vrp.Coordinate, referenceTime time.Time) (WeatherResult, error) {
	if referenceTime.IsZero() {
		referenceTime = time.Now()
	}
	referenceTime = referenceTime.UTC()
	cacheKey := fmt.Sprintf("%.4f:%.4f:%s", coord.Lat, coord.Lng, toUTCHour(referenceTime).Format(time.RFC3339))

	l.mu.Lock()
	if cached, ok := l.weatherCache[cacheKey]; ok {
		l.stats.CacheHits++
		l.mu.Unlock()
		return cached, nil
	}
	l.mu.Unlock()

	params := url.Values{
		"products": {"observation,forecastHourly"},
		"location": {fmt.Sprintf("%.6f,%.6f", coord.Lat, coord.Lng)},
		"units":    {"metric"},
	}
	payload, err := l.getJSON(ctx, weatherEndpoint, params, "apiKey")
	if err != nil {
		return WeatherResult{}, err
	}
	l.statsIncr(func(s *Stats) { s.WeatherQueries++ })

	realtime := parseWeatherObservation(coord, payload)
	forecast := parseWeatherForecast(l.cfg, referenceTime, payload)

	result := WeatherResult{Realtime: realtime, Forecast24h: forecast}
	l.mu.Lock()
	l.weatherCache[cacheKey] = result
	l.mu.Unlock()
	return result, nil
}

// FetchTrafficStatus issues the flow and incidents endpoints and derives
// jam factor from speed/free-flow ratio if the payload did not supply
// one directly.
func (l *Live) FetchTrafficStatus(ctx context.Context, coord vrp.Coordinate) (vrp.Observation, error) {
	cacheKey := fmt.Sprintf("%.4f:%.4f:%d", coord.Lat, coord.Lng, l.cfg.TrafficRadiusM)

	l.mu.Lock()
	if cached, ok := l.trafficCache[cacheKey]; ok {
		l.stats.CacheHits++
		l.mu.Unlock()
		return cached, nil
	}
	l.mu.Unlock()

	inFilter := fmt.Sprintf("circle:%.6f,%.6f;r=%d", coord.Lat, coord.Lng, l.cfg.TrafficRadiusM)
	flowPayload, err := l.getJSON(ctx, trafficFlowEndpoint, url.Values{"in": {inFilter}, "locationReferencing": {"shape"}}, "apiKey")
	if err != nil {
		return vrp.Observation{}, err
	}
	incidentsPayload, err := l.getJSON(ctx, trafficIncidentEndpoint, url.Values{"in": {inFilter}, "locationReferencing": {"shape"}}, "apiKey")
	if err != nil {
		return vrp.Observation{}, err
	}
	l.statsIncr(func(s *Stats) { s.TrafficQueries++ })

	obs := parseTrafficStatus(coord, l.cfg.TrafficRadiusM, flowPayload, incidentsPayload)
	l.mu.Lock()
	l.trafficCache[cacheKey] = obs
	l.mu.Unlock()
	return obs, nil
}

// FetchTrafficForecast samples router.hereapi.com/v8/routes at each
// interval across the forecast window and reports the worst delay ratio.
func (l *Live) FetchTrafficForecast(ctx context.Context, origin, destination vrp.Coordinate, referenceTime time.Time) (vrp.ForecastWindow, error) {
	if referenceTime.IsZero() {
		referenceTime = time.Now()
	}
	reference := toUTCHour(referenceTime)

	var slots []vrp.ForecastSlot
	end := reference.Add(time.Duration(l.cfg.ForecastWindowHours) * time.Hour)
	for current := reference; !current.After(end); current = current.Add(time.Duration(l.cfg.ForecastIntervalMin) * time.Minute) {
		summary, err := l.fetchRouteSummary(ctx, origin, destination, current)
		if err != nil {
			continue
		}
		if summary == nil {
			continue
		}
		delaySec := summary.durationSec - summary.baseDurationSec
		if delaySec < 0 {
			delaySec = 0
		}
		ratio := round4(float64(summary.durationSec) / float64(summary.baseDurationSec))
		slots = append(slots, vrp.ForecastSlot{
			StartUTC:   timeutil.ToISOZ(current),
			DelayRatio: ratio,
			DelaySec:   float64(delaySec),
		})
	}

	return worstTrafficWindow(l.cfg, slots), nil
}

func (l *Live) fetchRouteSummary(ctx context.Context, origin, destination vrp.Coordinate, departure time.Time) (*routeSummary, error) {
	departure = departure.UTC().Truncate(time.Second)
	cacheKey := fmt.Sprintf("%.5f:%.5f:%.5f:%.5f:%s", origin.Lat, origin.Lng, destination.Lat, destination.Lng, departure.Format(time.RFC3339))

	l.mu.Lock()
	if cached, ok := l.routeCache[cacheKey]; ok {
		l.stats.CacheHits++
		l.mu.Unlock()
		return &cached, nil
	}
	l.mu.Unlock()

	params := url.Values{
		"transportMode": {"car"},
		"origin":        {fmt.Sprintf("%.6f,%.6f", origin.Lat, origin.Lng)},
		"destination":   {fmt.Sprintf("%.6f,%.6f", destination.Lat, destination.Lng)},
		"return":        {"summary"},
		"departureTime": {timeutil.ToISOZ(departure)},
		"apikey":        {l.apiKey},
	}
	payload, err := l.getJSON(ctx, routerEndpoint, params, "")
	if err != nil {
		return nil, err
	}
	l.statsIncr(func(s *Stats) { s.RoutingQueries++ })

	summary := extractRouteSummary(payload)
	if summary == nil {
		return nil, nil
	}

	l.mu.Lock()
	l.routeCache[cacheKey] = *summary
	l.mu.Unlock()
	return summary, nil
}

// Stats returns a snapshot of this client's call counters.
func (l *Live) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Live) statsIncr(fn func(*Stats)) {
	l.mu.Lock()
	fn(&l.stats)
	l.mu.Unlock()
}

// --- defensive JSON extraction, grounded on the original client's
// _nested_get/_pick_number/_pick_string/_first_path helpers ---

func nestedGet(m map[string]any, path string) any {
	var current any = m
	for _, token := range strings.Split(path, ".") {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = asMap[token]
	}
	return current
}

func extractScalar(candidate any) (float64, bool) {
	switch v := candidate.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case map[string]any:
		for _, key := range []string{"value", "amount", "metric", "kmh", "kph", "mps"} {
			if raw, ok := v[key]; ok {
				if f, ok := toFloat(raw); ok {
					return f, true
				}
			}
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func pickNumber(item map[string]any, keys []string) *float64 {
	for _, key := range keys {
		var raw any
		if strings.Contains(key, ".") {
			raw = nestedGet(item, key)
		} else {
			raw = item[key]
		}
		if f, ok := extractScalar(raw); ok {
			return &f
		}
	}
	return nil
}

func pickString(item map[string]any, keys []string) string {
	for _, key := range keys {
		var raw any
		if strings.Contains(key, ".") {
			raw = nestedGet(item, key)
		} else {
			raw = item[key]
		}
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func firstPath(root map[string]any, paths [][]any) any {
	for _, path := range paths {
		var current any = root
		valid := true
		for _, token := range path {
			switch t := token.(type) {
			case int:
				list, ok := current.([]any)
				if !ok || t < 0 || t >= len(list) {
					valid = false
				} else {
					current = list[t]
				}
			case string:
				m, ok := current.(map[string]any)
				if !ok {
					valid = false
				} else {
					current = m[t]
				}
			}
			if !valid {
				break
			}
		}
		if valid && current != nil {
			return current
		}
	}
	return nil
}

func extractWeatherObservation(payload map[string]any) map[string]any {
	candidate := firstPath(payload, [][]any{
		{"places", 0, "observations", 0},
		{"places", 0, "observation", 0},
		{"places", 0, "observation"},
		{"observations", 0},
		{"observation", 0},
		{"observation"},
	})
	if m, ok := candidate.(map[string]any); ok {
		return m
	}
	return nil
}

func extractForecastEntries(payload map[string]any) []map[string]any {
	candidate := firstPath(payload, [][]any{
		{"places", 0, "forecastHourly"},
		{"places", 0, "hourlyForecasts"},
		{"forecastHourly"},
		{"hourlyForecasts"},
	})
	if list, ok := candidate.([]any); ok {
		entries := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				entries = append(entries, m)
			}
		}
		return entries
	}
	return nil
}

func parseWindKPH(item map[string]any) *float64 {
	if v := pickNumber(item, []string{"windSpeedKph", "wind.speedKph", "windSpeedKmH"}); v != nil {
		return v
	}
	if mps := pickNumber(item, []string{"windSpeedMps", "wind.speedMps"}); mps != nil {
		kph := round3(*mps * 3.6)
		return &kph
	}
	return pickNumber(item, []string{"windSpeed", "wind.speed", "wind"})
}

func parseWeatherObservation(coord vrp.Coordinate, payload map[string]any) vrp.Observation {
	item := extractWeatherObservation(payload)
	obs := vrp.Observation{Kind: vrp.ObservationWeather, Coordinate: coord, Lat: coord.Lat, Lng: coord.Lng, ProviderName: "here_weather_v3"}
	if item == nil {
		obs.Status = vrp.StatusUnknown
		return obs
	}

	obs.Status = vrp.StatusObserved
	obs.TemperatureC = pickNumber(item, []string{"temperature", "temp", "airTemperature", "temperature.value"})
	obs.PrecipMM = pickNumber(item, []string{"precipitation", "precipitationAmount", "rainfall", "rain", "snowfall"})
	obs.WindKPH = parseWindKPH(item)
	obs.Condition = pickString(item, []string{"description", "condition", "iconName", "daySegment", "phrase"})
	if ts := pickString(item, []string{"utcTime", "time", "observationTime", "validFrom"}); ts != "" {
		if parsed, ok := timeutil.ParseUTC(ts); ok {
			iso := timeutil.ToISOZ(parsed)
			obs.ObservedAt = &iso
		}
	}
	return obs
}

func parseWeatherForecast(cfg Config, reference time.Time, payload map[string]any) vrp.ForecastWindow {
	windowEnd := reference.Add(time.Duration(cfg.ForecastWindowHours) * time.Hour)
	var slots []vrp.ForecastSlot

	for _, entry := range extractForecastEntries(payload) {
		startStr := pickString(entry, []string{"utcTime", "time", "startTime", "validFrom"})
		start, ok := timeutil.ParseUTC(startStr)
		if !ok {
			continue
		}
		if start.Before(reference) || start.After(windowEnd) {
			continue
		}
		endStr := pickString(entry, []string{"endTime", "validTo"})
		end, ok := timeutil.ParseUTC(endStr)
		if !ok {
			end = start.Add(time.Hour)
		}

		precipMM := pickNumber(entry, []string{"precipitation", "precipitationAmount", "rainfall", "rain", "snowfall"})
		precipProb := pickNumber(entry, []string{"precipitationProbability", "rainProbability", "pop"})
		windKPH := parseWindKPH(entry)
		condition := pickString(entry, []string{"description", "condition", "iconName", "daySegment", "phrase"})
		severity := WeatherSeverityScore(condition, precipMM, windKPH, precipProb)

		slots = append(slots, vrp.ForecastSlot{
			StartUTC:  timeutil.ToISOZ(start),
			EndUTC:    timeutil.ToISOZ(end),
			Score:     severity,
			Condition: condition,
		})
	}

	return worstWeatherWindow(cfg, slots)
}

func parseTrafficStatus(coord vrp.Coordinate, radiusM int, flowPayload, incidentsPayload map[string]any) vrp.Observation {
	obs := vrp.Observation{
		Kind:         vrp.ObservationTraffic,
		Coordinate:   coord,
		Lat:          coord.Lat,
		Lng:          coord.Lng,
		Status:       vrp.StatusObserved,
		ProviderName: "here_traffic_v7",
	}

	var currentFlow map[string]any
	if rows, ok := flowPayload["results"].([]any); ok && len(rows) > 0 {
		if first, ok := rows[0].(map[string]any); ok {
			if cf, ok := first["currentFlow"].(map[string]any); ok {
				currentFlow = cf
			}
		}
	}
	if currentFlow == nil {
		currentFlow = map[string]any{}
	}

	jamFactor := pickNumber(currentFlow, []string{"jamFactor"})
	speed := pickNumber(currentFlow, []string{"speed"})
	freeFlow := pickNumber(currentFlow, []string{"freeFlow"})
	if jamFactor == nil && speed != nil && freeFlow != nil && *freeFlow > 0 {
		derived := DeriveJamFactor(*speed, *freeFlow)
		jamFactor = &derived
	}

	obs.JamFactor = jamFactor
	obs.SpeedKPH = speed
	obs.FreeFlowKPH = freeFlow
	obs.Congestion = CongestionLevel(jamFactor)

	if incidents, ok := incidentsPayload["results"].([]any); ok {
		_ = incidents // count kept for operational metrics only, not part of Observation
	}

	observedAt := time.Now().UTC()
	if ts, ok := flowPayload["sourceUpdated"].(string); ok {
		if parsed, ok := timeutil.ParseUTC(ts); ok {
			observedAt = parsed
		}
	}
	iso := timeutil.ToISOZ(observedAt)
	obs.ObservedAt = &iso
	return obs
}

func extractRouteSummary(payload map[string]any) *routeSummary {
	routes, ok := payload["routes"].([]any)
	if !ok || len(routes) == 0 {
		return nil
	}
	route, ok := routes[0].(map[string]any)
	if !ok {
		return nil
	}
	sections, ok := route["sections"].([]any)
	if !ok || len(sections) == 0 {
		return nil
	}
	section, ok := sections[0].(map[string]any)
	if !ok {
		return nil
	}
	summary, ok := section["summary"].(map[string]any)
	if !ok {
		return nil
	}

	duration, okD := toFloat(summary["duration"])
	baseDuration, okB := toFloat(summary["baseDuration"])
	if !okD || !okB || baseDuration <= 0 {
		return nil
	}
	return &routeSummary{durationSec: int(duration), baseDurationSec: int(baseDuration)}
}
