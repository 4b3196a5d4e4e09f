// Package routing implements the optional on-road geometry client: an
// OSRM-compatible HTTP backend that the solver consults in
// DistanceOSRM mode and that the municipality resolver consults for
// phase 2 polyline sampling. Neither caller requires it; a nil client
// (or any request error) falls back to straight-line distances.
package routing

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"enrichment-svc/vrp"
)

// OSRM is a minimal client for the OSRM /route/v1 HTTP API, used both as
// solver.OnRoadGeometry (DistanceKM) and municipality.OnRoadGeometry
// (Polyline).
type OSRM struct {
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	cache map[string]routeResult
}

type routeResult struct {
	distanceKM float64
	polyline   []vrp.Coordinate
}

// New builds an OSRM client against baseURL (e.g.
// "https://router.project-osrm.org"). An empty baseURL makes every call
// fail, which callers treat as "no geometry available".
func New(baseURL string, timeout time.Duration) *OSRM {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OSRM{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
				MaxIdleConnsPerHost: 10,
				ForceAttemptHTTP2:   true,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		cache: make(map[string]routeResult),
	}
}

// DistanceKM returns the driving distance between from and to in
// kilometers, satisfying solver.OnRoadGeometry.
func (o *OSRM) DistanceKM(ctx context.Context, from, to vrp.Coordinate) (float64, error) {
	result, err := o.route(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return result.distanceKM, nil
}

// Polyline returns the sequence of coordinates OSRM reports for the
// driving route between from and to, satisfying
// municipality.OnRoadGeometry.
func (o *OSRM) Polyline(ctx context.Context, from, to vrp.Coordinate) ([]vrp.Coordinate, error) {
	result, err := o.route(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return result.polyline, nil
}

func (o *OSRM) route(ctx context.Context, from, to vrp.Coordinate) (routeResult, error) {
	if o.baseURL == "" {
		return routeResult{}, fmt.Errorf("routing: no osrm base url configured")
	}

	key := cacheKey(from, to)
	o.mu.Lock()
	if cached, ok := o.cache[key]; ok {
		o.mu.Unlock()
		return cached, nil
	}
	o.mu.Unlock()

	coords := fmt.Sprintf("%f,%f;%f,%f", from.Lng, from.Lat, to.Lng, to.Lat)
	reqURL := fmt.Sprintf("%s/route/v1/driving/%s", o.baseURL, coords)

	params := url.Values{}
	params.Set("overview", "full")
	params.Set("geometries", "geojson")
	fullURL := reqURL + "?" + params.Encode()

	payload, err := o.getJSON(ctx, fullURL)
	if err != nil {
		return routeResult{}, err
	}

	result, err := parseRouteResponse(payload)
	if err != nil {
		return routeResult{}, err
	}

	o.mu.Lock()
	o.cache[key] = result
	o.mu.Unlock()

	return result, nil
}

func (o *OSRM) getJSON(ctx context.Context, fullURL string) (map[string]any, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("routing: osrm request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("routing: reading osrm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("routing: osrm returned status %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("routing: decoding osrm response: %w", err)
	}
	return payload, nil
}

func parseRouteResponse(payload map[string]any) (routeResult, error) {
	code, _ := payload["code"].(string)
	if code != "" && code != "Ok" {
		return routeResult{}, fmt.Errorf("routing: osrm returned code %q", code)
	}

	routes, ok := payload["routes"].([]any)
	if !ok || len(routes) == 0 {
		return routeResult{}, fmt.Errorf("routing: osrm response had no routes")
	}
	route, ok := routes[0].(map[string]any)
	if !ok {
		return routeResult{}, fmt.Errorf("routing: malformed osrm route entry")
	}

	distanceM, _ := route["distance"].(float64)

	var poly []vrp.Coordinate
	if geometry, ok := route["geometry"].(map[string]any); ok {
		if rawCoords, ok := geometry["coordinates"].([]any); ok {
			poly = make([]vrp.Coordinate, 0, len(rawCoords))
			for _, rc := range rawCoords {
				pair, ok := rc.([]any)
				if !ok || len(pair) < 2 {
					continue
				}
				lng, _ := pair[0].(float64)
				lat, _ := pair[1].(float64)
				poly = append(poly, vrp.Coordinate{Lat: lat, Lng: lng})
			}
		}
	}

	return routeResult{distanceKM: distanceM / 1000.0, polyline: poly}, nil
}

func cacheKey(from, to vrp.Coordinate) string {
	return strconv.FormatFloat(from.Lat, 'f', 6, 64) + "," +
		strconv.FormatFloat(from.Lng, 'f', 6, 64) + "->" +
		strconv.FormatFloat(to.Lat, 'f', 6, 64) + "," +
		strconv.FormatFloat(to.Lng, 'f', 6, 64)
}
