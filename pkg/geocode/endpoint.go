package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"enrichment-svc/vrp"
)

// HTTPEndpoint queries a Nominatim-compatible reverse-geocoding REST
// endpoint (the default OSM public instance, or a HERE-compatible proxy
// configured via baseURL).
type HTTPEndpoint struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewHTTPEndpoint builds a reverse-geocoding endpoint against baseURL
// (e.g. "https://nominatim.openstreetmap.org/reverse").
func NewHTTPEndpoint(name, baseURL string, timeout time.Duration) *HTTPEndpoint {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &HTTPEndpoint{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name identifies this endpoint for error messages and breaker naming.
func (h *HTTPEndpoint) Name() string { return h.name }

// ReverseGeocode issues a GET request and returns the address map plus
// the OSM relation/way/node reference, if present.
func (h *HTTPEndpoint) ReverseGeocode(ctx context.Context, coord vrp.Coordinate) (map[string]string, string, error) {
	params := url.Values{
		"format":         {"jsonv2"},
		"lat":            {fmt.Sprintf("%.6f", coord.Lat)},
		"lon":            {fmt.Sprintf("%.6f", coord.Lng)},
		"addressdetails": {"1"},
		"zoom":           {"16"},
	}
	reqURL := h.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", "enrichment-svc/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("%s: upstream status %d", h.name, resp.StatusCode)
	}

	var payload struct {
		OSMType string            `json:"osm_type"`
		OSMID   int64             `json:"osm_id"`
		Address map[string]string `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", fmt.Errorf("%s: invalid JSON: %w", h.name, err)
	}

	osmRef := ""
	if payload.OSMType != "" {
		osmRef = payload.OSMType + "/" + strconv.FormatInt(payload.OSMID, 10)
	}
	return payload.Address, osmRef, nil
}
