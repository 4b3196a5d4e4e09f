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

// HTTPAreaEndpoint queries an Overpass-compatible area-search API for
// PlacesWithin and a Nominatim-compatible search API for province
// capitals, both against the same family of OSM-backed services the
// reverse endpoint talks to.
type HTTPAreaEndpoint struct {
	overpassBaseURL string
	searchBaseURL   string
	client          *http.Client
}

// NewHTTPAreaEndpoint builds an area endpoint. overpassBaseURL serves
// PlacesWithin (e.g. "https://overpass-api.de/api/interpreter");
// searchBaseURL serves ResolveProvinceCapital (e.g.
// "https://nominatim.openstreetmap.org/search").
func NewHTTPAreaEndpoint(overpassBaseURL, searchBaseURL string, timeout time.Duration) *HTTPAreaEndpoint {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &HTTPAreaEndpoint{
		overpassBaseURL: overpassBaseURL,
		searchBaseURL:   searchBaseURL,
		client:          &http.Client{Timeout: timeout},
	}
}

// PlacesWithin issues an Overpass QL "around" query for nodes tagged
// with one of acceptedClasses within radiusM of coord.
func (h *HTTPAreaEndpoint) PlacesWithin(ctx context.Context, coord vrp.Coordinate, radiusM int, acceptedClasses []string) ([]Place, error) {
	query := buildOverpassQuery(coord, radiusM, acceptedClasses)
	reqURL := h.overpassBaseURL + "?" + url.Values{"data": {query}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("overpass: upstream status %d", resp.StatusCode)
	}

	var payload struct {
		Elements []struct {
			Lat  float64           `json:"lat"`
			Lon  float64           `json:"lon"`
			Tags map[string]string `json:"tags"`
		} `json:"elements"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("overpass: invalid JSON: %w", err)
	}

	places := make([]Place, 0, len(payload.Elements))
	for _, el := range payload.Elements {
		name := el.Tags["name"]
		if name == "" {
			continue
		}
		places = append(places, Place{
			Name:       name,
			Class:      firstNonEmpty(el.Tags, "shop", "amenity", "tourism", "leisure"),
			Coordinate: vrp.Coordinate{Lat: el.Lat, Lng: el.Lon},
			Role:       vrp.SourceRoleLabel,
		})
	}
	return places, nil
}

// ResolveProvinceCapital searches for the province name itself, restricted
// to countryCode and feature type "city", and returns the top match, or
// nil if nothing resolved.
func (h *HTTPAreaEndpoint) ResolveProvinceCapital(ctx context.Context, province, countryCode string) (*Place, error) {
	params := url.Values{
		"format":         {"jsonv2"},
		"q":              {fmt.Sprintf("%s", province)},
		"countrycodes":   {countryCode},
		"featureType":    {"city"},
		"addressdetails": {"0"},
		"limit":          {"1"},
	}
	reqURL := h.searchBaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "enrichment-svc/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("nominatim search: upstream status %d", resp.StatusCode)
	}

	var payload []struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		OSMType     string `json:"osm_type"`
		OSMID       int64  `json:"osm_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("nominatim search: invalid JSON: %w", err)
	}
	if len(payload) == 0 {
		return nil, nil
	}

	lat, _ := strconv.ParseFloat(payload[0].Lat, 64)
	lon, _ := strconv.ParseFloat(payload[0].Lon, 64)
	name := payload[0].Name
	if name == "" {
		name = payload[0].DisplayName
	}
	osmRef := ""
	if payload[0].OSMType != "" {
		osmRef = payload[0].OSMType + "/" + strconv.FormatInt(payload[0].OSMID, 10)
	}

	return &Place{
		Name:       name,
		Coordinate: vrp.Coordinate{Lat: lat, Lng: lon},
		OSMRef:     osmRef,
		Role:       vrp.SourceRoleCapital,
	}, nil
}

func buildOverpassQuery(coord vrp.Coordinate, radiusM int, acceptedClasses []string) string {
	query := "[out:json];("
	for _, class := range acceptedClasses {
		query += fmt.Sprintf("node[%q](around:%d,%f,%f);", class, radiusM, coord.Lat, coord.Lng)
	}
	query += ");out body;"
	return query
}
