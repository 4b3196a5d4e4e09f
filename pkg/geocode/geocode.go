// Package geocode implements ReverseGeocoder and AreaQuery: turning a
// coordinate into an AdminResolution, and querying nearby named places
// and province capitals. Reverse geocoding sits behind a per-process
// address book cache and a minimum-interval rate limiter; AreaQuery
// caches province capitals only and applies no rate limit.
package geocode

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"enrichment-svc/pkg/ratelimit"
	"enrichment-svc/vrp"
)

// municipalityFieldPriority is the order in which address-map keys are
// checked when choosing the municipality name for a resolved point.
var municipalityFieldPriority = []string{
	"municipality", "city", "town", "village", "city_district",
	"district", "borough", "suburb", "quarter", "hamlet", "locality",
}

// Endpoint abstracts a single reverse-geocoding backend (a real HERE/
// Nominatim-style REST endpoint, or a test double). Returning an address
// map mirrors the permissive structure reverse-geocoding APIs return.
type Endpoint interface {
	Name() string
	ReverseGeocode(ctx context.Context, coord vrp.Coordinate) (address map[string]string, osmRef string, err error)
}

// Place is a named point returned by AreaQuery.PlacesWithin or
// resolved as a province capital.
type Place struct {
	Name       string
	Class      string
	Population int
	Coordinate vrp.Coordinate
	OSMRef     string
	Role       vrp.SourceRole
}

// AreaEndpoint abstracts the area-search backend AreaQuery delegates to.
type AreaEndpoint interface {
	PlacesWithin(ctx context.Context, coord vrp.Coordinate, radiusM int, acceptedClasses []string) ([]Place, error)
	ResolveProvinceCapital(ctx context.Context, province, countryCode string) (*Place, error)
}

// ReverseGeocoder resolves coordinates to AdminResolution values,
// honoring a shared minimum-interval limit across every call made
// through one instance (Open Question 2: one shared timer spans both
// municipality resolver phases).
type ReverseGeocoder struct {
	endpoints  []Endpoint
	book       *addressBookStore
	limiter    ratelimit.Limiter
	limiterKey string
	group      singleflight.Group
}

// addressBookStore is a simple in-process map guarding concurrent
// read-then-fetch with the same single-flight discipline used
// elsewhere in the pipeline.
type addressBookStore struct {
	mu      sync.RWMutex
	entries map[string]vrp.AdminResolution
}

func newAddressBookStore() *addressBookStore {
	return &addressBookStore{entries: make(map[string]vrp.AdminResolution)}
}

func (s *addressBookStore) get(key string) (vrp.AdminResolution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

func (s *addressBookStore) set(key string, v vrp.AdminResolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = v
}

func (s *addressBookStore) snapshot() map[string]vrp.AdminResolution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]vrp.AdminResolution, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// NewReverseGeocoder builds a resolver sharing minInterval across every
// call issued through it. minInterval defaults to 1100ms.
func NewReverseGeocoder(endpoints []Endpoint, minInterval time.Duration) *ReverseGeocoder {
	if minInterval <= 0 {
		minInterval = 1100 * time.Millisecond
	}
	limiter, _ := ratelimit.New(&ratelimit.Config{
		Requests: 1,
		Window:   minInterval,
		Backend:  "memory",
	})
	return &ReverseGeocoder{
		endpoints:  endpoints,
		book:       newAddressBookStore(),
		limiter:    limiter,
		limiterKey: "reverse-geocoder",
	}
}

// Resolve canonicalizes coord, consults the address book, and on miss
// issues requests to each configured endpoint in order until one
// succeeds. All-endpoints failure produces and caches an error
// resolution so repeated lookups of the same bad coordinate don't retry
// forever within one request.
func (g *ReverseGeocoder) Resolve(ctx context.Context, coord vrp.Coordinate) (vrp.AdminResolution, error) {
	key := coord.CoordKey()
	if cached, ok := g.book.get(key); ok {
		return cached, nil
	}

	result, err, _ := g.group.Do(key, func() (any, error) {
		if cached, ok := g.book.get(key); ok {
			return cached, nil
		}
		resolution := g.resolveUncached(ctx, coord, key)
		g.book.set(key, resolution)
		return resolution, nil
	})
	if err != nil {
		return vrp.AdminResolution{}, err
	}
	return result.(vrp.AdminResolution), nil
}

func (g *ReverseGeocoder) resolveUncached(ctx context.Context, coord vrp.Coordinate, key string) vrp.AdminResolution {
	if len(g.endpoints) == 0 {
		return vrp.AdminResolution{Status: vrp.ResolutionError, AddressRef: key, Error: "no reverse geocoding endpoints configured"}
	}

	var lastErr error
	for _, ep := range g.endpoints {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx, g.limiterKey); err != nil {
				return vrp.AdminResolution{Status: vrp.ResolutionError, AddressRef: key, Error: err.Error()}
			}
		}

		address, osmRef, err := ep.ReverseGeocode(ctx, coord)
		if err != nil {
			lastErr = err
			continue
		}
		return addressToResolution(address, osmRef, key)
	}

	errMsg := "all endpoints failed"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	return vrp.AdminResolution{Status: vrp.ResolutionError, AddressRef: key, Error: errMsg}
}

func addressToResolution(address map[string]string, osmRef, key string) vrp.AdminResolution {
	municipality, field := pickMunicipality(address)
	province := firstNonEmpty(address, "state", "province", "region")
	country := strings.ToUpper(firstNonEmpty(address, "country_code", "country"))

	if municipality == "" {
		if province != "" || country != "" {
			return vrp.AdminResolution{
				Status:         vrp.ResolutionUnknown,
				ProvinceName:   province,
				CountryCode:    country,
				AddressRef:     key,
				OSMRef:         osmRef,
				ResolutionNote: "non_municipality_admin_only",
			}
		}
		return vrp.AdminResolution{Status: vrp.ResolutionUnknown, AddressRef: key, OSMRef: osmRef}
	}

	return vrp.AdminResolution{
		Status:                  vrp.ResolutionResolved,
		MunicipalityName:        municipality,
		MunicipalitySourceField: field,
		ProvinceName:            province,
		CountryCode:             country,
		AddressRef:              key,
		OSMRef:                  osmRef,
	}
}

func pickMunicipality(address map[string]string) (name, field string) {
	for _, f := range municipalityFieldPriority {
		if v := strings.TrimSpace(address[f]); v != "" {
			return v, f
		}
	}
	return "", ""
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

// AddressBookSnapshot returns a copy of every resolution cached so far,
// used to populate the response's municipality_address_book field.
func (g *ReverseGeocoder) AddressBookSnapshot() map[string]vrp.AdminResolution {
	return g.book.snapshot()
}

// AreaQuery resolves nearby named places and province capitals, cached
// by (country code, case-folded name).
type AreaQuery struct {
	endpoint AreaEndpoint
	group    singleflight.Group

	mu            sync.RWMutex
	capitalCache  map[string]vrp.ProvinceCapital
}

// NewAreaQuery builds an AreaQuery delegating to endpoint.
func NewAreaQuery(endpoint AreaEndpoint) *AreaQuery {
	return &AreaQuery{
		endpoint:     endpoint,
		capitalCache: make(map[string]vrp.ProvinceCapital),
	}
}

// PlacesWithin returns places of the accepted classes within radiusM of
// coord.
func (a *AreaQuery) PlacesWithin(ctx context.Context, coord vrp.Coordinate, radiusM int, acceptedClasses []string) ([]Place, error) {
	if a.endpoint == nil {
		return nil, nil
	}
	return a.endpoint.PlacesWithin(ctx, coord, radiusM, acceptedClasses)
}

// ResolveProvinceCapital returns the capital that the area endpoint
// reports for province in countryCode, cached by (upper-cased country
// code, lower-cased province). The endpoint's single result is taken as
// is: there is no admin-level filtering, no ranking of candidate names
// and no admin_centre/capital/label member extraction.
func (a *AreaQuery) ResolveProvinceCapital(ctx context.Context, province, countryCode string) (vrp.ProvinceCapital, error) {
	key := fmt.Sprintf("%s|%s", strings.ToUpper(countryCode), strings.ToLower(province))

	a.mu.RLock()
	if cached, ok := a.capitalCache[key]; ok {
		a.mu.RUnlock()
		return cached, nil
	}
	a.mu.RUnlock()

	result, err, _ := a.group.Do(key, func() (any, error) {
		a.mu.RLock()
		if cached, ok := a.capitalCache[key]; ok {
			a.mu.RUnlock()
			return cached, nil
		}
		a.mu.RUnlock()

		resolved := a.resolveUncached(ctx, province, countryCode)
		a.mu.Lock()
		a.capitalCache[key] = resolved
		a.mu.Unlock()
		return resolved, nil
	})
	if err != nil {
		return vrp.ProvinceCapital{}, err
	}
	return result.(vrp.ProvinceCapital), nil
}

func (a *AreaQuery) resolveUncached(ctx context.Context, province, countryCode string) vrp.ProvinceCapital {
	if a.endpoint == nil {
		return vrp.ProvinceCapital{ProvinceName: province, CountryCode: countryCode, Status: vrp.ResolutionUnknown}
	}

	place, err := a.endpoint.ResolveProvinceCapital(ctx, province, countryCode)
	if err != nil {
		return vrp.ProvinceCapital{ProvinceName: province, CountryCode: countryCode, Status: vrp.ResolutionError, Error: err.Error()}
	}
	if place == nil {
		return vrp.ProvinceCapital{ProvinceName: province, CountryCode: countryCode, Status: vrp.ResolutionUnknown}
	}

	coord := place.Coordinate
	return vrp.ProvinceCapital{
		ProvinceName: province,
		CountryCode:  countryCode,
		Status:       vrp.ResolutionResolved,
		CapitalName:  place.Name,
		CapitalCoord: &coord,
		SourceRole:   place.Role,
	}
}
