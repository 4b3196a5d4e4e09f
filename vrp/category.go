package vrp

import (
	"sort"
	"strings"
)

type tagPair struct {
	key   string
	value string
}

// knownCategoryMap maps a (tag key, tag value) pair to a semantic
// category string, used to classify candidate locations that don't
// declare an explicit category.
var knownCategoryMap = map[tagPair]string{
	{"amenity", "fuel"}:               "fuel",
	{"amenity", "charging_station"}:   "charging",
	{"amenity", "parking"}:            "parking",
	{"amenity", "parking_entrance"}:   "parking",
	{"amenity", "restaurant"}:         "food",
	{"amenity", "fast_food"}:          "food",
	{"amenity", "cafe"}:               "food",
	{"amenity", "bar"}:                "food",
	{"amenity", "pub"}:                "food",
	{"amenity", "hospital"}:           "healthcare",
	{"amenity", "clinic"}:             "healthcare",
	{"amenity", "pharmacy"}:           "healthcare",
	{"amenity", "car_repair"}:         "vehicle_service",
	{"amenity", "car_wash"}:           "vehicle_service",
	{"tourism", "hotel"}:              "lodging",
	{"tourism", "motel"}:              "lodging",
	{"shop", "supermarket"}:           "grocery",
	{"shop", "convenience"}:           "grocery",
	{"highway", "rest_area"}:          "rest_area",
	{"highway", "services"}:           "rest_area",
}

// CategoryFallback is used when a candidate location has no explicit
// category and no tag pair matches knownCategoryMap.
const CategoryFallback = "other"

// InferCategory derives a CandidateLocation's semantic category: an
// explicit SemanticCategory or "category" tag wins, otherwise every tag
// pair is checked against the known table in ascending key order (the
// first hit wins, which makes the result independent of map iteration
// order when a location carries multiple matching tags), otherwise it
// falls back to CategoryFallback.
func InferCategory(loc CandidateLocation) string {
	if explicit := strings.TrimSpace(loc.SemanticCategory); explicit != "" {
		return strings.ToLower(explicit)
	}
	if explicit, ok := loc.Tags["category"]; ok {
		if trimmed := strings.TrimSpace(explicit); trimmed != "" {
			return strings.ToLower(trimmed)
		}
	}

	keys := make([]string, 0, len(loc.Tags))
	for key := range loc.Tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if category, ok := knownCategoryMap[tagPair{key, loc.Tags[key]}]; ok {
			return category
		}
	}

	return CategoryFallback
}
