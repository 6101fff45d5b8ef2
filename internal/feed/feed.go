package feed

import (
	"fmt"
	"sort"
	"strings"

	gtfsrt "github.com/jamespfennell/gtfs/proto"
)

// FeedPaths maps a feed partition key to its path under the MTA base URL
var FeedPaths = map[string]string{
	"1234567": "gtfs",      // 1234567S
	"ace":     "gtfs-ace",  // ACE, Rockaway and Franklin shuttles
	"bdfm":    "gtfs-bdfm", // BDFM
	"g":       "gtfs-g",    // G
	"jz":      "gtfs-jz",   // JZ
	"l":       "gtfs-l",    // L
	"nqrw":    "gtfs-nqrw", // NQRW
	"si":      "gtfs-si",   // Staten Island Railway
}

// RouteToFeed maps every route id, shuttle variants included, to its feed partition
var RouteToFeed = map[string]string{
	"A": "ace", "C": "ace", "E": "ace", "H": "ace", "SR": "ace", "FS": "ace",
	"B": "bdfm", "D": "bdfm", "F": "bdfm", "M": "bdfm", "SF": "bdfm",
	"G": "g",
	"J": "jz", "Z": "jz",
	"N": "nqrw", "Q": "nqrw", "R": "nqrw", "W": "nqrw",
	"L": "l",
	"1": "1234567", "2": "1234567", "3": "1234567",
	"4": "1234567", "5": "1234567", "6": "1234567", "7": "1234567",
	"S": "1234567", "GS": "1234567",
	"SI": "si", "SIR": "si",
}

// expressVariants are route ids the feeds use for express runs of a local line
var expressVariants = map[string]bool{
	"4X": true,
	"5X": true,
	"6X": true,
	"7X": true,
	"FX": true,
}

// BaseRoute strips the express suffix from a route id, so "6X" becomes "6".
// Any other id is returned unchanged.
func BaseRoute(routeID string) string {
	if expressVariants[routeID] {
		return routeID[:1]
	}
	return routeID
}

// FeedForRoute returns the partition key serving route
func FeedForRoute(route string) (string, bool) {
	key, ok := RouteToFeed[BaseRoute(route)]
	return key, ok
}

// FeedsForRoutes returns the distinct partitions needed for routes, sorted.
// Routes without a known feed are returned separately.
func FeedsForRoutes(routes []string) (keys []string, unknown []string) {
	seen := make(map[string]bool)
	for _, route := range routes {
		key, ok := FeedForRoute(route)
		if !ok {
			unknown = append(unknown, route)
			continue
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, unknown
}

// RoutesForFeed returns every route id routed to key, sorted
func RoutesForFeed(key string) []string {
	var routes []string
	for route, k := range RouteToFeed {
		if k == key {
			routes = append(routes, route)
		}
	}
	sort.Strings(routes)
	return routes
}

// Keys returns all feed partition keys, sorted
func Keys() []string {
	keys := make([]string, 0, len(FeedPaths))
	for key := range FeedPaths {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// FeedURL joins baseURL and the path for key
func FeedURL(baseURL, key string) (string, error) {
	path, ok := FeedPaths[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFeed, key)
	}
	if !strings.HasSuffix(baseURL, "/") && !strings.HasSuffix(baseURL, "%2F") {
		baseURL += "/"
	}
	return baseURL + path, nil
}

// Summary counts the entity kinds in a feed message
type Summary struct {
	Entities    int
	TripUpdates int
	Vehicles    int
	Alerts      int
}

// Summarize counts entities by the payload they carry
func Summarize(message *gtfsrt.FeedMessage) Summary {
	var s Summary
	for _, entity := range message.GetEntity() {
		s.Entities++
		if entity.GetTripUpdate() != nil {
			s.TripUpdates++
		}
		if entity.GetVehicle() != nil {
			s.Vehicles++
		}
		if entity.GetAlert() != nil {
			s.Alerts++
		}
	}
	return s
}
