// Package arrivals turns GTFS-RT trip updates into the next few arrival
// times per route and direction for a station.
package arrivals

import (
	"sort"
	"time"

	gtfsrt "github.com/jamespfennell/gtfs/proto"

	"github.com/jusunglee/mta-arrivals/internal/feed"
	"github.com/jusunglee/mta-arrivals/internal/models"
)

// GracePeriod is how far in the past an arrival may be and still count, in seconds.
// Accepted arrivals satisfy now-GracePeriod < t.
const GracePeriod = 60

// Target is what the extractor looks for in a feed: the relevant base routes
// and the stop ids for each direction at one station.
type Target struct {
	Routes   map[string]bool
	Uptown   string
	Downtown string
}

// TargetFor builds the target for a station from its line set and direction codes
func TargetFor(station models.Station) Target {
	routes := make(map[string]bool, len(station.Lines))
	for _, line := range station.Lines {
		routes[line] = true
	}
	return Target{
		Routes:   routes,
		Uptown:   station.UptownCode(),
		Downtown: station.DowntownCode(),
	}
}

func (t Target) direction(stopID string) (string, bool) {
	switch {
	case stopID == "":
		return "", false
	case stopID == t.Uptown:
		return models.Uptown, true
	case stopID == t.Downtown:
		return models.Downtown, true
	}
	return "", false
}

// Extractor filters stop time updates into RouteTimes.
// Only arrival events are considered; departures are ignored.
type Extractor struct {
	// Horizon caps how far ahead an arrival may be. Zero means no cap.
	Horizon time.Duration
}

// Accept reports whether an arrival at t falls inside the window around now
func (e Extractor) Accept(t, now int64) bool {
	if t <= now-GracePeriod {
		return false
	}
	if e.Horizon > 0 && t > now+int64(e.Horizon/time.Second) {
		return false
	}
	return true
}

// Extract adds every accepted arrival in message at target's stops to times.
// It returns the raw route ids (before express normalization) of the relevant
// trip updates it saw, sorted.
func (e Extractor) Extract(message *gtfsrt.FeedMessage, target Target, now int64, times models.RouteTimes) []string {
	seen := make(map[string]bool)

	for _, entity := range message.GetEntity() {
		tripUpdate := entity.GetTripUpdate()
		if tripUpdate == nil {
			continue
		}

		routeID := tripUpdate.GetTrip().GetRouteId()
		baseRoute := feed.BaseRoute(routeID)
		if !target.Routes[baseRoute] {
			continue
		}
		seen[routeID] = true

		for _, update := range tripUpdate.GetStopTimeUpdate() {
			direction, ok := target.direction(update.GetStopId())
			if !ok {
				continue
			}

			arrival := update.GetArrival()
			if arrival == nil || arrival.Time == nil {
				continue
			}

			t := arrival.GetTime()
			if !e.Accept(t, now) {
				continue
			}
			times.Add(baseRoute, direction, t)
		}
	}

	routes := make([]string, 0, len(seen))
	for route := range seen {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	return routes
}
