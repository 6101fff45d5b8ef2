package models

import (
	"sort"
	"time"
)

// Direction names used throughout the API
const (
	Uptown   = "uptown"
	Downtown = "downtown"
)

// Display strings for direction entries
const (
	StatusNoData     = "No data"
	ArrivalNow       = "Now"
	ErrorLoadingData = "Error loading data"
)

// Result status values
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultPartial = "partial"
)

// TimestampLayout is the layout of StatusResult.Timestamp
const TimestampLayout = "2006-01-02 15:04:05 UTC"

// Location represents a geographic coordinate
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Station is a parent station from the reference table.
// DirectionCodes holds the uptown stop id first and the downtown stop id second.
type Station struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Lines          []string  `json:"lines"`
	DirectionCodes []string  `json:"direction_codes"`
	Location       *Location `json:"location,omitempty"`
}

// UptownCode returns the stop id used for northbound trains, or "" if unknown
func (s *Station) UptownCode() string {
	if len(s.DirectionCodes) < 1 {
		return ""
	}
	return s.DirectionCodes[0]
}

// DowntownCode returns the stop id used for southbound trains, or "" if unknown
func (s *Station) DowntownCode() string {
	if len(s.DirectionCodes) < 2 {
		return ""
	}
	return s.DirectionCodes[1]
}

// ServesRoute reports whether route is in the station's line set
func (s *Station) ServesRoute(route string) bool {
	for _, line := range s.Lines {
		if line == route {
			return true
		}
	}
	return false
}

// RouteInfo holds display metadata for a route
type RouteInfo struct {
	Color     string `json:"color"`
	TextColor string `json:"text_color"`
	Name      string `json:"name"`
}

// DirectionTimes is the deduplicated set of arrival epochs for one route
type DirectionTimes struct {
	Uptown   map[int64]struct{}
	Downtown map[int64]struct{}
}

// Add records an arrival epoch for the given direction
func (d *DirectionTimes) Add(direction string, t int64) {
	switch direction {
	case Uptown:
		if d.Uptown == nil {
			d.Uptown = make(map[int64]struct{})
		}
		d.Uptown[t] = struct{}{}
	case Downtown:
		if d.Downtown == nil {
			d.Downtown = make(map[int64]struct{})
		}
		d.Downtown[t] = struct{}{}
	}
}

// Sorted returns the epochs for a direction in ascending order
func (d *DirectionTimes) Sorted(direction string) []int64 {
	var set map[int64]struct{}
	switch direction {
	case Uptown:
		set = d.Uptown
	case Downtown:
		set = d.Downtown
	}

	times := make([]int64, 0, len(set))
	for t := range set {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times
}

// RouteTimes accumulates arrival epochs per route across every feed of a request
type RouteTimes map[string]*DirectionTimes

// Add records t for route and direction
func (rt RouteTimes) Add(route, direction string, t int64) {
	times, ok := rt[route]
	if !ok {
		times = &DirectionTimes{}
		rt[route] = times
	}
	times.Add(direction, t)
}

// DirectionStatus is the display state for one direction of one route
type DirectionStatus struct {
	Status       string   `json:"status,omitempty"`
	NextArrivals []string `json:"next_arrivals"`
}

// RouteStatus is the display state for one route at a station
type RouteStatus struct {
	Uptown    DirectionStatus `json:"uptown"`
	Downtown  DirectionStatus `json:"downtown"`
	Color     string          `json:"color"`
	TextColor string          `json:"text_color"`
	Name      string          `json:"name"`
}

// TrainStatus maps route id to its status
type TrainStatus map[string]RouteStatus

// Merge copies routes from other that are not already present.
// The first station to populate a route wins.
func (ts TrainStatus) Merge(other TrainStatus) {
	for route, status := range other {
		if _, ok := ts[route]; ok {
			continue
		}
		ts[route] = status
	}
}

// Routes returns the route ids in ts, sorted
func (ts TrainStatus) Routes() []string {
	routes := make([]string, 0, len(ts))
	for route := range ts {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	return routes
}

// StatusResult is the response for a train status request
type StatusResult struct {
	Status    string      `json:"status"`
	Timestamp string      `json:"timestamp"`
	Stations  []Station   `json:"stations"`
	Trains    TrainStatus `json:"trains"`
}

// NewStatusResult creates an empty result stamped with now
func NewStatusResult(now time.Time) StatusResult {
	return StatusResult{
		Status:    ResultSuccess,
		Timestamp: now.UTC().Format(TimestampLayout),
		Stations:  []Station{},
		Trains:    TrainStatus{},
	}
}
