package store

import "github.com/jusunglee/mta-arrivals/internal/models"

// Route display colours
const (
	FallbackColor    = "#808080"
	DefaultTextColor = "#FFFFFF"
	darkTextColor    = "#000000"
)

var routeColors = []struct {
	color     string
	textColor string
	routes    []string
}{
	{"#EE352E", DefaultTextColor, []string{"1", "2", "3"}},
	{"#00933C", DefaultTextColor, []string{"4", "5", "6"}},
	{"#B933AD", DefaultTextColor, []string{"7"}},
	{"#0039A6", DefaultTextColor, []string{"A", "C", "E"}},
	{"#FF6319", DefaultTextColor, []string{"B", "D", "F", "M"}},
	{"#6CBE45", DefaultTextColor, []string{"G"}},
	{"#996633", DefaultTextColor, []string{"J", "Z"}},
	{"#A7A9AC", darkTextColor, []string{"L"}},
	{"#FCCC0A", darkTextColor, []string{"N", "Q", "R", "W"}},
	{"#808183", DefaultTextColor, []string{"S"}},
}

// DefaultRouteInfo returns the built-in route metadata table
func DefaultRouteInfo() map[string]models.RouteInfo {
	info := make(map[string]models.RouteInfo)
	for _, group := range routeColors {
		for _, route := range group.routes {
			info[route] = models.RouteInfo{
				Color:     group.color,
				TextColor: group.textColor,
				Name:      route + " Train",
			}
		}
	}

	shuttle := info["S"]
	shuttle.Name = "Shuttle"
	info["S"] = shuttle

	return info
}
