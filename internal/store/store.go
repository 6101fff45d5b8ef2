package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/jusunglee/mta-arrivals/internal/models"
)

// ErrStationNotFound is returned for an id missing from the station table
var ErrStationNotFound = errors.New("station not found")

// stationRecord is one entry of the station JSON file
type stationRecord struct {
	Name           string   `json:"name"`
	Lines          []string `json:"lines"`
	DirectionCodes []string `json:"direction_codes"`
	Lat            *float64 `json:"lat,omitempty"`
	Lon            *float64 `json:"lon,omitempty"`
}

// Store holds the station reference table and route metadata.
// It is immutable once built and safe for concurrent reads.
type Store struct {
	stations        map[string]*models.Station
	stationsByRoute map[string][]*models.Station
	routes          []string
	routeInfo       map[string]models.RouteInfo
}

// LoadStations reads a station JSON file keyed by station id
func LoadStations(path string) (map[string]*models.Station, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stations %s: %w", path, err)
	}
	return ParseStations(data)
}

// ParseStations decodes station JSON keyed by station id
func ParseStations(data []byte) (map[string]*models.Station, error) {
	var records map[string]stationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode stations: %w", err)
	}

	stations := make(map[string]*models.Station, len(records))
	for id, rec := range records {
		station := &models.Station{
			ID:             id,
			Name:           rec.Name,
			Lines:          rec.Lines,
			DirectionCodes: rec.DirectionCodes,
		}
		if rec.Lat != nil && rec.Lon != nil {
			station.Location = &models.Location{Lat: *rec.Lat, Lon: *rec.Lon}
		}
		stations[id] = station
	}
	return stations, nil
}

// MarshalStations encodes stations in the file format read by LoadStations
func MarshalStations(stations map[string]*models.Station) ([]byte, error) {
	records := make(map[string]stationRecord, len(stations))
	for id, station := range stations {
		rec := stationRecord{
			Name:           station.Name,
			Lines:          station.Lines,
			DirectionCodes: station.DirectionCodes,
		}
		if station.Location != nil {
			lat, lon := station.Location.Lat, station.Location.Lon
			rec.Lat, rec.Lon = &lat, &lon
		}
		records[id] = rec
	}
	// encoding/json sorts map keys
	return json.MarshalIndent(records, "", "  ")
}

// NewStore indexes stations and route metadata
func NewStore(stations map[string]*models.Station) *Store {
	s := &Store{
		stations:        stations,
		stationsByRoute: make(map[string][]*models.Station),
		routeInfo:       DefaultRouteInfo(),
	}
	if s.stations == nil {
		s.stations = make(map[string]*models.Station)
	}

	routeSet := make(map[string]bool)
	for _, station := range s.stations {
		for _, route := range station.Lines {
			s.stationsByRoute[route] = append(s.stationsByRoute[route], station)
			routeSet[route] = true
		}
	}

	for route := range s.stationsByRoute {
		list := s.stationsByRoute[route]
		sort.Slice(list, func(i, j int) bool {
			if list[i].Name != list[j].Name {
				return list[i].Name < list[j].Name
			}
			return list[i].ID < list[j].ID
		})
	}

	s.routes = make([]string, 0, len(routeSet))
	for route := range routeSet {
		s.routes = append(s.routes, route)
	}
	sort.Strings(s.routes)

	return s
}

// Open loads the station file at path into a new Store
func Open(path string) (*Store, error) {
	stations, err := LoadStations(path)
	if err != nil {
		return nil, err
	}
	return NewStore(stations), nil
}

// Len returns the number of stations
func (s *Store) Len() int {
	return len(s.stations)
}

// Station returns the station with id
func (s *Store) Station(id string) (models.Station, error) {
	station, ok := s.stations[id]
	if !ok {
		return models.Station{}, fmt.Errorf("%w: %s", ErrStationNotFound, id)
	}
	return *station, nil
}

// ResolveStations returns the stations for ids in request order.
// Unknown ids are skipped and returned separately; duplicates are dropped.
func (s *Store) ResolveStations(ids []string) (stations []models.Station, invalid []string) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		station, ok := s.stations[id]
		if !ok {
			invalid = append(invalid, id)
			continue
		}
		stations = append(stations, *station)
	}
	return stations, invalid
}

// Stations returns every station sorted by id
func (s *Store) Stations() []models.Station {
	result := make([]models.Station, 0, len(s.stations))
	for _, station := range s.stations {
		result = append(result, *station)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// StationsByLocation returns up to limit stations nearest to a location.
// Stations without coordinates are ignored.
func (s *Store) StationsByLocation(lat, lon float64, limit int) []models.Station {
	type stationDist struct {
		station  *models.Station
		distance float64
	}

	var stations []stationDist
	for _, station := range s.stations {
		if station.Location == nil {
			continue
		}
		dist := distance(lat, lon, station.Location.Lat, station.Location.Lon)
		stations = append(stations, stationDist{station, dist})
	}

	sort.Slice(stations, func(i, j int) bool {
		return stations[i].distance < stations[j].distance
	})

	result := make([]models.Station, 0, limit)
	for i := 0; i < limit && i < len(stations); i++ {
		result = append(result, *stations[i].station)
	}

	return result
}

// StationsByRoute returns all stations on a route
func (s *Store) StationsByRoute(route string) ([]models.Station, error) {
	route = strings.ToUpper(route)
	stations, ok := s.stationsByRoute[route]
	if !ok {
		return nil, fmt.Errorf("route %s not found", route)
	}

	result := make([]models.Station, len(stations))
	for i, station := range stations {
		result[i] = *station
	}

	return result, nil
}

// Routes returns every route served by some station
func (s *Store) Routes() []string {
	result := make([]string, len(s.routes))
	copy(result, s.routes)
	return result
}

// RouteInfo returns display metadata for route, with a grey fallback
// for routes missing from the table
func (s *Store) RouteInfo(route string) models.RouteInfo {
	if info, ok := s.routeInfo[route]; ok {
		return info
	}
	return models.RouteInfo{
		Color:     FallbackColor,
		TextColor: DefaultTextColor,
		Name:      route + " Train",
	}
}

// distance calculates the distance between two points using the Haversine formula
func distance(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371 // Earth's radius in kilometers

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * c
}
