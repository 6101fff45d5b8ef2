// Package stationdb builds the station reference file from the static GTFS
// schedule and the MTA stations list.
package stationdb

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/jamespfennell/gtfs"

	"github.com/jusunglee/mta-arrivals/internal/feed"
	"github.com/jusunglee/mta-arrivals/internal/models"
)

// Column names in the MTA stations CSV
const (
	StopIDColumn = "GTFS Stop ID"
	RoutesColumn = "Daytime Routes"
)

// Builder joins parent stations from a static GTFS archive with route lists
type Builder struct {
	logger *slog.Logger
}

// NewBuilder creates a Builder
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger}
}

// BuildFromFiles reads the GTFS zip at gtfsPath and, when linesPath is set,
// the stations CSV, and returns the station table
func (b *Builder) BuildFromFiles(gtfsPath, linesPath string) (map[string]*models.Station, error) {
	archive, err := os.ReadFile(gtfsPath)
	if err != nil {
		return nil, fmt.Errorf("read gtfs archive: %w", err)
	}

	var lines map[string][]string
	if linesPath != "" {
		f, err := os.Open(linesPath)
		if err != nil {
			return nil, fmt.Errorf("open stations csv: %w", err)
		}
		defer f.Close()

		lines, err = ReadLines(f)
		if err != nil {
			return nil, err
		}
	}

	return b.Build(archive, lines)
}

// Build parses a GTFS zip and returns one station per parent stop.
// Lines come from lines when it has an entry for the station, otherwise from
// the scheduled trips that call at the station's platforms.
func (b *Builder) Build(archive []byte, lines map[string][]string) (map[string]*models.Station, error) {
	static, err := gtfs.ParseStatic(archive, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("parse gtfs: %w", err)
	}

	stations := make(map[string]*models.Station)
	for i := range static.Stops {
		stop := &static.Stops[i]
		if stop.Type != gtfs.StopType_Station {
			continue
		}
		station := &models.Station{
			ID:             stop.Id,
			Name:           stop.Name,
			Lines:          []string{},
			DirectionCodes: []string{},
		}
		if stop.Latitude != nil && stop.Longitude != nil {
			station.Location = &models.Location{Lat: *stop.Latitude, Lon: *stop.Longitude}
		}
		stations[stop.Id] = station
	}

	for i := range static.Stops {
		stop := &static.Stops[i]
		if stop.Parent == nil {
			continue
		}
		if station, ok := stations[stop.Parent.Id]; ok {
			station.DirectionCodes = append(station.DirectionCodes, stop.Id)
		}
	}

	scheduled := scheduledLines(static)
	var missing int
	for id, station := range stations {
		sort.Strings(station.DirectionCodes)
		if routes, ok := lines[id]; ok {
			station.Lines = routes
			continue
		}
		if routes, ok := scheduled[id]; ok {
			station.Lines = routes
			continue
		}
		missing++
	}

	if missing > 0 {
		b.logger.Warn("stations without lines", slog.Int("count", missing))
	}
	b.logger.Info("built station table",
		slog.Int("stations", len(stations)),
		slog.Int("stops", len(static.Stops)),
		slog.Int("trips", len(static.Trips)))

	return stations, nil
}

// scheduledLines maps a parent station id to the sorted base routes of trips
// stopping at any of its platforms
func scheduledLines(static *gtfs.Static) map[string][]string {
	sets := make(map[string]map[string]bool)
	for i := range static.Trips {
		trip := &static.Trips[i]
		if trip.Route == nil {
			continue
		}
		route := feed.BaseRoute(trip.Route.Id)
		for _, st := range trip.StopTimes {
			if st.Stop == nil {
				continue
			}
			id := st.Stop.Id
			if st.Stop.Parent != nil {
				id = st.Stop.Parent.Id
			}
			if sets[id] == nil {
				sets[id] = make(map[string]bool)
			}
			sets[id][route] = true
		}
	}

	result := make(map[string][]string, len(sets))
	for id, set := range sets {
		routes := make([]string, 0, len(set))
		for route := range set {
			routes = append(routes, route)
		}
		sort.Strings(routes)
		result[id] = routes
	}
	return result
}

// ReadLines reads the stations CSV into station id -> daytime routes.
// Routes are space separated in the CSV; rows sharing a stop id are merged.
func ReadLines(r io.Reader) (map[string][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read stations csv header: %w", err)
	}

	idCol, routesCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case StopIDColumn:
			idCol = i
		case RoutesColumn:
			routesCol = i
		}
	}
	if idCol < 0 || routesCol < 0 {
		return nil, fmt.Errorf("stations csv missing %q or %q column", StopIDColumn, RoutesColumn)
	}

	lines := make(map[string][]string)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stations csv: %w", err)
		}
		if idCol >= len(record) || routesCol >= len(record) {
			continue
		}

		id := strings.TrimSpace(record[idCol])
		if id == "" {
			continue
		}
		for _, route := range strings.Fields(record[routesCol]) {
			if !contains(lines[id], route) {
				lines[id] = append(lines[id], route)
			}
		}
	}
	return lines, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
