package mta

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jusunglee/mta-arrivals/internal/arrivals"
	"github.com/jusunglee/mta-arrivals/internal/feed"
	"github.com/jusunglee/mta-arrivals/internal/models"
	"github.com/jusunglee/mta-arrivals/internal/store"
)

// LocalClient implements the Client interface for local usage
// Loads the station table once and fetches feeds on every status request
type LocalClient struct {
	store           *store.Store
	fetcher         *feed.Fetcher
	service         *arrivals.Service
	defaultStations []string
	logger          *slog.Logger
}

// NewLocal creates a new local MTA client
// Reads the station table from config.StationsFile
func NewLocal(config Config) (*LocalClient, error) {
	s, err := store.Open(config.StationsFile)
	if err != nil {
		return nil, fmt.Errorf("load stations: %w", err)
	}
	client := NewLocalWithStore(config, s)
	client.logger.Info("station table loaded",
		slog.String("file", config.StationsFile),
		slog.Int("stations", s.Len()))
	return client, nil
}

// NewLocalWithStore creates a local client around an already loaded store
func NewLocalWithStore(config Config, s *store.Store) *LocalClient {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fetcherOpts := []feed.Option{feed.WithLogger(logger)}
	serviceOpts := []arrivals.Option{arrivals.WithLogger(logger)}
	if config.HTTPClient != nil {
		fetcherOpts = append(fetcherOpts, feed.WithHTTPClient(config.HTTPClient))
	}
	if config.Metrics != nil {
		fetcherOpts = append(fetcherOpts, feed.WithMetrics(config.Metrics))
		serviceOpts = append(serviceOpts, arrivals.WithMetrics(config.Metrics))
	}

	fetcher := feed.NewFetcher(config.feeds(), fetcherOpts...)

	return &LocalClient{
		store:           s,
		fetcher:         fetcher,
		service:         arrivals.NewService(fetcher, s, config.arrivals(), serviceOpts...),
		defaultStations: config.DefaultStations,
		logger:          logger,
	}
}

// Close gracefully shuts down the local client
// Idle upstream connections are dropped; nothing else is held between requests
func (c *LocalClient) Close() {
	c.fetcher.Close()
}

func (c *LocalClient) GetTrainStatus(ctx context.Context, ids []string) (models.StatusResult, error) {
	if len(ids) == 0 {
		ids = c.defaultStations
	}

	stations, invalid := c.store.ResolveStations(ids)
	if len(invalid) > 0 {
		c.logger.Warn("skipping unknown stations", slog.Any("ids", invalid))
	}

	return c.service.Status(ctx, stations), nil
}

func (c *LocalClient) GetStations() ([]models.Station, error) {
	return c.store.Stations(), nil
}

func (c *LocalClient) GetStation(id string) (models.Station, error) {
	return c.store.Station(id)
}

func (c *LocalClient) GetStationsByLocation(lat, lon float64, limit int) ([]models.Station, error) {
	return c.store.StationsByLocation(lat, lon, limit), nil
}

func (c *LocalClient) GetStationsByRoute(route string) ([]models.Station, error) {
	return c.store.StationsByRoute(route)
}

func (c *LocalClient) GetStationsByIDs(ids []string) ([]models.Station, error) {
	stations, _ := c.store.ResolveStations(ids)
	if len(stations) == 0 {
		return nil, fmt.Errorf("%w: %v", store.ErrStationNotFound, ids)
	}
	return stations, nil
}

func (c *LocalClient) GetRoutes() ([]string, error) {
	return c.store.Routes(), nil
}

func (c *LocalClient) GetRouteInfo(route string) models.RouteInfo {
	return c.store.RouteInfo(route)
}
