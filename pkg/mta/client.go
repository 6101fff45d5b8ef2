package mta

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jusunglee/mta-arrivals/internal/config"
	"github.com/jusunglee/mta-arrivals/internal/metrics"
	"github.com/jusunglee/mta-arrivals/internal/models"
)

// Client defines the interface for accessing MTA data
// Abstracts different data sources (local vs remote) behind common interface
type Client interface {
	// GetTrainStatus returns arrivals for the given station ids.
	// Unknown ids are skipped; an empty list means the default stations.
	GetTrainStatus(ctx context.Context, ids []string) (models.StatusResult, error)

	GetStations() ([]models.Station, error)
	GetStation(id string) (models.Station, error)
	GetStationsByLocation(lat, lon float64, limit int) ([]models.Station, error)
	GetStationsByRoute(route string) ([]models.Station, error)
	GetStationsByIDs(ids []string) ([]models.Station, error)

	GetRoutes() ([]string, error)
	GetRouteInfo(route string) models.RouteInfo
}

// Config holds configuration for the MTA client
// APIKey required for accessing MTA's GTFS-RT feeds
// A zero Timeout means config.DefaultFeedTimeout; feed requests are never unbounded
type Config struct {
	APIKey          string
	FeedBaseURL     string
	Timeout         time.Duration
	StationsFile    string
	DefaultStations []string
	Horizon         time.Duration
	FailurePolicy   string

	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	HTTPClient *http.Client
}

// DefaultConfig returns default configuration
// 10-second timeout keeps one slow feed from stalling a page load
func DefaultConfig() Config {
	return FromSettings(config.Default())
}

// FromSettings maps a loaded configuration file onto client settings
func FromSettings(cfg config.Config) Config {
	return Config{
		APIKey:          cfg.Feeds.APIKey,
		FeedBaseURL:     cfg.Feeds.BaseURL,
		Timeout:         cfg.Feeds.Timeout.Std(),
		StationsFile:    cfg.Data.StationsFile,
		DefaultStations: cfg.Data.DefaultStations,
		Horizon:         cfg.Arrivals.Horizon.Std(),
		FailurePolicy:   cfg.Arrivals.FailurePolicy,
	}
}

func (c Config) feeds() config.FeedsConfig {
	return config.FeedsConfig{
		BaseURL: c.FeedBaseURL,
		APIKey:  c.APIKey,
		Timeout: config.Duration(c.Timeout),
	}
}

func (c Config) arrivals() config.ArrivalsConfig {
	return config.ArrivalsConfig{
		Horizon:       config.Duration(c.Horizon),
		FailurePolicy: c.FailurePolicy,
	}
}
