package arrivals

import (
	"context"
	"log/slog"
	"sort"
	"time"

	gtfsrt "github.com/jamespfennell/gtfs/proto"

	"github.com/jusunglee/mta-arrivals/internal/config"
	"github.com/jusunglee/mta-arrivals/internal/feed"
	"github.com/jusunglee/mta-arrivals/internal/logging"
	"github.com/jusunglee/mta-arrivals/internal/metrics"
	"github.com/jusunglee/mta-arrivals/internal/models"
)

// FeedSource fetches a parsed feed by partition key
type FeedSource interface {
	Fetch(ctx context.Context, key string) (*gtfsrt.FeedMessage, error)
}

// RouteDirectory supplies display metadata for a route
type RouteDirectory interface {
	RouteInfo(route string) models.RouteInfo
}

// Service computes train status for stations from freshly fetched feeds
type Service struct {
	source        FeedSource
	routes        RouteDirectory
	extractor     Extractor
	failurePolicy string
	logger        *slog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the diagnostic logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics counts computations by result on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a status service
func NewService(source FeedSource, routes RouteDirectory, cfg config.ArrivalsConfig, opts ...Option) *Service {
	s := &Service{
		source:        source,
		routes:        routes,
		extractor:     Extractor{Horizon: cfg.Horizon.Std()},
		failurePolicy: cfg.FailurePolicy,
		logger:        slog.Default(),
		now:           time.Now,
	}
	if s.failurePolicy == "" {
		s.failurePolicy = config.FailureBatch
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status fetches every feed the stations need, once each and in order, and
// builds the merged train status. Routes already filled by an earlier station
// are not overwritten.
//
// Under the batch policy any fetch failure turns every route of every station
// into the error sentinel. Under the isolate policy only routes served by the
// failed feed are marked.
func (s *Service) Status(ctx context.Context, stations []models.Station) models.StatusResult {
	start := s.now()
	now := start.Unix()
	result := models.NewStatusResult(start)
	result.Stations = append(result.Stations, stations...)

	if len(stations) == 0 {
		s.record(result.Status)
		return result
	}

	var lines []string
	targets := make([]Target, len(stations))
	times := make([]models.RouteTimes, len(stations))
	for i, station := range stations {
		lines = append(lines, station.Lines...)
		targets[i] = TargetFor(station)
		times[i] = models.RouteTimes{}
	}

	keys, unknown := feed.FeedsForRoutes(lines)
	if len(unknown) > 0 {
		s.logger.Warn("routes without a feed", slog.Any("routes", unknown))
	}

	failed := make(map[string]bool)
	for _, key := range keys {
		message, err := s.source.Fetch(ctx, key)
		if err != nil {
			logging.LogError(s.logger, "feed unavailable", err, slog.String("feed", key))
			failed[key] = true
			if s.failurePolicy == config.FailureBatch {
				break
			}
			continue
		}

		seen := make(map[string]bool)
		for i := range stations {
			for _, route := range s.extractor.Extract(message, targets[i], now, times[i]) {
				seen[route] = true
			}
		}
		s.logger.Debug("found routes in feed", slog.String("feed", key), slog.Any("routes", sortedKeys(seen)))
	}

	switch {
	case len(failed) == 0:
	case s.failurePolicy == config.FailureBatch:
		result.Status = models.ResultError
	default:
		result.Status = models.ResultPartial
	}

	for i, station := range stations {
		status := models.TrainStatus{}
		for _, route := range station.Lines {
			if _, ok := status[route]; ok {
				continue
			}
			key, _ := feed.FeedForRoute(route)
			if result.Status == models.ResultError || failed[key] {
				status[route] = s.errorStatus(route)
				continue
			}
			status[route] = s.routeStatus(station.ID, route, times[i][route], now)
		}
		result.Trains.Merge(status)
	}

	s.record(result.Status)
	logging.LogOperation(s.logger, "status computed",
		slog.String("result", result.Status),
		slog.Int("stations", len(stations)),
		slog.Int("feeds", len(keys)),
		slog.Duration("duration", s.now().Sub(start)))

	return result
}

func (s *Service) routeStatus(stationID, route string, times *models.DirectionTimes, now int64) models.RouteStatus {
	status := s.baseStatus(route)
	status.Uptown = noData()
	status.Downtown = noData()
	if times == nil {
		return status
	}

	if next := SelectArrivals(times.Sorted(models.Uptown), now); len(next) > 0 {
		status.Uptown = models.DirectionStatus{NextArrivals: next}
		s.logger.Debug("selected arrivals",
			slog.String("station", stationID), slog.String("route", route),
			slog.String("direction", models.Uptown), slog.Any("arrivals", next))
	}
	if next := SelectArrivals(times.Sorted(models.Downtown), now); len(next) > 0 {
		status.Downtown = models.DirectionStatus{NextArrivals: next}
		s.logger.Debug("selected arrivals",
			slog.String("station", stationID), slog.String("route", route),
			slog.String("direction", models.Downtown), slog.Any("arrivals", next))
	}
	return status
}

func (s *Service) errorStatus(route string) models.RouteStatus {
	status := s.baseStatus(route)
	status.Uptown = errorLoading()
	status.Downtown = errorLoading()
	return status
}

func (s *Service) baseStatus(route string) models.RouteStatus {
	info := s.routes.RouteInfo(route)
	return models.RouteStatus{
		Color:     info.Color,
		TextColor: info.TextColor,
		Name:      info.Name,
	}
}

func (s *Service) record(result string) {
	if s.metrics != nil {
		s.metrics.StatusRequests.WithLabelValues(result).Inc()
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
