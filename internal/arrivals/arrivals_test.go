package arrivals

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	gtfsrt "github.com/jamespfennell/gtfs/proto"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jusunglee/mta-arrivals/internal/config"
	"github.com/jusunglee/mta-arrivals/internal/feed"
	"github.com/jusunglee/mta-arrivals/internal/metrics"
	"github.com/jusunglee/mta-arrivals/internal/models"
)

var testNow = time.Unix(1_700_000_000, 0)

type fakeSource struct {
	feeds map[string]*gtfsrt.FeedMessage
	errs  map[string]error
	calls []string
}

func (f *fakeSource) Fetch(_ context.Context, key string) (*gtfsrt.FeedMessage, error) {
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	if m, ok := f.feeds[key]; ok {
		return m, nil
	}
	return feed.NewFeedMessage(testNow), nil
}

type fakeRoutes struct{}

func (fakeRoutes) RouteInfo(route string) models.RouteInfo {
	return models.RouteInfo{Color: "#000000", TextColor: "#FFFFFF", Name: route + " Train"}
}

var (
	lexington = models.Station{ID: "629", Name: "86 St", Lines: []string{"4", "5", "6"}, DirectionCodes: []string{"629N", "629S"}}
	lexAve    = models.Station{ID: "R11", Name: "Lexington Av/59 St", Lines: []string{"N", "R", "W"}, DirectionCodes: []string{"R11N", "R11S"}}
)

func newTestService(source FeedSource, cfg config.ArrivalsConfig, opts ...Option) *Service {
	opts = append([]Option{
		WithClock(func() time.Time { return testNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return NewService(source, fakeRoutes{}, cfg, opts...)
}

func at(offset int64) int64 { return testNow.Unix() + offset }

func TestFormatArrival(t *testing.T) {
	now := testNow.Unix()
	tests := []struct {
		name   string
		offset int64
		want   string
	}{
		{"exactly now", 0, "Now"},
		{"recently passed", -30, "Now"},
		{"under a minute", 59, "Now"},
		{"one minute", 60, "1 min"},
		{"rounds half up", 90, "2 min"},
		{"rounds down", 89, "1 min"},
		{"eight minutes", 500, "8 min"},
		{"two minutes", 120, "2 min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatArrival(now+tt.offset, now))
		})
	}
}

func TestSelectArrivals(t *testing.T) {
	now := testNow.Unix()
	got := SelectArrivals([]int64{now + 60, now + 300, now + 600, now + 900}, now)
	assert.Equal(t, []string{"1 min", "5 min", "10 min"}, got)

	assert.Empty(t, SelectArrivals(nil, now))
}

func TestExtractorAccept(t *testing.T) {
	now := testNow.Unix()
	e := Extractor{}

	assert.True(t, e.Accept(now-30, now))
	assert.False(t, e.Accept(now-90, now))
	assert.False(t, e.Accept(now-60, now), "lower bound is strict")
	assert.True(t, e.Accept(now+4*3600, now), "no horizon means no upper bound")

	e.Horizon = 30 * time.Minute
	assert.True(t, e.Accept(now+1800, now))
	assert.False(t, e.Accept(now+1801, now))
}

func TestExtract(t *testing.T) {
	message := feed.NewFeedMessage(testNow,
		feed.NewTripEntity("t1", "6", feed.StopTime{StopID: "629N", Arrival: at(120)}),
		feed.NewTripEntity("t2", "6X", feed.StopTime{StopID: "629N", Arrival: at(300)}),
		feed.NewTripEntity("t3", "6", feed.StopTime{StopID: "629N", Arrival: at(120)}),
		feed.NewTripEntity("t4", "4", feed.StopTime{StopID: "629S", Departure: at(200)}),
		feed.NewTripEntity("t5", "5", feed.StopTime{StopID: "629S", Arrival: at(-90)}),
		feed.NewTripEntity("t6", "7", feed.StopTime{StopID: "629N", Arrival: at(60)}),
		feed.NewTripEntity("t7", "5", feed.StopTime{StopID: "630S", Arrival: at(60)}),
		feed.NewVehicleEntity("v1", "6"),
	)

	times := models.RouteTimes{}
	seen := Extractor{}.Extract(message, TargetFor(lexington), testNow.Unix(), times)

	assert.Equal(t, []string{"4", "5", "6", "6X"}, seen)
	require.Contains(t, times, "6")
	assert.Equal(t, []int64{at(120), at(300)}, times["6"].Sorted(models.Uptown))
	assert.Empty(t, times["6"].Sorted(models.Downtown))
	assert.NotContains(t, times, "4", "departure-only updates are ignored")
	assert.NotContains(t, times, "7")
	assert.NotContains(t, times, "5")
}

func TestStatusSuccess(t *testing.T) {
	source := &fakeSource{feeds: map[string]*gtfsrt.FeedMessage{
		"nqrw": feed.NewFeedMessage(testNow,
			feed.NewTripEntity("n1", "N", feed.StopTime{StopID: "R11N", Arrival: at(120)}),
			feed.NewTripEntity("r1", "R", feed.StopTime{StopID: "R11S", Arrival: at(500)}),
		),
	}}
	m := metrics.New()
	svc := newTestService(source, config.ArrivalsConfig{}, WithMetrics(m))

	result := svc.Status(context.Background(), []models.Station{lexAve})

	assert.Equal(t, models.ResultSuccess, result.Status)
	assert.Equal(t, "2023-11-14 22:13:20 UTC", result.Timestamp)
	assert.Equal(t, []string{"nqrw"}, source.calls)
	require.Len(t, result.Stations, 1)
	assert.Equal(t, "R11", result.Stations[0].ID)

	n := result.Trains["N"]
	assert.Equal(t, []string{"2 min"}, n.Uptown.NextArrivals)
	assert.Equal(t, models.StatusNoData, n.Downtown.Status)
	assert.Equal(t, []string{}, n.Downtown.NextArrivals)
	assert.Equal(t, "N Train", n.Name)

	r := result.Trains["R"]
	assert.Equal(t, []string{"8 min"}, r.Downtown.NextArrivals)
	assert.Equal(t, models.StatusNoData, r.Uptown.Status)

	w := result.Trains["W"]
	assert.Equal(t, models.StatusNoData, w.Uptown.Status)
	assert.Equal(t, models.StatusNoData, w.Downtown.Status)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.StatusRequests.WithLabelValues(models.ResultSuccess)))
}

func TestStatusArrivalsAreCappedAndAscending(t *testing.T) {
	source := &fakeSource{feeds: map[string]*gtfsrt.FeedMessage{
		"1234567": feed.NewFeedMessage(testNow,
			feed.NewTripEntity("a", "6", feed.StopTime{StopID: "629S", Arrival: at(900)}),
			feed.NewTripEntity("b", "6X", feed.StopTime{StopID: "629S", Arrival: at(30)}),
			feed.NewTripEntity("c", "6", feed.StopTime{StopID: "629S", Arrival: at(400)}),
			feed.NewTripEntity("d", "6", feed.StopTime{StopID: "629S", Arrival: at(400)}),
			feed.NewTripEntity("e", "6", feed.StopTime{StopID: "629S", Arrival: at(200)}),
		),
	}}
	svc := newTestService(source, config.ArrivalsConfig{})

	result := svc.Status(context.Background(), []models.Station{lexington})

	assert.Equal(t, []string{"Now", "3 min", "7 min"}, result.Trains["6"].Downtown.NextArrivals)
	assert.NotContains(t, result.Trains, "6X")
}

func TestStatusHorizon(t *testing.T) {
	source := &fakeSource{feeds: map[string]*gtfsrt.FeedMessage{
		"1234567": feed.NewFeedMessage(testNow,
			feed.NewTripEntity("a", "4", feed.StopTime{StopID: "629N", Arrival: at(300)}),
			feed.NewTripEntity("b", "4", feed.StopTime{StopID: "629N", Arrival: at(3600)}),
		),
	}}
	svc := newTestService(source, config.ArrivalsConfig{Horizon: config.Duration(20 * time.Minute)})

	result := svc.Status(context.Background(), []models.Station{lexington})
	assert.Equal(t, []string{"5 min"}, result.Trains["4"].Uptown.NextArrivals)
}

func TestStatusBatchFailure(t *testing.T) {
	source := &fakeSource{errs: map[string]error{"1234567": errors.New("boom")}}
	m := metrics.New()
	svc := newTestService(source, config.ArrivalsConfig{FailurePolicy: config.FailureBatch}, WithMetrics(m))

	result := svc.Status(context.Background(), []models.Station{lexington, lexAve})

	assert.Equal(t, models.ResultError, result.Status)
	assert.Equal(t, []string{"1234567"}, source.calls, "remaining feeds are skipped")
	for _, route := range []string{"4", "5", "6", "N", "R", "W"} {
		status := result.Trains[route]
		assert.Equal(t, []string{models.ErrorLoadingData}, status.Uptown.NextArrivals, route)
		assert.Equal(t, []string{models.ErrorLoadingData}, status.Downtown.NextArrivals, route)
		assert.Empty(t, status.Uptown.Status)
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StatusRequests.WithLabelValues(models.ResultError)))
}

func TestStatusIsolatedFailure(t *testing.T) {
	source := &fakeSource{
		feeds: map[string]*gtfsrt.FeedMessage{
			"nqrw": feed.NewFeedMessage(testNow,
				feed.NewTripEntity("n1", "N", feed.StopTime{StopID: "R11N", Arrival: at(120)}),
			),
		},
		errs: map[string]error{"1234567": feed.ErrTimeout},
	}
	svc := newTestService(source, config.ArrivalsConfig{FailurePolicy: config.FailureIsolate})

	result := svc.Status(context.Background(), []models.Station{lexington, lexAve})

	assert.Equal(t, models.ResultPartial, result.Status)
	assert.Equal(t, []string{"1234567", "nqrw"}, source.calls)
	assert.Equal(t, []string{models.ErrorLoadingData}, result.Trains["6"].Uptown.NextArrivals)
	assert.Equal(t, []string{"2 min"}, result.Trains["N"].Uptown.NextArrivals)
}

func TestStatusMergesFirstStationWins(t *testing.T) {
	first := models.Station{ID: "A", Lines: []string{"6"}, DirectionCodes: []string{"AN", "AS"}}
	second := models.Station{ID: "B", Lines: []string{"6", "4"}, DirectionCodes: []string{"BN", "BS"}}

	source := &fakeSource{feeds: map[string]*gtfsrt.FeedMessage{
		"1234567": feed.NewFeedMessage(testNow,
			feed.NewTripEntity("x", "6", feed.StopTime{StopID: "AN", Arrival: at(60)}),
			feed.NewTripEntity("y", "6", feed.StopTime{StopID: "BN", Arrival: at(600)}),
			feed.NewTripEntity("z", "4", feed.StopTime{StopID: "BS", Arrival: at(240)}),
		),
	}}
	svc := newTestService(source, config.ArrivalsConfig{})

	result := svc.Status(context.Background(), []models.Station{first, second})

	assert.Equal(t, []string{"1234567"}, source.calls, "shared feeds are fetched once")
	assert.Equal(t, []string{"1 min"}, result.Trains["6"].Uptown.NextArrivals)
	assert.Equal(t, []string{"4 min"}, result.Trains["4"].Downtown.NextArrivals)
	assert.Equal(t, []string{"4", "6"}, result.Trains.Routes())
}

func TestStatusNoStations(t *testing.T) {
	source := &fakeSource{}
	svc := newTestService(source, config.ArrivalsConfig{})

	result := svc.Status(context.Background(), nil)

	assert.Equal(t, models.ResultSuccess, result.Status)
	assert.Empty(t, result.Trains)
	assert.Empty(t, source.calls)
}

func TestStatusUnknownRouteHasNoData(t *testing.T) {
	station := models.Station{ID: "X", Lines: []string{"T"}, DirectionCodes: []string{"XN", "XS"}}
	source := &fakeSource{}
	svc := newTestService(source, config.ArrivalsConfig{})

	result := svc.Status(context.Background(), []models.Station{station})

	assert.Empty(t, source.calls)
	assert.Equal(t, models.StatusNoData, result.Trains["T"].Uptown.Status)
}
