package mta

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jusunglee/mta-arrivals/internal/config"
	"github.com/jusunglee/mta-arrivals/internal/feed"
	"github.com/jusunglee/mta-arrivals/internal/models"
	"github.com/jusunglee/mta-arrivals/internal/store"
)

const testStations = `{
  "629": {"name": "59 St", "lines": ["4", "5", "6"], "direction_codes": ["629N", "629S"], "lat": 40.762526, "lon": -73.967967},
  "R11": {"name": "Lexington Av/59 St", "lines": ["N", "R", "W"], "direction_codes": ["R11N", "R11S"], "lat": 40.76266, "lon": -73.967258}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *LocalClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "stations.json")
	require.NoError(t, os.WriteFile(path, []byte(testStations), 0o644))

	cfg := DefaultConfig()
	cfg.FeedBaseURL = srv.URL
	cfg.Timeout = time.Second
	cfg.StationsFile = path
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	client, err := NewLocal(cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func feedHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()

		var body []byte
		var err error
		switch {
		case strings.HasSuffix(r.URL.Path, "/gtfs"):
			body, err = feed.MarshalFeed(feed.NewFeedMessage(now,
				feed.NewTripEntity("t6", "6", feed.StopTime{StopID: "629S", Arrival: now.Unix() + 300}),
			))
		case strings.HasSuffix(r.URL.Path, "/gtfs-nqrw"):
			body, err = feed.MarshalFeed(feed.NewFeedMessage(now,
				feed.NewTripEntity("tn", "N", feed.StopTime{StopID: "R11N", Arrival: now.Unix() + 120}),
			))
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err != nil {
			t.Errorf("marshal feed: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(body)
	}
}

func TestGetTrainStatusDefaults(t *testing.T) {
	client := newTestClient(t, feedHandler(t))

	result, err := client.GetTrainStatus(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, models.ResultSuccess, result.Status)
	require.Len(t, result.Stations, 2)
	assert.Equal(t, "629", result.Stations[0].ID)
	assert.Equal(t, []string{"5 min"}, result.Trains["6"].Downtown.NextArrivals)
	assert.Equal(t, []string{"2 min"}, result.Trains["N"].Uptown.NextArrivals)
	assert.Equal(t, "#FCCC0A", result.Trains["N"].Color)
	assert.Equal(t, models.StatusNoData, result.Trains["4"].Uptown.Status)
}

func TestGetTrainStatusSkipsInvalid(t *testing.T) {
	client := newTestClient(t, feedHandler(t))

	result, err := client.GetTrainStatus(context.Background(), []string{"bogus", "R11"})
	require.NoError(t, err)
	require.Len(t, result.Stations, 1)
	assert.Equal(t, "R11", result.Stations[0].ID)
	assert.NotContains(t, result.Trains, "6")

	result, err = client.GetTrainStatus(context.Background(), []string{"bogus"})
	require.NoError(t, err)
	assert.Equal(t, models.ResultSuccess, result.Status)
	assert.Empty(t, result.Trains)
}

func TestGetTrainStatusUpstreamFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	result, err := client.GetTrainStatus(context.Background(), []string{"R11"})
	require.NoError(t, err)
	assert.Equal(t, models.ResultError, result.Status)
	assert.Equal(t, []string{models.ErrorLoadingData}, result.Trains["R"].Downtown.NextArrivals)
}

func TestLookups(t *testing.T) {
	client := newTestClient(t, feedHandler(t))

	stations, err := client.GetStations()
	require.NoError(t, err)
	assert.Len(t, stations, 2)

	byRoute, err := client.GetStationsByRoute("w")
	require.NoError(t, err)
	require.Len(t, byRoute, 1)
	assert.Equal(t, "R11", byRoute[0].ID)

	near, err := client.GetStationsByLocation(40.7626, -73.9672, 1)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, "R11", near[0].ID)

	_, err = client.GetStationsByIDs([]string{"nope"})
	assert.True(t, errors.Is(err, store.ErrStationNotFound))

	station, err := client.GetStation("629")
	require.NoError(t, err)
	assert.Equal(t, "59 St", station.Name)

	_, err = client.GetStation("nope")
	assert.True(t, errors.Is(err, store.ErrStationNotFound))
	assert.Contains(t, err.Error(), "nope")

	routes, err := client.GetRoutes()
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "5", "6", "N", "R", "W"}, routes)

	assert.Equal(t, "Shuttle", client.GetRouteInfo("S").Name)
}

func TestNewLocalMissingStations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StationsFile = filepath.Join(t.TempDir(), "missing.json")
	_, err := NewLocal(cfg)
	assert.Error(t, err)
}

func TestNewLocalZeroTimeoutIsBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.json")
	require.NoError(t, os.WriteFile(path, []byte(testStations), 0o644))

	client, err := NewLocal(Config{FeedBaseURL: "http://127.0.0.1:1/", StationsFile: path})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, config.DefaultFeedTimeout, client.fetcher.Timeout())
}
