package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jusunglee/mta-arrivals/internal/config"
	"github.com/jusunglee/mta-arrivals/internal/metrics"
)

func newTestFetcher(baseURL string, timeout time.Duration, opts ...Option) *Fetcher {
	return NewFetcher(config.FeedsConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: config.Duration(timeout),
	}, opts...)
}

func TestFetchDecodesFeed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body, err := MarshalFeed(NewFeedMessage(now,
		NewTripEntity("t1", "N", StopTime{StopID: "R11N", Arrival: now.Unix() + 120}),
		NewVehicleEntity("v1", "N"),
	))
	require.NoError(t, err)

	var gotAccept, gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotKey = r.Header.Get("x-api-key")
		gotPath = r.URL.Path
		w.Write(body)
	}))
	defer srv.Close()

	m := metrics.New()
	f := newTestFetcher(srv.URL, time.Second, WithMetrics(m))

	message, err := f.Fetch(context.Background(), "nqrw")
	require.NoError(t, err)

	assert.Equal(t, ProtobufContentType, gotAccept)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "/gtfs-nqrw", gotPath)
	require.Len(t, message.GetEntity(), 2)
	assert.Equal(t, "N", message.GetEntity()[0].GetTripUpdate().GetTrip().GetRouteId())
	assert.Equal(t, float64(len(body)), testutil.ToFloat64(m.FeedBytesTotal.WithLabelValues("nqrw")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FeedEntities.WithLabelValues("nqrw")))
}

func TestFetchErrors(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		m := metrics.New()
		f := newTestFetcher(srv.URL, time.Second, WithMetrics(m))
		_, err := f.Fetch(context.Background(), "ace")

		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
		assert.Equal(t, "ace", statusErr.Feed)
		assert.Equal(t, float64(1), testutil.ToFloat64(m.FeedErrorsTotal.WithLabelValues("ace", "status")))
	})

	t.Run("malformed payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>not a protobuf</html>"))
		}))
		defer srv.Close()

		f := newTestFetcher(srv.URL, time.Second)
		_, err := f.Fetch(context.Background(), "g")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode feed g")
	})

	t.Run("upstream timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		f := newTestFetcher(srv.URL, 50*time.Millisecond)
		_, err := f.Fetch(context.Background(), "l")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		f := newTestFetcher(url, time.Second)
		_, err := f.Fetch(context.Background(), "jz")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrTimeout))
	})

	t.Run("unknown feed", func(t *testing.T) {
		f := newTestFetcher("http://127.0.0.1:1", time.Second)
		_, err := f.Fetch(context.Background(), "7")
		assert.True(t, errors.Is(err, ErrUnknownFeed))
	})

	t.Run("caller context cancelled", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		f := newTestFetcher(srv.URL, 5*time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := f.Fetch(ctx, "bdfm")
		assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
	})
}

func TestFetchCollapsesConcurrentRequests(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body, err := MarshalFeed(NewFeedMessage(now))
	require.NoError(t, err)

	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write(body)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, 5*time.Second)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.Fetch(context.Background(), "1234567")
		}(i)
	}

	// Give every goroutine time to join the in-flight call
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())

	// Nothing is cached once the call completes
	_, err = f.Fetch(context.Background(), "1234567")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestNewFetcherBoundsTimeout(t *testing.T) {
	tests := []struct {
		name string
		cfg  time.Duration
		opts []Option
		want time.Duration
	}{
		{"configured", 2 * time.Second, nil, 2 * time.Second},
		{"zero", 0, nil, config.DefaultFeedTimeout},
		{"negative", -time.Second, nil, config.DefaultFeedTimeout},
		{"client without timeout", 2 * time.Second, []Option{WithHTTPClient(&http.Client{})}, config.DefaultFeedTimeout},
		{"client with timeout", 0, []Option{WithHTTPClient(&http.Client{Timeout: time.Second})}, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFetcher("http://127.0.0.1:1", tt.cfg, tt.opts...)
			assert.Equal(t, tt.want, f.Timeout())
		})
	}

	shared := &http.Client{}
	newTestFetcher("http://127.0.0.1:1", 0, WithHTTPClient(shared))
	assert.Zero(t, shared.Timeout, "caller's client must not be modified")
}
