package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	gtfsrt "github.com/jamespfennell/gtfs/proto"
	"golang.org/x/sync/singleflight"
	"google.golang.org/protobuf/proto"

	"github.com/jusunglee/mta-arrivals/internal/config"
	"github.com/jusunglee/mta-arrivals/internal/logging"
	"github.com/jusunglee/mta-arrivals/internal/metrics"
)

// ProtobufContentType is sent as the Accept header on every feed request
const ProtobufContentType = "application/x-google-protobuf"

var (
	// ErrUnknownFeed is returned for a partition key missing from FeedPaths
	ErrUnknownFeed = errors.New("unknown feed")
	// ErrTimeout is returned when the upstream does not answer within the configured timeout
	ErrTimeout = errors.New("feed request timed out")
)

// StatusError reports a non-200 response from the upstream
type StatusError struct {
	Feed string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed %s: HTTP %d", e.Feed, e.Code)
}

// Fetcher downloads and decodes GTFS-RT feeds.
// Concurrent fetches of the same feed share one upstream request; nothing is kept afterwards.
type Fetcher struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
	group      singleflight.Group
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithHTTPClient replaces the default client. A zero Timeout is replaced with
// config.DefaultFeedTimeout on a copy of c.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = c }
}

// WithMetrics records fetch metrics on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// WithLogger sets the logger used for fetch diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a fetcher for the feeds under cfg.BaseURL.
// Upstream calls are always bounded: a non-positive cfg.Timeout falls back to
// config.DefaultFeedTimeout.
func NewFetcher(cfg config.FeedsConfig, opts ...Option) *Fetcher {
	f := &Fetcher{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout.Std(),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.httpClient.Timeout <= 0 {
		client := *f.httpClient
		client.Timeout = config.DefaultFeedTimeout
		f.httpClient = &client
	}
	return f
}

// Timeout is the bound applied to every upstream request
func (f *Fetcher) Timeout() time.Duration {
	return f.httpClient.Timeout
}

// Fetch downloads and parses the feed for partition key.
// The caller's context bounds how long it waits; the shared upstream call is bounded by the client timeout.
func (f *Fetcher) Fetch(ctx context.Context, key string) (*gtfsrt.FeedMessage, error) {
	url, err := FeedURL(f.baseURL, key)
	if err != nil {
		return nil, err
	}

	ch := f.group.DoChan(key, func() (any, error) {
		return f.fetch(context.WithoutCancel(ctx), key, url)
	})

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("fetch feed %s: %w: %w", key, ErrTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("fetch feed %s: %w", key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*gtfsrt.FeedMessage), nil
	}
}

func (f *Fetcher) fetch(ctx context.Context, key, url string) (*gtfsrt.FeedMessage, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for feed %s: %w", key, err)
	}
	req.Header.Set("Accept", ProtobufContentType)
	if f.apiKey != "" {
		req.Header.Set("x-api-key", f.apiKey)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, f.transportError(key, err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, f.logger, "feed_response_body")

	if resp.StatusCode != http.StatusOK {
		f.recordError(key, "status")
		return nil, &StatusError{Feed: key, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, f.transportError(key, err)
	}

	message := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(body, message); err != nil {
		f.recordError(key, "decode")
		return nil, fmt.Errorf("decode feed %s: %w", key, err)
	}

	elapsed := time.Since(start)
	if f.metrics != nil {
		f.metrics.FeedFetchSeconds.WithLabelValues(key).Observe(elapsed.Seconds())
		f.metrics.FeedBytesTotal.WithLabelValues(key).Add(float64(len(body)))
		f.metrics.FeedEntities.WithLabelValues(key).Set(float64(len(message.GetEntity())))
	}
	f.logger.Debug("feed fetched",
		slog.String("feed", key),
		slog.Int("bytes", len(body)),
		slog.Int("entities", len(message.GetEntity())),
		slog.Duration("duration", elapsed))

	return message, nil
}

func (f *Fetcher) transportError(key string, err error) error {
	if isTimeout(err) {
		f.recordError(key, "timeout")
		return fmt.Errorf("fetch feed %s: %w: %w", key, ErrTimeout, err)
	}
	f.recordError(key, "transport")
	return fmt.Errorf("fetch feed %s: %w", key, err)
}

func (f *Fetcher) recordError(key, reason string) {
	if f.metrics != nil {
		f.metrics.FeedErrorsTotal.WithLabelValues(key, reason).Inc()
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Close drops idle upstream connections
func (f *Fetcher) Close() {
	f.httpClient.CloseIdleConnections()
}
