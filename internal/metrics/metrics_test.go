package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	m := New()
	m.FeedBytesTotal.WithLabelValues("nqrw").Add(512)
	m.FeedErrorsTotal.WithLabelValues("ace", "status").Inc()
	m.StatusRequests.WithLabelValues("success").Inc()

	assert.Equal(t, float64(512), testutil.ToFloat64(m.FeedBytesTotal.WithLabelValues("nqrw")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)
	assert.Contains(t, out, `mta_feed_bytes_total{feed="nqrw"} 512`)
	assert.Contains(t, out, `mta_feed_errors_total{feed="ace",reason="status"} 1`)
	assert.Contains(t, out, `mta_status_requests_total{result="success"} 1`)
	assert.Contains(t, out, "go_goroutines")
}

func TestNewUsesIsolatedRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		a := New()
		b := New()
		assert.NotSame(t, a.Registry(), b.Registry())
	})
}
