package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloseMetrics_ObserveClose(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCloseMetrics(reg)

	m.ObserveClose(OutcomeClosed, 3, 20*time.Millisecond)
	m.ObserveClose(OutcomeReplayed, 3, time.Millisecond)
	m.ObserveClose(OutcomeReplayed, 3, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues(OutcomeClosed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues(OutcomeReplayed)))
	// replays do not re-record transfer counts
	assert.Equal(t, uint64(1), histogramCount(t, reg, "settlement_close_transfers"))
}

func histogramCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.NotEmpty(t, mf.GetMetric())
			return mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var c *CloseMetrics
	var o *OutboxMetrics
	var h *HTTPMetrics

	assert.NotPanics(t, func() {
		c.ObserveClose(OutcomeClosed, 1, time.Second)
		o.ObservePublish(PublishSucceeded)
		o.ObserveBatch(3)
		h.ObserveRequest("/health", http.MethodGet, 200, time.Millisecond)
	})
}

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.ObservePublish(PublishSucceeded)
	m.ObservePublish(PublishFailed)
	m.ObservePublish(PublishSucceeded)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.published.WithLabelValues(PublishSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.published.WithLabelValues(PublishFailed)))
}

func TestHandler_ExposesRegisteredCollectors(t *testing.T) {
	reg := NewRegistry()
	h := NewHTTPMetrics(reg)
	h.ObserveRequest("/api/v1/settlements/:id/close", http.MethodPost, 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `settlement_http_requests_total{method="POST",route="/api/v1/settlements/:id/close",status="200"} 1`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
