package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountsRefreshesAndNotifications(t *testing.T) {
	collector := NewCollector("confdesk")

	collector.ObserveRefresh(nil)
	collector.ObserveRefresh(nil)
	collector.ObserveRefresh(errors.New("db down"))
	collector.ObserveRefreshSkipped()
	collector.ObserveDelta(2, 5)
	collector.ObserveNotification(true)
	collector.ObserveNotification(false)
	collector.SetSubscribers(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.refreshRuns.WithLabelValues(resultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.refreshRuns.WithLabelValues(resultFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.refreshSkips))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.newItems.WithLabelValues("conference")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.newItems.WithLabelValues("subtheme")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.notifications.WithLabelValues(resultFailure)))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.subscribers))
}

func TestCollectorsAreIndependent(t *testing.T) {
	first := NewCollector("confdesk")
	second := NewCollector("confdesk")
	first.ObserveNotification(true)
	assert.Equal(t, 0.0, testutil.ToFloat64(second.notifications.WithLabelValues(resultSuccess)))
}

func TestHandlerExposesMetrics(t *testing.T) {
	collector := NewCollector("confdesk")
	collector.ObserveHTTPRequest(http.MethodGet, "/conferences/", http.StatusOK, 15*time.Millisecond)

	recorder := httptest.NewRecorder()
	collector.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `confdesk_http_requests_total{method="GET",route="/conferences/",status="200"} 1`)
}

func TestNilCollectorIsSafe(t *testing.T) {
	var collector *Collector
	collector.ObserveRefresh(nil)
	collector.ObserveNotification(true)
	collector.SetSessions(1)
}
