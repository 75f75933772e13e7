// Package metrics exposes Prometheus instrumentation for the API and the bot.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Collector owns a private registry so several collectors can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	refreshRuns   *prometheus.CounterVec
	refreshSkips  prometheus.Counter
	newItems      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	subscribers   prometheus.Gauge
	sessions      prometheus.Gauge
}

// NewCollector creates and registers all metrics under namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	collector := &Collector{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		refreshRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_refresh_total",
				Help:      "Snapshot refreshes by result",
			},
			[]string{"result"},
		),
		refreshSkips: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_refresh_skipped_total",
				Help:      "Refresh ticks skipped because a cycle was still running",
			},
		),
		newItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detected_items_total",
				Help:      "Newly detected conferences and subthemes",
			},
			[]string{"kind"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notification deliveries by result",
			},
			[]string{"result"},
		),
		subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subscribers",
				Help:      "Chats subscribed to notifications",
			},
		),
		sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions",
				Help:      "Live chat sessions",
			},
		),
	}

	registry.MustRegister(
		collector.httpRequests,
		collector.httpDuration,
		collector.refreshRuns,
		collector.refreshSkips,
		collector.newItems,
		collector.notifications,
		collector.subscribers,
		collector.sessions,
	)
	return collector
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveRefresh(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.refreshRuns.WithLabelValues(resultFailure).Inc()
		return
	}
	c.refreshRuns.WithLabelValues(resultSuccess).Inc()
}

func (c *Collector) ObserveRefreshSkipped() {
	if c == nil {
		return
	}
	c.refreshSkips.Inc()
}

func (c *Collector) ObserveDelta(newConferences, newSubthemes int) {
	if c == nil {
		return
	}
	c.newItems.WithLabelValues("conference").Add(float64(newConferences))
	c.newItems.WithLabelValues("subtheme").Add(float64(newSubthemes))
}

func (c *Collector) ObserveNotification(delivered bool) {
	if c == nil {
		return
	}
	if delivered {
		c.notifications.WithLabelValues(resultSuccess).Inc()
		return
	}
	c.notifications.WithLabelValues(resultFailure).Inc()
}

func (c *Collector) SetSubscribers(count int) {
	if c == nil {
		return
	}
	c.subscribers.Set(float64(count))
}

func (c *Collector) SetSessions(count int) {
	if c == nil {
		return
	}
	c.sessions.Set(float64(count))
}
