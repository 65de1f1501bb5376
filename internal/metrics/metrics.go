// Package metrics exposes Prometheus counters for the shortener.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlinks_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shortlinks_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// AllocationsTotal counts allocation outcomes: created, custom_taken,
	// blacklisted, exhausted, error.
	AllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlinks_allocations_total",
			Help: "Short code allocations by outcome",
		},
		[]string{"outcome"},
	)

	AllocationCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortlinks_allocation_collisions_total",
			Help: "Generated codes that were already taken",
		},
	)

	RedirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlinks_redirects_total",
			Help: "Resolve requests by result",
		},
		[]string{"result"},
	)

	ClicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlinks_clicks_total",
			Help: "Click events by persistence result",
		},
		[]string{"result"},
	)

	ClickQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shortlinks_click_queue_depth",
			Help: "Click events waiting in the recorder queue",
		},
	)

	GeoLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlinks_geo_lookups_total",
			Help: "Region lookups by source",
		},
		[]string{"source"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortlinks_cache_lookups_total",
			Help: "Mapping cache lookups by result",
		},
		[]string{"result"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordAllocation(outcome string) {
	AllocationsTotal.WithLabelValues(outcome).Inc()
}

func RecordCollision() {
	AllocationCollisions.Inc()
}

// RecordRedirect counts a resolve as "hit" or "miss".
func RecordRedirect(hit bool) {
	if hit {
		RedirectsTotal.WithLabelValues("hit").Inc()
		return
	}
	RedirectsTotal.WithLabelValues("miss").Inc()
}

func RecordClicks(result string, n int) {
	ClicksTotal.WithLabelValues(result).Add(float64(n))
}

func RecordGeoLookup(source string) {
	GeoLookupsTotal.WithLabelValues(source).Inc()
}

func RecordCacheLookup(hit bool) {
	if hit {
		CacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	CacheLookupsTotal.WithLabelValues("miss").Inc()
}
