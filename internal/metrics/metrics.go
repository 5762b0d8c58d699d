// Package metrics exposes Prometheus collectors for the catalog crawler.
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
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_crawler_requests_total",
			Help: "Total number of HTTP requests sent, labeled by status class.",
		},
		[]string{"class"},
	)
	requestDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_crawler_request_duration_seconds",
			Help:    "Histogram of successful request latencies.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_crawler_retries_total",
		Help: "The total number of retries scheduled after transient failures.",
	})
	robotsBlockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_crawler_robots_blocked_total",
		Help: "The total number of URLs skipped because robots.txt disallowed them.",
	})
	robotsFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_crawler_robots_fallback_total",
		Help: "The total number of robots.txt probes that timed out and fell back to allow-all.",
	})
	rateLimitWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_crawler_rate_limit_wait_seconds",
			Help:    "Time spent waiting on the global request ceiling.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_crawler_requests_in_flight",
		Help: "Number of HTTP requests currently in flight.",
	})
	discoveryPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_crawler_discovery_pages_total",
			Help: "Pages processed during discovery, labeled by kind.",
		},
		[]string{"kind"},
	)
	productsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_crawler_products_total",
			Help: "Product pages processed, labeled by outcome.",
		},
		[]string{"status"},
	)
	frontierPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_crawler_frontier_pending",
		Help: "URLs waiting for a discovery fetch.",
	})
	frontierProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_crawler_frontier_products",
		Help: "Product URLs known to the frontier.",
	})
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_crawler_http_requests_total",
			Help: "Requests served by the status server, labeled by method and code.",
		},
		[]string{"method", "code"},
	)
	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_crawler_http_request_duration_seconds",
			Help:    "Histogram of status server latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ClassifyStatus groups HTTP status codes; zero means a network failure.
func ClassifyStatus(code int) string {
	switch {
	case code == 0:
		return "error"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code == 429:
		return "429"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return strconv.Itoa(code)
	}
}

// ObserveFetch records one request outcome.
func ObserveFetch(status int, duration time.Duration) {
	requestsTotal.WithLabelValues(ClassifyStatus(status)).Inc()
	if duration > 0 {
		requestDurationSeconds.Observe(duration.Seconds())
	}
}

// ObserveRetry increments the retry counter.
func ObserveRetry() {
	retriesTotal.Inc()
}

// ObserveRobotsBlocked increments the robots counter.
func ObserveRobotsBlocked() {
	robotsBlockedTotal.Inc()
}

// ObserveRobotsFallback records a robots.txt probe that fell back to allow-all.
func ObserveRobotsFallback() {
	robotsFallbackTotal.Inc()
}

// ObserveRateLimitWait records a non-trivial rate limiter delay.
func ObserveRateLimitWait(d time.Duration) {
	rateLimitWaitSeconds.Observe(d.Seconds())
}

// IncInFlight increments the in-flight gauge.
func IncInFlight() {
	inFlight.Inc()
}

// DecInFlight decrements the in-flight gauge.
func DecInFlight() {
	inFlight.Dec()
}

// ObserveDiscoveryPage counts a discovery page ("listing" or "product").
func ObserveDiscoveryPage(kind string) {
	discoveryPagesTotal.WithLabelValues(kind).Inc()
}

// ObserveProduct counts a product page outcome ("parsed" or "failed").
func ObserveProduct(status string) {
	productsTotal.WithLabelValues(status).Inc()
}

// SetFrontier updates the frontier gauges.
func SetFrontier(pending, products int) {
	frontierPending.Set(float64(pending))
	frontierProducts.Set(float64(products))
}

// ObserveHTTPRequest records one request served by the status server.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
