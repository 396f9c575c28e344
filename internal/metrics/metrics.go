// Package metrics exposes Prometheus collectors for the capture service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	capturesTotal              *prometheus.CounterVec
	captureBytesTotal          *prometheus.CounterVec
	cacheLookupsTotal          *prometheus.CounterVec
	cacheErrorsTotal           *prometheus.CounterVec
	cacheEntries               prometheus.Gauge
	renderDurationSeconds      *prometheus.HistogramVec
	rendersInflight            prometheus.Gauge
	renderQueueWaitSeconds     prometheus.Histogram
	rendererLaunchesTotal      *prometheus.CounterVec
	rateLimitedTotal           prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		capturesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shotapi_captures_total",
				Help: "Total number of capture requests served, labeled by cache status (HIT, MISS, DISABLED, ERROR).",
			},
			[]string{"status"},
		)

		captureBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shotapi_capture_bytes_total",
				Help: "Total artifact bytes served, labeled by site.",
			},
			[]string{"site"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shotapi_cache_lookups_total",
				Help: "Cache lookups labeled by layer (l1, l2) and result (hit, miss, expired).",
			},
			[]string{"layer", "result"},
		)

		cacheErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shotapi_cache_errors_total",
				Help: "Non-fatal cache storage failures labeled by operation.",
			},
			[]string{"op"},
		)

		cacheEntries = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "shotapi_cache_l1_entries",
				Help: "Number of entries currently held in the in-memory cache layer.",
			},
		)

		renderDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shotapi_render_duration_seconds",
				Help:    "Histogram of render latencies, labeled by artifact kind and outcome.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"kind", "outcome"},
		)

		rendersInflight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "shotapi_renders_inflight",
				Help: "Number of renders currently holding a slot.",
			},
		)

		renderQueueWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shotapi_render_queue_wait_seconds",
				Help:    "Histogram of time spent waiting for a render slot.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		rendererLaunchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shotapi_renderer_launches_total",
				Help: "Renderer launch attempts labeled by result.",
			},
			[]string{"result"},
		)

		rateLimitedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "shotapi_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveCapture counts a served capture and its size.
func ObserveCapture(site, status string, bytesServed int) {
	Init()
	capturesTotal.WithLabelValues(status).Inc()
	if bytesServed > 0 {
		captureBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesServed))
	}
}

// ObserveCacheLookup counts a cache lookup on one layer.
func ObserveCacheLookup(layer, result string) {
	Init()
	cacheLookupsTotal.WithLabelValues(layer, result).Inc()
}

// ObserveCacheError counts a non-fatal cache failure.
func ObserveCacheError(op string) {
	Init()
	cacheErrorsTotal.WithLabelValues(op).Inc()
}

// SetCacheEntries records the current L1 size.
func SetCacheEntries(n int) {
	Init()
	cacheEntries.Set(float64(n))
}

// ObserveRender records a render's latency.
func ObserveRender(kind, outcome string, duration time.Duration) {
	Init()
	renderDurationSeconds.WithLabelValues(kind, outcome).Observe(duration.Seconds())
}

// IncRendersInflight increments the in-flight renders gauge.
func IncRendersInflight() {
	Init()
	rendersInflight.Inc()
}

// DecRendersInflight decrements the in-flight renders gauge.
func DecRendersInflight() {
	Init()
	rendersInflight.Dec()
}

// ObserveQueueWait records the duration spent waiting for a render slot.
func ObserveQueueWait(duration time.Duration) {
	Init()
	renderQueueWaitSeconds.Observe(duration.Seconds())
}

// ObserveRendererLaunch counts a launch attempt ("success" or "failure").
func ObserveRendererLaunch(result string) {
	Init()
	rendererLaunchesTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimited counts a request rejected by the rate limiter.
func ObserveRateLimited() {
	Init()
	rateLimitedTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
