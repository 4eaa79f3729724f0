// Package metrics exposes Prometheus collectors for crawl and deploy runs.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal            *prometheus.CounterVec
	crawlStatusTotal           *prometheus.CounterVec
	crawlBytesTotal            prometheus.Counter
	crawlDiscoveredTotal       prometheus.Counter
	deployFilesTotal           *prometheus.CounterVec
	batchDurationSeconds       *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call repeatedly.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_crawl_pages_total",
				Help: "Crawled URLs, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		crawlStatusTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_crawl_status_total",
				Help: "Crawl log status codes recorded, labeled by code.",
			},
			[]string{"code"},
		)
		crawlBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mirror_crawl_bytes_total",
				Help: "Bytes fetched from the live site.",
			},
		)
		crawlDiscoveredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mirror_crawl_discovered_total",
				Help: "New same-site URLs harvested from rewritten documents.",
			},
		)
		deployFilesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mirror_deploy_files_total",
				Help: "Deploy queue items, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)
		batchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mirror_batch_duration_seconds",
				Help:    "Duration of one crawl or deploy batch.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"stage"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mirror_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"stage"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawlPage counts one processed URL and the bytes fetched for it.
func ObserveCrawlPage(outcome string, status int, bytesFetched int) {
	Init()
	crawlPagesTotal.WithLabelValues(outcome).Inc()
	crawlStatusTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	if bytesFetched > 0 {
		crawlBytesTotal.Add(float64(bytesFetched))
	}
}

// AddDiscovered counts newly harvested URLs.
func AddDiscovered(n int) {
	Init()
	if n > 0 {
		crawlDiscoveredTotal.Add(float64(n))
	}
}

// ObserveDeployFile counts one deploy queue item.
func ObserveDeployFile(provider, outcome string) {
	Init()
	deployFilesTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveBatch records how long one batch of the given stage took.
func ObserveBatch(stage string, duration time.Duration) {
	Init()
	batchDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(stage string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}
