// Package metrics exposes Prometheus collectors for the crawler service.
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
	fetchesTotal               *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	inflightFetches            prometheus.Gauge
	prunedTotal                *prometheus.CounterVec
	articlesPersistedTotal     *prometheus.CounterVec
	crawlsTotal                *prometheus.CounterVec
	crawlNodes                 prometheus.Histogram
	summariesTotal             *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikicrawler_fetches_total",
				Help: "Total number of article fetches, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikicrawler_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wikicrawler_fetch_duration_seconds",
				Help:    "Histogram of article fetch latencies, labeled by outcome.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"outcome"},
		)

		inflightFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "wikicrawler_inflight_fetches",
				Help: "Number of fetches currently holding a pool slot.",
			},
		)

		prunedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikicrawler_pruned_total",
				Help: "Total number of crawl branches pruned, labeled by reason.",
			},
			[]string{"reason"},
		)

		articlesPersistedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikicrawler_articles_persisted_total",
				Help: "Total number of article upserts, labeled by result.",
			},
			[]string{"result"},
		)

		crawlsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikicrawler_crawls_total",
				Help: "Total number of top-level crawls, labeled by status.",
			},
			[]string{"status"},
		)

		crawlNodes = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wikicrawler_crawl_nodes",
				Help:    "Histogram of article counts per completed crawl.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		)

		summariesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikicrawler_summaries_total",
				Help: "Total number of summary generations, labeled by status.",
			},
			[]string{"status"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wikicrawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
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
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt against rawURL.
func ObserveFetch(rawURL, outcome string, bytesFetched int, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	fetchesTotal.WithLabelValues(site, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
	fetchDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncInflightFetches increments the in-flight fetch gauge.
func IncInflightFetches() {
	Init()
	inflightFetches.Inc()
}

// DecInflightFetches decrements the in-flight fetch gauge.
func DecInflightFetches() {
	Init()
	inflightFetches.Dec()
}

// ObservePrune counts a pruned crawl branch.
func ObservePrune(reason string) {
	Init()
	prunedTotal.WithLabelValues(reason).Inc()
}

// ObservePersist counts an article upsert.
func ObservePersist(result string) {
	Init()
	articlesPersistedTotal.WithLabelValues(result).Inc()
}

// ObserveCrawl counts a finished top-level crawl and its size.
func ObserveCrawl(status string, nodes int) {
	Init()
	crawlsTotal.WithLabelValues(status).Inc()
	if nodes > 0 {
		crawlNodes.Observe(float64(nodes))
	}
}

// ObserveSummary counts a summary generation.
func ObserveSummary(status string) {
	Init()
	summariesTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
