// Package metrics exposes Prometheus collectors for the scraper.
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
	scraperExtractionsTotal        *prometheus.CounterVec
	scraperExtractionSeconds       *prometheus.HistogramVec
	scraperFieldMissesTotal        *prometheus.CounterVec
	scraperBatchDurationSeconds    prometheus.Histogram
	scraperActiveWorkers           prometheus.Gauge
	scraperDiscoveredURLs          prometheus.Gauge
	scraperCheckpointSavesTotal    *prometheus.CounterVec
	scraperNavigationDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec
	scraperFallbackSpecsTotal      prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperExtractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_extractions_total",
				Help: "Total number of product extractions, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		scraperExtractionSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_extraction_duration_seconds",
				Help:    "Histogram of single product extraction latencies, labeled by outcome.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"outcome"},
		)

		scraperFieldMissesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_field_misses_total",
				Help: "Total number of fields left unset on otherwise rendered pages, labeled by field.",
			},
			[]string{"field"},
		)

		scraperFallbackSpecsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_fallback_specs_total",
				Help: "Total number of pages whose specifications came from the heuristic fallback.",
			},
		)

		scraperBatchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_batch_duration_seconds",
				Help:    "Histogram of batch latencies from dispatch to join.",
				Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 160},
			},
		)

		scraperActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_workers",
				Help: "Number of workers currently extracting a product.",
			},
		)

		scraperDiscoveredURLs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_discovered_urls",
				Help: "Number of distinct product URLs found on the listing page.",
			},
		)

		scraperCheckpointSavesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_checkpoint_saves_total",
				Help: "Total number of checkpoint saves, labeled by status.",
			},
			[]string{"status"},
		)

		scraperNavigationDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_navigation_delays_seconds",
				Help:    "Histogram of per-host navigation throttle waits.",
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
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

// ObserveExtraction records one extraction outcome.
func ObserveExtraction(site, outcome string, duration time.Duration) {
	Init()
	scraperExtractionsTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
	scraperExtractionSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveFieldMiss counts a field left unset on a rendered page.
func ObserveFieldMiss(field string) {
	Init()
	scraperFieldMissesTotal.WithLabelValues(field).Inc()
}

// ObserveFallbackSpecs counts a page that needed the heuristic spec scan.
func ObserveFallbackSpecs() {
	Init()
	scraperFallbackSpecsTotal.Inc()
}

// ObserveBatch records the duration of one joined batch.
func ObserveBatch(duration time.Duration) {
	Init()
	scraperBatchDurationSeconds.Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	scraperActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	scraperActiveWorkers.Dec()
}

// SetDiscovered records the size of the discovered URL set.
func SetDiscovered(n int) {
	Init()
	scraperDiscoveredURLs.Set(float64(n))
}

// ObserveCheckpointSave counts a checkpoint save attempt by status.
func ObserveCheckpointSave(status string) {
	Init()
	scraperCheckpointSavesTotal.WithLabelValues(status).Inc()
}

// ObserveNavigationDelay records the duration of a navigation throttle wait.
func ObserveNavigationDelay(domain string, duration time.Duration) {
	Init()
	scraperNavigationDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
