// Package metrics exposes Prometheus collectors for the ingestion pipeline.
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
	documentsTotal             *prometheus.CounterVec
	downloadBytesTotal         *prometheus.CounterVec
	pagesTotal                 *prometheus.CounterVec
	ocrAttemptsTotal           *prometheus.CounterVec
	imageUploadsTotal          *prometheus.CounterVec
	imageQuality               prometheus.Histogram
	transcriptsTotal           *prometheus.CounterVec
	publishTotal               *prometheus.CounterVec
	notificationsTotal         *prometheus.CounterVec
	activePageWorkers          prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		documentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_documents_total",
				Help: "Documents handled by the crawl and fetch stages, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)

		downloadBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_download_bytes_total",
				Help: "Bytes of source documents downloaded, labeled by site.",
			},
			[]string{"site"},
		)

		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_pages_total",
				Help: "Pages handled by the page processor, labeled by outcome and failure class.",
			},
			[]string{"outcome", "class"},
		)

		ocrAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_ocr_attempts_total",
				Help: "OCR requests, labeled by engine and result class.",
			},
			[]string{"engine", "result"},
		)

		imageUploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_image_uploads_total",
				Help: "Page image uploads, labeled by result.",
			},
			[]string{"result"},
		)

		imageQuality = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "archive_image_quality",
				Help:    "JPEG quality at which page images fit under the size ceiling.",
				Buckets: []float64{20, 30, 40, 50, 60, 70, 80, 85},
			},
		)

		transcriptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_transcripts_total",
				Help: "Transcript assembly decisions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		publishTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_publish_total",
				Help: "Publisher decisions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_notifications_total",
				Help: "Pipeline notifications, labeled by event type and result.",
			},
			[]string{"type", "result"},
		)

		activePageWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archive_active_page_workers",
				Help: "Number of page workers currently rendering or transcribing a page.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archive_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"key"},
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

// ObserveDocument counts a crawl or fetch decision about one document.
func ObserveDocument(stage, outcome string) {
	Init()
	documentsTotal.WithLabelValues(stage, outcome).Inc()
}

// ObserveDownload records the size of a downloaded source document.
func ObserveDownload(rawURL string, bytesFetched int) {
	Init()
	if bytesFetched > 0 {
		downloadBytesTotal.WithLabelValues(SanitizeSite(rawURL)).Add(float64(bytesFetched))
	}
}

// ObservePage counts a page outcome with its failure class.
func ObservePage(outcome, class string) {
	Init()
	pagesTotal.WithLabelValues(outcome, class).Inc()
}

// ObserveOCRAttempt counts one OCR request.
func ObserveOCRAttempt(engine, result string) {
	Init()
	ocrAttemptsTotal.WithLabelValues(engine, result).Inc()
}

// ObserveImageUpload counts an image upload and, on success, its final quality.
func ObserveImageUpload(result string, quality int) {
	Init()
	imageUploadsTotal.WithLabelValues(result).Inc()
	if quality > 0 {
		imageQuality.Observe(float64(quality))
	}
}

// ObserveTranscript counts an assembler decision.
func ObserveTranscript(outcome string) {
	Init()
	transcriptsTotal.WithLabelValues(outcome).Inc()
}

// ObservePublish counts a publisher decision.
func ObservePublish(outcome string) {
	Init()
	publishTotal.WithLabelValues(outcome).Inc()
}

// ObserveNotification counts a notification attempt.
func ObserveNotification(eventType, result string) {
	Init()
	notificationsTotal.WithLabelValues(eventType, result).Inc()
}

// IncActivePageWorkers increments the active page workers gauge.
func IncActivePageWorkers() {
	Init()
	activePageWorkers.Inc()
}

// DecActivePageWorkers decrements the active page workers gauge.
func DecActivePageWorkers() {
	Init()
	activePageWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(key string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(key).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
