package metrics

import (
    "net/http"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    httpReqs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfdesk",
            Name:      "http_requests_total",
            Help:      "Total HTTP requests by route and status code",
        },
        []string{"route", "code"},
    )

    operationLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "pdfdesk",
            Name:      "operation_duration_seconds",
            Help:      "Duration of document operations by operation and result",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"operation", "result"},
    )

    trackedFiles = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: "pdfdesk",
            Name:      "tracked_files",
            Help:      "Files currently tracked by the ephemeral store",
        },
    )

    fileEvents = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfdesk",
            Name:      "file_events_total",
            Help:      "File lifecycle events by event (stored, deleted, expired, unlink_failed, abandoned)",
        },
        []string{"event"},
    )

    pagesComposed = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "pdfdesk",
            Name:      "pages_composed_total",
            Help:      "Pages copied into composed output documents",
        },
    )

    uploadsRejected = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "pdfdesk",
            Name:      "uploads_rejected_total",
            Help:      "Uploaded files silently dropped by magic-byte validation",
        },
    )

    rateLimited = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfdesk",
            Name:      "rate_limited_total",
            Help:      "Requests rejected by the rate limiter by bucket",
        },
        []string{"bucket"},
    )

    initOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
    initOnce.Do(func() {
        prometheus.MustRegister(httpReqs, operationLatency, trackedFiles, fileEvents, pagesComposed, uploadsRejected, rateLimited)
    })
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveRequest(route string, code int) {
    httpReqs.WithLabelValues(route, statusLabel(code)).Inc()
}

func ObserveOperation(op string, err error, dur time.Duration) {
    result := "ok"
    if err != nil { result = "error" }
    operationLatency.WithLabelValues(op, result).Observe(dur.Seconds())
}

func SetTrackedFiles(n int64)   { trackedFiles.Set(float64(n)) }
func IncFileEvent(event string) { fileEvents.WithLabelValues(event).Inc() }
func AddFileEvents(event string, n int) {
    if n > 0 { fileEvents.WithLabelValues(event).Add(float64(n)) }
}
func AddPagesComposed(n int) { pagesComposed.Add(float64(n)) }
func IncUploadRejected()     { uploadsRejected.Inc() }
func IncRateLimited(bucket string) { rateLimited.WithLabelValues(bucket).Inc() }

func statusLabel(code int) string {
    switch {
    case code >= 500: return "5xx"
    case code >= 400: return "4xx"
    case code >= 300: return "3xx"
    default: return "2xx"
    }
}
