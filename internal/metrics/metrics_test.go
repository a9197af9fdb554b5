package metrics

import (
    "errors"
    "testing"
    "time"

    "github.com/prometheus/client_golang/prometheus/testutil"
    "github.com/stretchr/testify/assert"
)

func TestInitIsIdempotent(t *testing.T) {
    assert.NotPanics(t, func() {
        Init()
        Init()
    })
}

func TestObserveRequestBucketsStatus(t *testing.T) {
    Init()
    ok := testutil.ToFloat64(httpReqs.WithLabelValues("/api/merge", "2xx"))
    client := testutil.ToFloat64(httpReqs.WithLabelValues("/api/merge", "4xx"))

    ObserveRequest("/api/merge", 200)
    ObserveRequest("/api/merge", 204)
    ObserveRequest("/api/merge", 404)

    assert.Equal(t, ok+2, testutil.ToFloat64(httpReqs.WithLabelValues("/api/merge", "2xx")))
    assert.Equal(t, client+1, testutil.ToFloat64(httpReqs.WithLabelValues("/api/merge", "4xx")))
}

func TestRateLimitedAndFileEvents(t *testing.T) {
    Init()
    before := testutil.ToFloat64(rateLimited.WithLabelValues("upload"))
    IncRateLimited("upload")
    assert.Equal(t, before+1, testutil.ToFloat64(rateLimited.WithLabelValues("upload")))

    expired := testutil.ToFloat64(fileEvents.WithLabelValues("expired"))
    AddFileEvents("expired", 3)
    AddFileEvents("expired", 0)
    assert.Equal(t, expired+3, testutil.ToFloat64(fileEvents.WithLabelValues("expired")))

    SetTrackedFiles(7)
    assert.Equal(t, float64(7), testutil.ToFloat64(trackedFiles))
}

func TestObserveOperationLabelsResult(t *testing.T) {
    Init()
    ObserveOperation("split", nil, 10*time.Millisecond)
    ObserveOperation("split", errors.New("boom"), time.Millisecond)
    assert.Equal(t, 2, testutil.CollectAndCount(operationLatency, "pdfdesk_operation_duration_seconds"))
}

func TestStatusLabel(t *testing.T) {
    assert.Equal(t, "2xx", statusLabel(200))
    assert.Equal(t, "3xx", statusLabel(304))
    assert.Equal(t, "4xx", statusLabel(429))
    assert.Equal(t, "5xx", statusLabel(503))
}
