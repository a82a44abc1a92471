package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/camlf/academic-hub/pkg/pagination")

// Prometheus metrics for pagination.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_pages_total",
		Help: "Total pages received by mode",
	}, []string{"mode"})

	pageRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hub_page_rows",
		Help:    "Rows per received page",
		Buckets: prometheus.ExponentialBuckets(10, 4, 9),
	})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_retries_total",
		Help: "Total page retries by error bucket",
	}, []string{"bucket"})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hub_retry_backoff_seconds",
		Help:    "Backoff before immediate retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	pageRowCapShrinks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_page_row_cap_shrinks_total",
		Help: "Total page row cap halvings after upstream timeouts",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_sessions_total",
		Help: "Total paginator sessions by mode and terminal state",
	}, []string{"mode", "state"})

	sessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hub_session_duration_seconds",
		Help:    "Paginator session duration by mode",
		Buckets: []float64{0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"mode"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hub_batch_duration_seconds",
		Help:    "Multi-source batch fetch duration",
		Buckets: []float64{1, 5, 15, 60, 300, 900},
	})

	batchSourcesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_batch_sources_total",
		Help: "Sources merged or discarded by batch fetches",
	}, []string{"outcome"})
)

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
