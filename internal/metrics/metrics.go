// Package metrics defines custom Prometheus metrics for videoup.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for request/response size histograms (bytes).
var sizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864}

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videoup_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "videoup_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPRequestSize observes request body size in bytes.
	HTTPRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "videoup_http_request_size_bytes",
			Help:    "Request body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)
)

// Upload coordination metrics.
var (
	// SessionsStarted counts multipart sessions the store accepted.
	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "videoup_sessions_started_total",
			Help: "Multipart upload sessions started",
		},
	)

	// PartsAuthorized counts presigned part URLs issued.
	PartsAuthorized = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "videoup_parts_authorized_total",
			Help: "Presigned part upload URLs issued",
		},
	)

	// SingleShotsAuthorized counts presigned whole-object URLs issued.
	SingleShotsAuthorized = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "videoup_single_shots_authorized_total",
			Help: "Presigned single-shot upload URLs issued",
		},
	)

	// CompletionsTotal counts completion attempts by result (completed, failed, rejected).
	CompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videoup_completions_total",
			Help: "Multipart completion attempts by result",
		},
		[]string{"result"},
	)

	// AbortsTotal counts compensating aborts by result (success, error).
	AbortsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videoup_aborts_total",
			Help: "Compensating multipart aborts by result",
		},
		[]string{"result"},
	)

	// DirectUploadsTotal counts direct (server-relayed) uploads by result.
	DirectUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videoup_direct_uploads_total",
			Help: "Direct uploads by result",
		},
		[]string{"result"},
	)

	// BackendOperationsTotal counts object store calls by operation and status.
	BackendOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "videoup_backend_operations_total",
			Help: "Object store operations by type",
		},
		[]string{"operation", "status"},
	)

	// BackendOperationDuration observes object store call latency in seconds.
	BackendOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "videoup_backend_operation_duration_seconds",
			Help:    "Object store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Register registers all Prometheus collectors with the default registry.
// This must be called explicitly (typically from main) so that metrics
// registration can be made conditional on configuration. It is safe to call
// multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPRequestSize,
			SessionsStarted,
			PartsAuthorized,
			SingleShotsAuthorized,
			CompletionsTotal,
			AbortsTotal,
			DirectUploadsTotal,
			BackendOperationsTotal,
			BackendOperationDuration,
		)
	})
}

// NormalizePath maps actual request paths to normalized path templates
// suitable for use as Prometheus metric labels. This avoids high-cardinality
// labels from individual object keys.
func NormalizePath(path string) string {
	switch path {
	case "/health", "/readyz", "/metrics", "/openapi.json", "/openapi.yaml":
		return path
	case "/docs", "/docs/":
		return "/docs"
	case "/", "":
		return "/"
	case "/videos/start-multipart", "/videos/pre-signed", "/videos/upload":
		return path
	}

	if strings.HasPrefix(path, "/_memory/") {
		return "/_memory"
	}
	if strings.HasPrefix(path, "/docs") {
		return "/docs"
	}

	if rest, ok := strings.CutPrefix(path, "/videos/"); ok {
		if idx := strings.LastIndexByte(rest, '/'); idx > 0 {
			switch rest[idx+1:] {
			case "pre-signed-part":
				return "/videos/{key}/pre-signed-part"
			case "complete-multipart":
				return "/videos/{key}/complete-multipart"
			}
		}
	}
	return "/other"
}
