package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "totem"

// Registry is the registry exposed on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// MediaUploads counts upload attempts by variant and outcome (ok, invalid, error).
	MediaUploads = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_uploads_total",
			Help:      "Media files processed by the ingest pipeline",
		},
		[]string{"variant", "outcome"},
	)

	// BlobCleanups counts rollback deletions of written blobs by result (deleted, missing, failed, queued, foreign).
	BlobCleanups = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_cleanups_total",
			Help:      "Blob deletions issued or queued to avoid orphaned files",
		},
		[]string{"result"},
	)

	// TotemFeedRequests counts totem feed lookups by source (cache, db).
	TotemFeedRequests = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "totem_feed_requests_total",
			Help:      "Totem feed lookups",
		},
		[]string{"source"},
	)

	// HTTPRequestDuration records request latency.
	HTTPRequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
