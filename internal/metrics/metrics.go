// Package metrics provides Prometheus collectors for ingestion, queries and the Slack path.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nexus"

var (
	// DocumentsIngested counts finished ingestions.
	// Labels: status (INDEXED, PARTIAL, FAILED)
	DocumentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "documents_total",
			Help:      "Total number of document ingestions by final status",
		},
		[]string{"status"},
	)

	// ChunksProcessed counts chunk outcomes during ingestion.
	// Labels: result (indexed, skipped, unchanged)
	ChunksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "chunks_total",
			Help:      "Total number of chunks processed by outcome",
		},
		[]string{"result"},
	)

	// IngestionDuration tracks how long a document takes end to end.
	IngestionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duration_seconds",
			Help:      "Duration of document ingestion in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// QueryDuration tracks query latency.
	// Labels: outcome (answered, fallback, error)
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Duration of query handling in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// ProviderRetries counts retried provider calls.
	// Labels: operation (embed, upsert, generate)
	ProviderRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "retries_total",
			Help:      "Total number of retried provider calls",
		},
		[]string{"operation"},
	)

	// SlackDeliveries counts webhook outcomes.
	// Labels: outcome (accepted, duplicate, rejected, immediate, ignored)
	SlackDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slack",
			Name:      "deliveries_total",
			Help:      "Total number of Slack webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)

	// SlackPosts counts outbound post outcomes.
	// Labels: outcome (posted, post_failed)
	SlackPosts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slack",
			Name:      "posts_total",
			Help:      "Total number of answer posts by outcome",
		},
		[]string{"outcome"},
	)

	// TasksProcessed counts worker task outcomes.
	// Labels: type, result (success, error)
	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "tasks_total",
			Help:      "Total number of tasks processed by type and result",
		},
		[]string{"type", "result"},
	)

	// HTTPRequests tracks API request latency.
	// Labels: route, status
	HTTPRequests = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds by route and status",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

// ObserveHTTP records one request under its route pattern.
func ObserveHTTP(route string, status int, d time.Duration) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
}

// ObserveQuery records one query's latency under its outcome.
func ObserveQuery(outcome string, d time.Duration) {
	QueryDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordTask records the outcome of a worker task.
func RecordTask(taskType string, err error) {
	if err != nil {
		TasksProcessed.WithLabelValues(taskType, "error").Inc()
		return
	}
	TasksProcessed.WithLabelValues(taskType, "success").Inc()
}
