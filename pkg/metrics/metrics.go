// Package metrics provides Prometheus instrumentation for the worker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vodrag"

var (
	// tasksClaimedTotal counts queue claims by task type.
	tasksClaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_claimed_total",
			Help:      "Total number of tasks claimed from the queue",
		},
		[]string{"task_type"},
	)

	// tasksProcessedTotal counts finished tasks by type and terminal status.
	tasksProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_processed_total",
			Help:      "Total number of tasks run to a terminal state",
		},
		[]string{"task_type", "status"}, // status: completed, failed
	)

	// taskDuration is a histogram of task execution duration in seconds.
	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Histogram of task execution duration in seconds",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"task_type"},
	)

	// tasksInFlight is a gauge of tasks currently being executed.
	tasksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Number of tasks currently being executed",
		},
	)

	// stageDuration is a histogram of per-video stage duration in seconds.
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Histogram of per-video pipeline stage duration in seconds",
			Buckets:   []float64{.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"stage"}, // stage: download, transcribe, chunk, embed
	)

	// videosProcessedTotal counts per-video stage outcomes.
	videosProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "videos_processed_total",
			Help:      "Total number of per-video stage executions",
		},
		[]string{"stage", "status"}, // status: success, error
	)

	// chunksEmbeddedTotal counts chunks that received embeddings.
	chunksEmbeddedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_embedded_total",
			Help:      "Total number of chunks embedded",
		},
	)

	// modelRequestDuration is a histogram of external model call duration.
	modelRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_request_duration_seconds",
			Help:      "Duration of LLM, embedding, and transcription calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"operation"},
	)

	// modelRequestsTotal counts external model calls.
	modelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_requests_total",
			Help:      "Total number of LLM, embedding, and transcription calls",
		},
		[]string{"operation", "status"}, // status: success, error
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		tasksClaimedTotal,
		tasksProcessedTotal,
		taskDuration,
		tasksInFlight,
		stageDuration,
		videosProcessedTotal,
		chunksEmbeddedTotal,
		modelRequestDuration,
		modelRequestsTotal,
	}
)

// RecordTaskClaimed records a queue claim.
func RecordTaskClaimed(taskType string) {
	tasksClaimedTotal.WithLabelValues(taskType).Inc()
	tasksInFlight.Inc()
}

// RecordTaskProcessed records a task reaching a terminal state.
func RecordTaskProcessed(taskType, status string, duration time.Duration) {
	tasksInFlight.Dec()
	tasksProcessedTotal.WithLabelValues(taskType, status).Inc()
	taskDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// RecordStage records one per-video stage execution.
func RecordStage(stage, status string, duration time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	videosProcessedTotal.WithLabelValues(stage, status).Inc()
}

// RecordChunksEmbedded records a batch of embedded chunks.
func RecordChunksEmbedded(count int) {
	chunksEmbeddedTotal.Add(float64(count))
}

// RecordModelRequest records an external model call.
func RecordModelRequest(operation, status string, duration time.Duration) {
	modelRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	modelRequestsTotal.WithLabelValues(operation, status).Inc()
}
