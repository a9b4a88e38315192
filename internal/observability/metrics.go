package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the relevance estimation service.
// Metrics are organized by subsystem: jobs, tasks, articles, LLM operations, and
// the outbox. All counters and histograms are registered via promauto for
// automatic registration with the default Prometheus registry.
type Metrics struct {
	// JobsStarted counts the total number of relevance estimation jobs created.
	JobsStarted prometheus.Counter

	// JobsFinalized counts the total number of jobs that reached finalization.
	JobsFinalized prometheus.Counter

	// JobsFailed counts the total number of jobs whose workflow ended in failure.
	JobsFailed prometheus.Counter

	// JobDuration observes the end-to-end duration of jobs in seconds.
	JobDuration prometheus.Histogram

	// ArticlesPerJob observes the distribution of article counts per job.
	ArticlesPerJob prometheus.Histogram

	// TasksProcessed counts task executions, labeled by task type and outcome
	// (e.g., "inserted", "skipped", "dropped").
	TasksProcessed *prometheus.CounterVec

	// TaskDuration observes task execution duration in seconds, labeled by task type.
	TaskDuration *prometheus.HistogramVec

	// ArticlesRelevant counts articles whose final estimate was relevant.
	ArticlesRelevant prometheus.Counter

	// ArticlesMustRead counts articles flagged as must-read.
	ArticlesMustRead prometheus.Counter

	// SemanticsExtracted counts key semantics extracted, labeled by kind
	// (topic, entity, keyword).
	SemanticsExtracted *prometheus.CounterVec

	// LLMRequestsTotal counts LLM API requests, labeled by operation and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by operation, model, and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds, labeled by operation and model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens consumed by LLM operations, labeled by operation, model, and token type.
	LLMTokensUsed *prometheus.CounterVec

	// LLMRepairAttempts counts malformed LLM responses that went through a repair pass,
	// labeled by operation.
	LLMRepairAttempts *prometheus.CounterVec

	// OutboxEventsEmitted counts outbox events written, labeled by event type.
	OutboxEventsEmitted *prometheus.CounterVec

	// OutboxEventsPublished counts outbox events successfully published, labeled by event type.
	OutboxEventsPublished *prometheus.CounterVec

	// OutboxEventsFailed counts outbox publish failures, labeled by event type.
	OutboxEventsFailed *prometheus.CounterVec

	// OutboxLagSeconds observes the age of events at publish time in seconds.
	OutboxLagSeconds prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Jobs
		JobsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Total number of relevance estimation jobs started",
		}),
		JobsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finalized_total",
			Help:      "Total number of relevance estimation jobs finalized",
		}),
		JobsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Total number of relevance estimation jobs that failed",
		}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of relevance estimation jobs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
		ArticlesPerJob: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "articles_per_job",
			Help:      "Number of articles enqueued per job",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		// Tasks
		TasksProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_processed_total",
			Help:      "Total number of tasks processed by type and outcome",
		}, []string{"task_type", "outcome"}),
		TaskDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of task executions in seconds by type",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"task_type"}),

		// Articles
		ArticlesRelevant: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_relevant_total",
			Help:      "Total number of articles estimated as relevant",
		}),
		ArticlesMustRead: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_must_read_total",
			Help:      "Total number of articles flagged as must-read",
		}),
		SemanticsExtracted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "semantics_extracted_total",
			Help:      "Total number of key semantics extracted by kind",
		}, []string{"kind"}),

		// LLM
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests by operation",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM requests by operation",
		}, []string{"operation", "model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"operation", "model"}),
		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used by LLM operations",
		}, []string{"operation", "model", "token_type"}),
		LLMRepairAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_repair_attempts_total",
			Help:      "Total number of LLM responses that required a repair pass",
		}, []string{"operation"}),

		// Outbox
		OutboxEventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_emitted_total",
			Help:      "Total number of outbox events written by event type",
		}, []string{"event_type"}),
		OutboxEventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_published_total",
			Help:      "Total number of outbox events published by event type",
		}, []string{"event_type"}),
		OutboxEventsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of outbox publish failures by event type",
		}, []string{"event_type"}),
		OutboxLagSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_lag_seconds",
			Help:      "Age of outbox events at publish time in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		}),
	}
}

// RecordJobStarted records that a job has been created.
func (m *Metrics) RecordJobStarted(articleCount int) {
	m.JobsStarted.Inc()
	m.ArticlesPerJob.Observe(float64(articleCount))
}

// RecordJobFinalized records that a job has been finalized.
func (m *Metrics) RecordJobFinalized(durationSeconds float64) {
	m.JobsFinalized.Inc()
	m.JobDuration.Observe(durationSeconds)
}

// RecordJobFailed records that a job has failed.
func (m *Metrics) RecordJobFailed(durationSeconds float64) {
	m.JobsFailed.Inc()
	m.JobDuration.Observe(durationSeconds)
}

// RecordTaskProcessed records a task execution with its outcome.
func (m *Metrics) RecordTaskProcessed(taskType, outcome string, durationSeconds float64) {
	m.TasksProcessed.WithLabelValues(taskType, outcome).Inc()
	m.TaskDuration.WithLabelValues(taskType).Observe(durationSeconds)
}

// RecordArticleEstimated records the final estimate for an article.
func (m *Metrics) RecordArticleEstimated(relevant, mustRead bool) {
	if relevant {
		m.ArticlesRelevant.Inc()
	}
	if mustRead {
		m.ArticlesMustRead.Inc()
	}
}

// RecordSemanticsExtracted records extracted key semantics by kind.
func (m *Metrics) RecordSemanticsExtracted(kind string, count int) {
	m.SemanticsExtracted.WithLabelValues(kind).Add(float64(count))
}

// RecordLLMRequest records an LLM request.
func (m *Metrics) RecordLLMRequest(operation, model string, durationSeconds float64, inputTokens, outputTokens int) {
	m.LLMRequestsTotal.WithLabelValues(operation, model).Inc()
	m.LLMRequestDuration.WithLabelValues(operation, model).Observe(durationSeconds)
	m.LLMTokensUsed.WithLabelValues(operation, model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(operation, model, "output").Add(float64(outputTokens))
}

// RecordLLMRequestFailed records a failed LLM request.
func (m *Metrics) RecordLLMRequestFailed(operation, model, errorType string) {
	m.LLMRequestsFailed.WithLabelValues(operation, model, errorType).Inc()
}

// RecordLLMRepairAttempt records a malformed LLM response that was repaired.
func (m *Metrics) RecordLLMRepairAttempt(operation string) {
	m.LLMRepairAttempts.WithLabelValues(operation).Inc()
}

// RecordOutboxEmitted records an outbox event written in a transaction.
func (m *Metrics) RecordOutboxEmitted(eventType string) {
	m.OutboxEventsEmitted.WithLabelValues(eventType).Inc()
}

// RecordOutboxPublished records a successfully published outbox event.
func (m *Metrics) RecordOutboxPublished(eventType string, lagSeconds float64) {
	m.OutboxEventsPublished.WithLabelValues(eventType).Inc()
	m.OutboxLagSeconds.Observe(lagSeconds)
}

// RecordOutboxFailed records a failed outbox publish attempt.
func (m *Metrics) RecordOutboxFailed(eventType string) {
	m.OutboxEventsFailed.WithLabelValues(eventType).Inc()
}
