package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_messages_total",
			Help: "Total number of messages fetched from the broker (count)",
		},
		[]string{"topic"},
	)

	MessagesHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_messages_handled_total",
			Help: "Total number of messages processed to completion (count)",
		},
		[]string{"topic", "event_type"},
	)

	MessagesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_messages_skipped_total",
			Help: "Total number of messages acknowledged without processing (count)",
		},
		[]string{"topic", "reason"},
	)

	MessagesRequeuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_messages_requeued_total",
			Help: "Total number of messages left unacknowledged for broker redelivery (count)",
		},
		[]string{"topic"},
	)

	EventsClassifiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_events_classified_total",
			Help: "Total number of envelopes resolved per semantic event type (count)",
		},
		[]string{"event_type"},
	)

	ProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consumer_processing_duration_ms",
			Help:    "End-to-end processing duration per message in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"event_type", "outcome"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_retry_attempts_total",
			Help: "Total number of in-process retry attempts for not-yet-visible dependencies (count)",
		},
		[]string{"event_type"},
	)

	SchemasProvisionedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "provisioner_schemas_total",
			Help: "Total number of successful tenant schema provisioning runs (count)",
		},
	)

	ProvisioningFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "provisioner_failures_total",
			Help: "Total number of failed tenant schema provisioning runs (count)",
		},
	)

	MigrationsAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "provisioner_migrations_applied_total",
			Help: "Total number of migration scripts applied across tenant schemas (count)",
		},
	)

	CacheInvalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Total number of cache invalidation operations by action (count)",
		},
		[]string{"action"},
	)

	DirectoryRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_requests_total",
			Help: "Total number of tenant-directory lookups by status (count)",
		},
		[]string{"status"},
	)

	CommandsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_commands_published_total",
			Help: "Total number of outbound commands published (count)",
		},
		[]string{"topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)
)

func RegisterPipelineMetrics() {
	prometheus.MustRegister(MessagesConsumedTotal)
	prometheus.MustRegister(MessagesHandledTotal)
	prometheus.MustRegister(MessagesSkippedTotal)
	prometheus.MustRegister(MessagesRequeuedTotal)
	prometheus.MustRegister(EventsClassifiedTotal)
	prometheus.MustRegister(ProcessingDuration)
	prometheus.MustRegister(RetryAttemptsTotal)
}

func RegisterProvisionerMetrics() {
	prometheus.MustRegister(SchemasProvisionedTotal)
	prometheus.MustRegister(ProvisioningFailuresTotal)
	prometheus.MustRegister(MigrationsAppliedTotal)
}

func RegisterCacheMetrics() {
	prometheus.MustRegister(CacheInvalidationsTotal)
}

func RegisterOutboundMetrics() {
	prometheus.MustRegister(DirectoryRequestsTotal)
	prometheus.MustRegister(CommandsPublishedTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
}

func ObserveProcessingDuration(eventType, outcome string, duration time.Duration) {
	ProcessingDuration.WithLabelValues(eventType, outcome).Observe(float64(duration.Milliseconds()))
}
