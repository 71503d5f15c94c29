package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

// Kafka headers consulted for the transport-level type hint, in order.
var TypeHintHeaders = []string{"__TypeId__", "ce_type", "type"}

const (
	DefaultEventsTopic   = "tenant_events"
	DefaultCommandsTopic = "notification_commands"
)

const (
	TenantSchemaPrefix = "tenant_"
)

const (
	HeaderTenantID      = "X-Tenant-ID"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderAuthorization = "Authorization"
)

const (
	CacheCollectionSegment = "list"
	DefaultCacheTTLSeconds = 3600
)

const (
	RequeuePause = 500 * time.Millisecond
)
