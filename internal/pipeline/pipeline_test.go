package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caribou/internal/broker"
	"caribou/internal/event"
	"caribou/internal/logger"
	"caribou/internal/tenant"
	pkgerrors "caribou/pkg/errors"
	"caribou/pkg/models"
	"caribou/pkg/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func delivery(t *testing.T, id, tenantID string, payload map[string]interface{}) broker.Delivery {
	t.Helper()
	raw := map[string]interface{}{
		"id":      id,
		"payload": payload,
	}
	if tenantID != "" {
		raw["metadata"] = map[string]interface{}{"tenantId": tenantID}
	}
	value, err := json.Marshal(raw)
	require.NoError(t, err)
	return broker.Delivery{Topic: "tenant_events", Value: value}
}

func TestHandleDeliveryDispatchesAndAcks(t *testing.T) {
	registry := NewRegistry()
	var seenTenant string
	registry.Register(event.TypeTenantCreated, func(ctx context.Context, env *models.Envelope) error {
		seenTenant, _ = tenant.TenantID(ctx)
		return nil
	})
	p := NewPipeline(registry, fastPolicy(), logger.NopLogger())

	d := delivery(t, "m1", "T1", map[string]interface{}{
		"eventType":  "TenantCreatedEvent",
		"schemaName": "tenant_t1",
	})

	assert.Equal(t, broker.Ack, p.HandleDelivery(context.Background(), d))
	assert.Equal(t, "T1", seenTenant)
}

func TestHandleDeliveryUndecodableAcks(t *testing.T) {
	registry := NewRegistry()
	calls := 0
	registry.Register(event.TypeTenantCreated, func(ctx context.Context, env *models.Envelope) error {
		calls++
		return nil
	})
	p := NewPipeline(registry, fastPolicy(), logger.NopLogger())

	d := broker.Delivery{Topic: "tenant_events", Value: []byte("{not json")}
	assert.Equal(t, broker.Ack, p.HandleDelivery(context.Background(), d))
	assert.Zero(t, calls)
}

func TestHandleDeliveryUnknownEventNoSideEffects(t *testing.T) {
	registry := NewRegistry()
	calls := 0
	for _, et := range []event.Type{event.TypeTenantCreated, event.TypeNotificationCreated, event.TypeConsignmentCreated} {
		registry.Register(et, func(ctx context.Context, env *models.Envelope) error {
			calls++
			return nil
		})
	}
	p := NewPipeline(registry, fastPolicy(), logger.NopLogger())

	d := delivery(t, "m1", "T1", map[string]interface{}{
		"eventType": "com.acme.SomethingElseEvent",
		"detail":    "x",
	})

	assert.Equal(t, broker.Ack, p.HandleDelivery(context.Background(), d))
	assert.Zero(t, calls)
}

func TestHandleDeliveryMissingTenantAcksWithoutDispatch(t *testing.T) {
	registry := NewRegistry()
	calls := 0
	registry.Register(event.TypeTenantCreated, func(ctx context.Context, env *models.Envelope) error {
		calls++
		return nil
	})
	p := NewPipeline(registry, fastPolicy(), logger.NopLogger())

	d := delivery(t, "m1", "", map[string]interface{}{
		"eventType":  "TenantCreatedEvent",
		"schemaName": "tenant_t1",
	})

	assert.Equal(t, broker.Ack, p.HandleDelivery(context.Background(), d))
	assert.Zero(t, calls)
}

func TestHandleDeliveryRetriesTransientThenSucceeds(t *testing.T) {
	registry := NewRegistry()
	attempts := 0
	registry.Register(event.TypeNotificationCreated, func(ctx context.Context, env *models.Envelope) error {
		attempts++
		if attempts <= 2 {
			return pkgerrors.ErrDependencyMissing
		}
		return nil
	})
	p := NewPipeline(registry, fastPolicy(), logger.NopLogger())

	d := delivery(t, "m1", "T1", map[string]interface{}{
		"eventType":      "NotificationCreatedEvent",
		"notificationId": "N1",
	})

	assert.Equal(t, broker.Ack, p.HandleDelivery(context.Background(), d))
	assert.Equal(t, 3, attempts)
}

func TestHandleDeliveryExhaustionRequeues(t *testing.T) {
	registry := NewRegistry()
	attempts := 0
	registry.Register(event.TypeNotificationCreated, func(ctx context.Context, env *models.Envelope) error {
		attempts++
		return pkgerrors.ErrDependencyMissing
	})
	p := NewPipeline(registry, fastPolicy(), logger.NopLogger())

	d := delivery(t, "m1", "T1", map[string]interface{}{
		"eventType":      "NotificationCreatedEvent",
		"notificationId": "N1",
	})

	assert.Equal(t, broker.Requeue, p.HandleDelivery(context.Background(), d))
	assert.Equal(t, 5, attempts)
}

func TestHandleDeliveryMalformedHandlerErrorAcks(t *testing.T) {
	registry := NewRegistry()
	attempts := 0
	registry.Register(event.TypeNotificationCreated, func(ctx context.Context, env *models.Envelope) error {
		attempts++
		return pkgerrors.ErrMalformedEvent
	})
	p := NewPipeline(registry, fastPolicy(), logger.NopLogger())

	d := delivery(t, "m1", "T1", map[string]interface{}{
		"eventType":      "NotificationCreatedEvent",
		"notificationId": "N1",
	})

	assert.Equal(t, broker.Ack, p.HandleDelivery(context.Background(), d))
	assert.Equal(t, 1, attempts)
}

func TestHandleDeliveryProvisioningFailureAcks(t *testing.T) {
	registry := NewRegistry()
	registry.Register(event.TypeTenantCreated, func(ctx context.Context, env *models.Envelope) error {
		return pkgerrors.ErrProvisioning
	})
	p := NewPipeline(registry, fastPolicy(), logger.NopLogger())

	d := delivery(t, "m1", "T1", map[string]interface{}{
		"eventType":  "TenantCreatedEvent",
		"schemaName": "tenant_t1",
	})

	assert.Equal(t, broker.Ack, p.HandleDelivery(context.Background(), d))
}

func TestHandleDeliveryPanicRequeuesOnce(t *testing.T) {
	registry := NewRegistry()
	attempts := 0
	registry.Register(event.TypeTenantCreated, func(ctx context.Context, env *models.Envelope) error {
		attempts++
		panic("handler exploded")
	})
	p := NewPipeline(registry, fastPolicy(), logger.NopLogger())

	d := delivery(t, "m1", "T1", map[string]interface{}{
		"eventType":  "TenantCreatedEvent",
		"schemaName": "tenant_t1",
	})

	assert.Equal(t, broker.Requeue, p.HandleDelivery(context.Background(), d))
	assert.Equal(t, 1, attempts)
}

func TestHandleDeliveryHandlerChainStopsOnError(t *testing.T) {
	registry := NewRegistry()
	secondCalled := false
	registry.Register(event.TypeConsignmentStatusChanged, func(ctx context.Context, env *models.Envelope) error {
		return pkgerrors.ErrMalformedEvent
	})
	registry.Register(event.TypeConsignmentStatusChanged, func(ctx context.Context, env *models.Envelope) error {
		secondCalled = true
		return nil
	})
	p := NewPipeline(registry, fastPolicy(), logger.NopLogger())

	d := delivery(t, "m1", "T1", map[string]interface{}{
		"eventType":     "ConsignmentStatusChangedEvent",
		"consignmentId": "C1",
		"status":        "DISPATCHED",
	})

	assert.Equal(t, broker.Ack, p.HandleDelivery(context.Background(), d))
	assert.False(t, secondCalled)
}

// Tenant identity bound while handling one message must be fully cleared
// before the next message on the same worker, even when the first
// handler panics.
func TestHandleDeliveryContextClearedBetweenMessages(t *testing.T) {
	registry := NewRegistry()
	var tenants []string
	registry.Register(event.TypeTenantCreated, func(ctx context.Context, env *models.Envelope) error {
		id, _ := tenant.TenantID(ctx)
		tenants = append(tenants, id)
		if id == "T1" {
			panic("first message explodes")
		}
		return nil
	})
	p := NewPipeline(registry, fastPolicy(), logger.NopLogger())

	base := context.Background()
	first := delivery(t, "m1", "T1", map[string]interface{}{
		"eventType":  "TenantCreatedEvent",
		"schemaName": "tenant_t1",
	})
	second := delivery(t, "m2", "T2", map[string]interface{}{
		"eventType":  "TenantCreatedEvent",
		"schemaName": "tenant_t2",
	})

	assert.Equal(t, broker.Requeue, p.HandleDelivery(base, first))
	assert.Equal(t, broker.Ack, p.HandleDelivery(base, second))
	require.Equal(t, []string{"T1", "T2"}, tenants)

	_, bound := tenant.TenantID(base)
	assert.False(t, bound)
}
