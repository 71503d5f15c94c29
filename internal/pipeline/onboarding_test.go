package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caribou/internal/broker"
	"caribou/internal/directory"
	"caribou/internal/event"
	"caribou/internal/logger"
	"caribou/internal/notification"
	pkgerrors "caribou/pkg/errors"
	"caribou/pkg/models"
)

// visibilityRepository hides freshly created rows from reads for a fixed
// number of attempts, the way a replica lagging behind the writer would.
type visibilityRepository struct {
	mu          sync.Mutex
	rows        map[string]*notification.Notification
	hiddenReads int
	reads       int
}

func (r *visibilityRepository) Create(ctx context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rows[n.ID]; exists {
		return nil
	}
	copied := *n
	r.rows[n.ID] = &copied
	return nil
}

func (r *visibilityRepository) GetByID(ctx context.Context, id string) (*notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if r.reads <= r.hiddenReads {
		return nil, pkgerrors.ErrDependencyMissing
	}
	n, ok := r.rows[id]
	if !ok {
		return nil, pkgerrors.ErrDependencyMissing
	}
	copied := *n
	return &copied, nil
}

func (r *visibilityRepository) MarkSent(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok || n.Status != notification.StatusPending {
		return false, nil
	}
	n.Status = notification.StatusSent
	return true, nil
}

type noopDirectory struct{}

func (noopDirectory) GetContact(ctx context.Context, tenantID string) (*directory.Contact, error) {
	return &directory.Contact{TenantID: tenantID}, nil
}

type capturingPublisher struct {
	mu       sync.Mutex
	commands []models.SendNotificationCommand
}

func (p *capturingPublisher) Publish(ctx context.Context, topic string, key string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commands = append(p.commands, payload.(models.SendNotificationCommand))
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func TestTenantOnboardingEndToEnd(t *testing.T) {
	repo := &visibilityRepository{rows: make(map[string]*notification.Notification)}
	pub := &capturingPublisher{}
	svc := notification.NewService(repo, noopDirectory{}, pub, "notification_commands", logger.NopLogger())
	handler := notification.NewHandler(svc)

	registry := NewRegistry()
	registry.Register(event.TypeTenantCreated, handler.HandleTenantCreated)
	registry.Register(event.TypeNotificationCreated, handler.HandleNotificationCreated)
	p := NewPipeline(registry, fastPolicy(), logger.NopLogger())

	created := delivery(t, "m1", "T1", map[string]interface{}{
		"eventType": "TenantCreatedEvent",
		"email":     "a@b.com",
	})
	require.Equal(t, broker.Ack, p.HandleDelivery(context.Background(), created))

	welcomeID := notification.WelcomeID("T1")
	require.Contains(t, repo.rows, welcomeID)
	assert.Equal(t, notification.StatusPending, repo.rows[welcomeID].Status)
	assert.Equal(t, "a@b.com", repo.rows[welcomeID].Recipient)

	// The follow-up arrives before the welcome row is readable: the first
	// two reads miss, the third lands.
	repo.hiddenReads = repo.reads + 2

	followUp := delivery(t, "m2", "T1", map[string]interface{}{
		"eventType":      "NotificationCreatedEvent",
		"notificationId": welcomeID,
	})
	require.Equal(t, broker.Ack, p.HandleDelivery(context.Background(), followUp))

	assert.Equal(t, notification.StatusSent, repo.rows[welcomeID].Status)
	require.Len(t, pub.commands, 1)
	assert.Equal(t, welcomeID, pub.commands[0].NotificationID)
	assert.Equal(t, "T1", pub.commands[0].TenantID)
	assert.Equal(t, "a@b.com", pub.commands[0].Recipient)

	// Redelivery of the follow-up hits the state guard: no second command.
	require.Equal(t, broker.Ack, p.HandleDelivery(context.Background(), followUp))
	assert.Len(t, pub.commands, 1)
}

func TestRetryDelaySchedule(t *testing.T) {
	policy := fastPolicy()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = time.Second

	registry := NewRegistry()
	attempts := 0
	registry.Register(event.TypeNotificationCreated, func(ctx context.Context, env *models.Envelope) error {
		attempts++
		if attempts <= 2 {
			return pkgerrors.ErrDependencyMissing
		}
		return nil
	})
	p := NewPipeline(registry, policy, logger.NopLogger())

	raw, err := json.Marshal(map[string]interface{}{
		"id":       "m1",
		"payload":  map[string]interface{}{"eventType": "NotificationCreatedEvent", "notificationId": "N1"},
		"metadata": map[string]interface{}{"tenantId": "T1"},
	})
	require.NoError(t, err)

	start := time.Now()
	decision := p.HandleDelivery(context.Background(), broker.Delivery{Topic: "tenant_events", Value: raw})
	elapsed := time.Since(start)

	assert.Equal(t, broker.Ack, decision)
	assert.Equal(t, 3, attempts)
	// 50ms then 100ms of backoff.
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 600*time.Millisecond)
}
