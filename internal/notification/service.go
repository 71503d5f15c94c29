package notification

import (
	"context"
	"fmt"
	"time"

	"caribou/internal/broker"
	"caribou/internal/directory"
	"caribou/internal/logger"
	"caribou/internal/tenant"
	"caribou/pkg/models"
)

type Service struct {
	repo          Repository
	directory     directory.ContactLookup
	publisher     broker.Publisher
	commandsTopic string
	logger        logger.Logger
}

func NewService(repo Repository, lookup directory.ContactLookup, publisher broker.Publisher, commandsTopic string, log logger.Logger) *Service {
	return &Service{
		repo:          repo,
		directory:     lookup,
		publisher:     publisher,
		commandsTopic: commandsTopic,
		logger:        log,
	}
}

// CreateWelcome records the pending onboarding notification for a freshly
// created tenant. The notification ID is derived from the tenant so a
// redelivered event lands on the same row and inserts nothing new.
func (s *Service) CreateWelcome(ctx context.Context, env *models.Envelope) error {
	tenantID, err := tenant.MustTenantID(ctx)
	if err != nil {
		return err
	}

	recipient := env.PayloadString("email")
	if recipient == "" {
		contact, err := s.directory.GetContact(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("failed to resolve tenant contact: %w", err)
		}
		recipient = contact.Email
	}

	n := &Notification{
		ID:        WelcomeID(tenantID),
		Recipient: recipient,
		Channel:   models.ChannelEmail,
		Subject:   "Welcome aboard",
		Body:      fmt.Sprintf("Tenant %s has been provisioned.", tenantID),
		Status:    StatusPending,
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}

	s.logger.InfowCtx(ctx, "Recorded pending welcome notification",
		"notification_id", n.ID,
		"recipient", recipient,
	)
	return nil
}

// MarkDelivered resolves the referenced notification, publishes the send
// command for the downstream channel handler and transitions the row to
// sent. A not-yet-visible notification surfaces as a dependency-missing
// error so the caller's retry engine can wait out the consistency window.
func (s *Service) MarkDelivered(ctx context.Context, notificationID string) error {
	n, err := s.repo.GetByID(ctx, notificationID)
	if err != nil {
		return err
	}

	if n.Status != StatusPending {
		s.logger.DebugwCtx(ctx, "Notification already processed, skipping",
			"notification_id", n.ID,
			"status", string(n.Status),
		)
		return nil
	}

	tenantID, err := tenant.MustTenantID(ctx)
	if err != nil {
		return err
	}

	command := models.SendNotificationCommand{
		NotificationID: n.ID,
		TenantID:       tenantID,
		Channel:        n.Channel,
		Recipient:      n.Recipient,
		Subject:        n.Subject,
		Body:           n.Body,
		RequestedAt:    time.Now(),
	}

	// Publish before flipping the state: a crash in between causes a
	// duplicate send on redelivery, never a lost one.
	if err := s.publisher.Publish(ctx, s.commandsTopic, n.ID, command); err != nil {
		return fmt.Errorf("failed to publish send command: %w", err)
	}

	transitioned, err := s.repo.MarkSent(ctx, n.ID)
	if err != nil {
		return err
	}
	if !transitioned {
		s.logger.DebugwCtx(ctx, "Notification state already advanced by a concurrent worker",
			"notification_id", n.ID,
		)
		return nil
	}

	s.logger.InfowCtx(ctx, "Notification dispatched",
		"notification_id", n.ID,
		"channel", n.Channel,
	)
	return nil
}

func WelcomeID(tenantID string) string {
	return "welcome-" + tenantID
}
