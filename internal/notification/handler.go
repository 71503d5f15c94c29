package notification

import (
	"context"

	"caribou/internal/event"
	pkgerrors "caribou/pkg/errors"
	"caribou/pkg/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleTenantCreated(ctx context.Context, env *models.Envelope) error {
	return h.service.CreateWelcome(ctx, env)
}

func (h *Handler) HandleNotificationCreated(ctx context.Context, env *models.Envelope) error {
	notificationID := env.PayloadString(event.FieldNotificationID)
	if notificationID == "" {
		return pkgerrors.ErrMalformedEvent.
			WithDetail("message", "notification event carries no notification identifier")
	}
	return h.service.MarkDelivered(ctx, notificationID)
}
