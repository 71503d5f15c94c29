package consignment

import (
	"context"

	"caribou/internal/event"
	"caribou/internal/logger"
	pkgerrors "caribou/pkg/errors"
	"caribou/pkg/models"
)

// Handler maintains the consignment read model from inbound events.
type Handler struct {
	repo   Repository
	logger logger.Logger
}

func NewHandler(repo Repository, log logger.Logger) *Handler {
	return &Handler{repo: repo, logger: log}
}

func (h *Handler) HandleCreated(ctx context.Context, env *models.Envelope) error {
	name := env.PayloadString(event.FieldName)
	if name == "" {
		return pkgerrors.ErrMalformedEvent.
			WithDetail("message", "consignment creation event carries no name")
	}

	id := env.PayloadString(event.FieldConsignmentID)
	if id == "" {
		id = env.ID
	}

	c := &Consignment{
		ID:     id,
		Name:   name,
		Status: env.PayloadString(event.FieldStatus),
	}
	if err := h.repo.Upsert(ctx, c); err != nil {
		return err
	}

	h.logger.InfowCtx(ctx, "Recorded consignment read model",
		"consignment_id", c.ID,
		"status", c.Status,
	)
	return nil
}

// HandleStatusChanged applies a status transition. Creation and
// status-change events share field shapes, so the classifier's verdict
// is a best guess; a payload that still carries a name field is
// creation-shaped and is not transitioned here.
func (h *Handler) HandleStatusChanged(ctx context.Context, env *models.Envelope) error {
	if env.HasPayloadField(event.FieldName) {
		h.logger.DebugwCtx(ctx, "Skipping creation-shaped payload in status-change handler",
			"message_id", env.ID,
		)
		return nil
	}

	id := env.PayloadString(event.FieldConsignmentID)
	status := env.PayloadString(event.FieldStatus)
	if id == "" || status == "" {
		return pkgerrors.ErrMalformedEvent.
			WithDetail("message", "status-change event carries no consignment identifier or status")
	}

	transitioned, err := h.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return err
	}
	if !transitioned {
		h.logger.DebugwCtx(ctx, "Consignment already in target status",
			"consignment_id", id,
			"status", status,
		)
		return nil
	}

	h.logger.InfowCtx(ctx, "Transitioned consignment status",
		"consignment_id", id,
		"status", status,
	)
	return nil
}
