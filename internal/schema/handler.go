package schema

import (
	"context"

	"caribou/internal/event"
	"caribou/internal/logger"
	"caribou/internal/tenant"
	pkgerrors "caribou/pkg/errors"
	"caribou/pkg/models"
)

// Handler provisions a tenant's schema in response to tenant creation
// events and records the tenant→schema mapping.
type Handler struct {
	provisioner *Provisioner
	registry    *Registry
	logger      logger.Logger
}

func NewHandler(provisioner *Provisioner, registry *Registry, log logger.Logger) *Handler {
	return &Handler{provisioner: provisioner, registry: registry, logger: log}
}

// HandleTenantCreated ensures the tenant's schema exists and is fully
// migrated. The explicit schema name in the payload wins; otherwise the
// name is derived from the ambient tenant identifier. Provisioning runs
// on its own connection, so a partial failure here never poisons other
// work on the pool.
func (h *Handler) HandleTenantCreated(ctx context.Context, env *models.Envelope) error {
	tenantID, err := tenant.MustTenantID(ctx)
	if err != nil {
		return err
	}

	schemaName := env.PayloadString(event.FieldSchemaName)
	if schemaName == "" {
		schemaName = Name(tenantID)
	}

	if err := h.provisioner.EnsureSchemaReady(ctx, schemaName); err != nil {
		return pkgerrors.ErrProvisioning.WithCause(err).
			WithDetail("schema", schemaName)
	}

	if err := h.registry.Record(ctx, tenantID, schemaName); err != nil {
		return pkgerrors.ErrProvisioning.WithCause(err).
			WithDetail("schema", schemaName)
	}

	h.logger.InfowCtx(ctx, "Tenant schema ready",
		"schema", schemaName,
	)
	return nil
}
