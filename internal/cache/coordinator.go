package cache

import (
	"context"
	"fmt"

	"caribou/internal/constants"
	"caribou/internal/event"
	"caribou/internal/logger"
	"caribou/internal/tenant"
	"caribou/pkg/metrics"
	"caribou/pkg/models"
)

// Coordinator applies the declarative event→invalidation mapping. It runs
// synchronously inside the same message-processing unit as the triggering
// handler; coherence is bounded only by the cache's own expiry if a crash
// lands between the business mutation and the invalidation.
type Coordinator struct {
	store  Store
	rules  map[event.Type]Rule
	logger logger.Logger
}

func NewCoordinator(store Store, rules map[event.Type]Rule, log logger.Logger) *Coordinator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Coordinator{
		store:  store,
		rules:  rules,
		logger: log,
	}
}

func (c *Coordinator) OnEvent(ctx context.Context, eventType event.Type, env *models.Envelope) error {
	rule, ok := c.rules[eventType]
	if !ok || rule.Action == ActionNone {
		return nil
	}

	tenantID, err := tenant.MustTenantID(ctx)
	if err != nil {
		return err
	}

	entityID := env.PayloadString(rule.IDField)
	if entityID == "" {
		c.logger.WarnwCtx(ctx, "Invalidation skipped, entity identifier missing from payload",
			"event_type", eventType.String(),
			"id_field", rule.IDField,
		)
		return nil
	}

	if err := c.store.Delete(ctx, EntityKey(tenantID, rule.Kind, entityID)); err != nil {
		return fmt.Errorf("failed to invalidate entity cache: %w", err)
	}

	if rule.Action == ActionEntityAndCollections {
		deleted, err := c.store.DeletePrefix(ctx, CollectionPrefix(tenantID, rule.Kind))
		if err != nil {
			return fmt.Errorf("failed to invalidate collection caches: %w", err)
		}
		c.logger.DebugwCtx(ctx, "Invalidated collection caches",
			"kind", rule.Kind,
			"entries", deleted,
		)
	}

	metrics.CacheInvalidationsTotal.WithLabelValues(rule.Action.String()).Inc()
	return nil
}

// EntityKey addresses one cached entity, scoped to its tenant.
func EntityKey(tenantID, kind, id string) string {
	return fmt.Sprintf("%s:%s:%s", tenantID, kind, id)
}

// CollectionPrefix addresses every cached listing of a kind for a tenant.
func CollectionPrefix(tenantID, kind string) string {
	return fmt.Sprintf("%s:%s:%s:", tenantID, kind, constants.CacheCollectionSegment)
}
