package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"caribou/internal/broker"
	"caribou/internal/event"
	"caribou/internal/logger"
	"caribou/internal/tenant"
	pkgerrors "caribou/pkg/errors"
	"caribou/pkg/metrics"
	"caribou/pkg/models"
	"caribou/pkg/retry"
)

// Pipeline is the per-delivery processing unit: decode, classify, bind
// tenant context, dispatch the handler chain under the retry engine, and
// map the result to a broker decision. One delivery is processed to a
// terminal decision before the consumer hands over the next, so tenant
// context can never leak between messages.
type Pipeline struct {
	registry *Registry
	policy   retry.Policy
	logger   logger.Logger
}

func NewPipeline(registry *Registry, policy retry.Policy, log logger.Logger) *Pipeline {
	return &Pipeline{
		registry: registry,
		policy:   policy,
		logger:   log,
	}
}

func (p *Pipeline) HandleDelivery(ctx context.Context, d broker.Delivery) broker.Decision {
	start := time.Now()

	var env models.Envelope
	if err := json.Unmarshal(d.Value, &env); err != nil {
		p.logger.Warnw("Dropping undecodable message",
			"topic", d.Topic,
			"offset", d.Offset,
			"error", err,
		)
		metrics.MessagesSkippedTotal.WithLabelValues(d.Topic, "malformed").Inc()
		return broker.Ack
	}
	if err := models.ValidateEnvelope(&env); err != nil {
		p.logger.Warnw("Dropping invalid envelope",
			"topic", d.Topic,
			"offset", d.Offset,
			"error", err,
		)
		metrics.MessagesSkippedTotal.WithLabelValues(d.Topic, "malformed").Inc()
		return broker.Ack
	}

	eventType := event.Classify(&env, d.TypeHint)
	metrics.EventsClassifiedTotal.WithLabelValues(eventType.String()).Inc()
	if eventType.IsUnknown() {
		p.logger.Debugw("Acknowledging unrecognized event",
			"topic", d.Topic,
			"message_id", env.ID,
		)
		metrics.MessagesSkippedTotal.WithLabelValues(d.Topic, "unknown_event").Inc()
		return broker.Ack
	}

	handlers := p.registry.For(eventType)
	if len(handlers) == 0 {
		metrics.MessagesSkippedTotal.WithLabelValues(d.Topic, "no_handler").Inc()
		return broker.Ack
	}

	ctx, scope, err := tenant.Bind(ctx, &env)
	if err != nil {
		p.logger.Warnw("Dropping message without tenant identity",
			"topic", d.Topic,
			"message_id", env.ID,
			"error", err,
		)
		metrics.MessagesSkippedTotal.WithLabelValues(d.Topic, "missing_tenant").Inc()
		return broker.Ack
	}
	defer scope.Release()

	err = p.dispatch(ctx, scope, eventType, handlers, &env)
	duration := time.Since(start)

	switch {
	case err == nil:
		metrics.MessagesHandledTotal.WithLabelValues(d.Topic, eventType.String()).Inc()
		metrics.ObserveProcessingDuration(eventType.String(), "success", duration)
		return broker.Ack

	case pkgerrors.IsMalformed(err):
		p.logger.WarnwCtx(ctx, "Dropping malformed event",
			"event_type", eventType.String(),
			"message_id", env.ID,
			"error", err,
		)
		metrics.MessagesSkippedTotal.WithLabelValues(d.Topic, "malformed").Inc()
		metrics.ObserveProcessingDuration(eventType.String(), "malformed", duration)
		return broker.Ack

	case pkgerrors.IsProvisioning(err):
		p.logger.ErrorwCtx(ctx, "Tenant provisioning failed",
			"event_type", eventType.String(),
			"message_id", env.ID,
			"error", err,
		)
		metrics.ProvisioningFailuresTotal.Inc()
		metrics.ObserveProcessingDuration(eventType.String(), "provisioning_failure", duration)
		return broker.Ack

	default:
		p.logger.ErrorwCtx(ctx, "Handing message back to the broker",
			"event_type", eventType.String(),
			"message_id", env.ID,
			"error", err,
		)
		metrics.ObserveProcessingDuration(eventType.String(), "requeue", duration)
		return broker.Requeue
	}
}

// dispatch runs the handler chain under the retry engine. The tenant
// scope is re-attached on every attempt so identifiers survive into
// retries, and a panicking handler is converted to a fatal
// infrastructure error instead of taking down the consumer loop.
func (p *Pipeline) dispatch(ctx context.Context, scope *tenant.Scope, eventType event.Type, handlers []HandlerFunc, env *models.Envelope) error {
	attemptFn := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = pkgerrors.RecoverPanic(r)
				p.logger.ErrorwCtx(ctx, "Recovered handler panic",
					"event_type", eventType.String(),
					"message_id", env.ID,
					"error", err,
				)
			}
		}()

		attemptCtx := scope.Attach(ctx)
		for _, handler := range handlers {
			if err := handler(attemptCtx, env); err != nil {
				return err
			}
		}
		return nil
	}

	onRetry := func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(eventType.String()).Inc()
		p.logger.WarnwCtx(ctx, "Dependency not visible yet, backing off",
			"event_type", eventType.String(),
			"message_id", env.ID,
			"attempt", attempt,
			"next_delay", nextDelay.String(),
			"error", err,
		)
	}

	return retry.RetryWithCallback(ctx, p.policy, attemptFn, onRetry)
}
