package tenant

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"caribou/pkg/errors"
	"caribou/pkg/logging"
	"caribou/pkg/models"
)

// Scope is the handle for one message's ambient identifiers. Bind returns
// it together with a context carrying the identifiers; Release must run on
// every exit path. A missing correlation identifier is replaced with a
// fresh one so downstream publishes and logs still correlate; a missing
// tenant identifier is a malformed event.
type Scope struct {
	tenantID      string
	correlationID string
	authorization string
	released      atomic.Bool
}

func Bind(ctx context.Context, env *models.Envelope) (context.Context, *Scope, error) {
	tenantID, correlationID, authorization := fromEnvelope(env)
	if tenantID == "" {
		return ctx, nil, errors.ErrMalformedEvent.
			WithDetail("message", "envelope metadata carries no resolvable tenant identifier")
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	scope := &Scope{
		tenantID:      tenantID,
		correlationID: correlationID,
		authorization: authorization,
	}

	return scope.Attach(ctx), scope, nil
}

// Attach stamps the scope's identifiers onto ctx. The pipeline calls this
// once at bind time and again before every retry attempt, so an attempt
// never runs with identifiers cleared by a previous exit path.
func (s *Scope) Attach(ctx context.Context) context.Context {
	if s == nil || s.released.Load() {
		return ctx
	}

	ctx = WithTenantID(ctx, s.tenantID)
	if s.correlationID != "" {
		ctx = WithCorrelationID(ctx, s.correlationID)
	}
	if s.authorization != "" {
		ctx = WithAuthorization(ctx, s.authorization)
	}
	return ctx
}

func (s *Scope) TenantID() string {
	if s == nil {
		return ""
	}
	return s.tenantID
}

// Release ends the scope. It is idempotent and must be deferred by the
// pipeline so the worker carries no residue into the next message
// regardless of how processing exited.
func (s *Scope) Release() {
	if s == nil {
		return
	}
	s.released.Store(true)
}

func (s *Scope) Released() bool {
	return s != nil && s.released.Load()
}

// LogFields exposes the scope's identifiers for structured logging outside
// an attached context.
func (s *Scope) LogFields() []interface{} {
	if s == nil {
		return nil
	}
	fields := []interface{}{string(logging.TenantIDKey), s.tenantID}
	if s.correlationID != "" {
		fields = append(fields, string(logging.CorrelationIDKey), s.correlationID)
	}
	return fields
}
