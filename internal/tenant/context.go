// Package tenant binds the ambient tenant and correlation identifiers for
// exactly one message's processing. The identifiers travel on the
// context.Context of the call chain; the Scope handle additionally guards
// against residue when a worker is reused for the next message.
package tenant

import (
	"context"

	"caribou/pkg/errors"
	"caribou/pkg/logging"
	"caribou/pkg/models"
)

type contextKey int

const (
	tenantIDKey contextKey = iota
	correlationIDKey
	authorizationKey
)

func WithTenantID(ctx context.Context, tenantID string) context.Context {
	ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	return logging.WithTenantID(ctx, tenantID)
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	ctx = context.WithValue(ctx, correlationIDKey, correlationID)
	return logging.WithCorrelationID(ctx, correlationID)
}

func WithAuthorization(ctx context.Context, authorization string) context.Context {
	return context.WithValue(ctx, authorizationKey, authorization)
}

func TenantID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(tenantIDKey).(string)
	return id, ok && id != ""
}

func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// Authorization returns the forwarded authorization credential captured
// from the triggering message, for stamping outbound requests.
func Authorization(ctx context.Context) string {
	auth, _ := ctx.Value(authorizationKey).(string)
	return auth
}

// MustTenantID is for call sites below the propagator where a missing
// tenant indicates a programming error, not bad input.
func MustTenantID(ctx context.Context) (string, error) {
	id, ok := TenantID(ctx)
	if !ok {
		return "", errors.ErrMalformedEvent.WithDetail("message", "no tenant bound to context")
	}
	return id, nil
}

// fromEnvelope extracts the identifiers from the envelope's metadata
// sub-structure, accepting both direct-scalar and value-object encodings.
func fromEnvelope(env *models.Envelope) (tenantID, correlationID, authorization string) {
	if env == nil {
		return "", "", ""
	}
	return env.MetadataString(models.MetadataTenantID),
		env.MetadataString(models.MetadataCorrelationID),
		env.MetadataString(models.MetadataAuthorization)
}
