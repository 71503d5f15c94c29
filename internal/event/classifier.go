package event

import (
	"strings"

	"caribou/pkg/models"
)

// Payload field names consulted by the classifier.
const (
	FieldEventType      = "eventType"
	FieldSchemaName     = "schemaName"
	FieldNotificationID = "notificationId"
	FieldConsignmentID  = "consignmentId"
	FieldLocationID     = "locationId"
	FieldProductID      = "productId"
	FieldName           = "name"
	FieldStatus         = "status"
)

// fieldRule maps a field-presence signature to the event type it uniquely
// implies. Rules are evaluated in order; the first full match wins.
type fieldRule struct {
	present []string
	result  Type
}

// The table is ordered from most to least specific. Note that a status
// change and a creation on the same aggregate are not always separable by
// fields alone; handlers apply their own narrower guard before acting.
var fieldRules = []fieldRule{
	{present: []string{FieldSchemaName}, result: TypeTenantCreated},
	{present: []string{FieldNotificationID}, result: TypeNotificationCreated},
	{present: []string{FieldName, FieldStatus}, result: TypeConsignmentCreated},
	{present: []string{FieldConsignmentID, FieldStatus}, result: TypeConsignmentStatusChanged},
	{present: []string{FieldLocationID}, result: TypeLocationUpdated},
	{present: []string{FieldProductID}, result: TypeProductUpdated},
}

// Classify resolves an envelope to its semantic event type. Resolution is
// layered: an embedded discriminator field always wins because transport
// level type propagation may be disabled or stale, then the transport hint,
// then field-presence heuristics, otherwise Unknown. Pure function of its
// inputs.
func Classify(env *models.Envelope, transportHint string) Type {
	if env == nil {
		return TypeUnknown
	}

	// An unrecognized discriminator falls through to the weaker layers;
	// producers on newer contract versions may emit names we cannot map.
	if discriminator := env.PayloadString(FieldEventType); discriminator != "" {
		if t, ok := known[ShortName(discriminator)]; ok {
			return t
		}
	}

	if transportHint != "" {
		if t, ok := known[ShortName(transportHint)]; ok {
			return t
		}
	}

	for _, rule := range fieldRules {
		if hasAll(env, rule.present) {
			return rule.result
		}
	}

	return TypeUnknown
}

// ShortName strips any namespace prefix from a type discriminator, e.g.
// "com.acme.tenancy.TenantCreatedEvent" reduces to "TenantCreatedEvent".
func ShortName(discriminator string) string {
	if idx := strings.LastIndexAny(discriminator, "./$"); idx >= 0 {
		return discriminator[idx+1:]
	}
	return discriminator
}

func hasAll(env *models.Envelope, fields []string) bool {
	for _, f := range fields {
		if !env.HasPayloadField(f) {
			return false
		}
	}
	return true
}
