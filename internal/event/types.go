package event

// Type is the semantic event type resolved from an inbound envelope.
// TypeUnknown is a valid terminal value: the message is acknowledged and
// skipped without processing.
type Type string

const (
	TypeUnknown Type = "Unknown"

	TypeTenantCreated            Type = "TenantCreatedEvent"
	TypeNotificationCreated      Type = "NotificationCreatedEvent"
	TypeConsignmentCreated       Type = "ConsignmentCreatedEvent"
	TypeConsignmentStatusChanged Type = "ConsignmentStatusChangedEvent"
	TypeLocationUpdated          Type = "LocationUpdatedEvent"
	TypeProductUpdated           Type = "ProductUpdatedEvent"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) IsUnknown() bool {
	return t == TypeUnknown || t == ""
}

// known maps short event names to their types for discriminator and
// transport-hint resolution.
var known = map[string]Type{
	string(TypeTenantCreated):            TypeTenantCreated,
	string(TypeNotificationCreated):      TypeNotificationCreated,
	string(TypeConsignmentCreated):       TypeConsignmentCreated,
	string(TypeConsignmentStatusChanged): TypeConsignmentStatusChanged,
	string(TypeLocationUpdated):          TypeLocationUpdated,
	string(TypeProductUpdated):           TypeProductUpdated,
}
