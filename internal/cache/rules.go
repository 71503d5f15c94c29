package cache

import (
	"caribou/internal/event"
)

// Action is what an event costs the cache. Under cache-aside, creation
// events cost nothing: the new entity has never been read, so nothing is
// cached for it yet.
type Action int

const (
	ActionNone Action = iota
	ActionEntity
	ActionEntityAndCollections
)

func (a Action) String() string {
	switch a {
	case ActionEntity:
		return "entity"
	case ActionEntityAndCollections:
		return "entity_and_collections"
	default:
		return "none"
	}
}

// Rule maps a semantic event type to the invalidation it requires: the
// cached entity kind and the payload field carrying its identifier.
type Rule struct {
	Action  Action
	Kind    string
	IDField string
}

func DefaultRules() map[event.Type]Rule {
	return map[event.Type]Rule{
		event.TypeTenantCreated:       {Action: ActionNone},
		event.TypeNotificationCreated: {Action: ActionNone},
		event.TypeConsignmentCreated:  {Action: ActionNone},
		event.TypeConsignmentStatusChanged: {
			Action:  ActionEntityAndCollections,
			Kind:    "consignments",
			IDField: event.FieldConsignmentID,
		},
		event.TypeLocationUpdated: {
			Action:  ActionEntity,
			Kind:    "locations",
			IDField: event.FieldLocationID,
		},
		event.TypeProductUpdated: {
			Action:  ActionEntityAndCollections,
			Kind:    "products",
			IDField: event.FieldProductID,
		},
	}
}
