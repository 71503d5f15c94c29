package models

import "time"

// Envelope is the raw inbound message: an opaque key/value payload plus the
// transport metadata delivered alongside it. Producers are not required to
// emit strongly typed payloads, so fields may arrive either as plain scalars
// or wrapped in a {"value": <scalar>} value-object encoding.
type Envelope struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
	Metadata  map[string]interface{} `json:"metadata"`
}

const (
	MetadataTenantID      = "tenantId"
	MetadataCorrelationID = "correlationId"
	MetadataAuthorization = "authorization"
)

func (e *Envelope) PayloadField(name string) (interface{}, bool) {
	return scalarField(e.Payload, name)
}

func (e *Envelope) PayloadString(name string) string {
	return stringField(e.Payload, name)
}

func (e *Envelope) HasPayloadField(name string) bool {
	if e.Payload == nil {
		return false
	}
	_, ok := e.Payload[name]
	return ok
}

func (e *Envelope) MetadataString(name string) string {
	return stringField(e.Metadata, name)
}

// scalarField resolves a field against both supported encodings: a direct
// scalar, or a nested single-field value object {"value": <scalar>}.
func scalarField(m map[string]interface{}, name string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	raw, ok := m[name]
	if !ok {
		return nil, false
	}
	if nested, ok := raw.(map[string]interface{}); ok {
		inner, ok := nested["value"]
		return inner, ok
	}
	return raw, true
}

func stringField(m map[string]interface{}, name string) string {
	raw, ok := scalarField(m, name)
	if !ok {
		return ""
	}
	s, _ := raw.(string)
	return s
}
