package models

import "time"

type EnvelopeBuilder struct {
	envelope *Envelope
}

func NewEnvelopeBuilder() *EnvelopeBuilder {
	return &EnvelopeBuilder{
		envelope: &Envelope{
			Payload:  make(map[string]interface{}),
			Metadata: make(map[string]interface{}),
		},
	}
}

func (b *EnvelopeBuilder) WithID(id string) *EnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *EnvelopeBuilder) WithSource(source string) *EnvelopeBuilder {
	b.envelope.Source = source
	return b
}

func (b *EnvelopeBuilder) WithTimestamp(timestamp time.Time) *EnvelopeBuilder {
	b.envelope.Timestamp = timestamp
	return b
}

func (b *EnvelopeBuilder) WithPayload(payload map[string]interface{}) *EnvelopeBuilder {
	b.envelope.Payload = payload
	return b
}

func (b *EnvelopeBuilder) WithPayloadField(name string, value interface{}) *EnvelopeBuilder {
	b.envelope.Payload[name] = value
	return b
}

func (b *EnvelopeBuilder) WithTenantID(tenantID string) *EnvelopeBuilder {
	b.envelope.Metadata[MetadataTenantID] = tenantID
	return b
}

func (b *EnvelopeBuilder) WithCorrelationID(correlationID string) *EnvelopeBuilder {
	b.envelope.Metadata[MetadataCorrelationID] = correlationID
	return b
}

func (b *EnvelopeBuilder) WithMetadataField(name string, value interface{}) *EnvelopeBuilder {
	b.envelope.Metadata[name] = value
	return b
}

func (b *EnvelopeBuilder) Build() *Envelope {
	if b.envelope.Timestamp.IsZero() {
		b.envelope.Timestamp = time.Now()
	}
	return b.envelope
}
