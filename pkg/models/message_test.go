package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvelopeFieldEncodings(t *testing.T) {
	env := NewEnvelopeBuilder().
		WithID("msg-1").
		WithPayloadField("status", "PENDING").
		WithPayloadField("consignmentId", map[string]interface{}{"value": "C-42"}).
		WithMetadataField(MetadataTenantID, map[string]interface{}{"value": "T1"}).
		WithCorrelationID("corr-9").
		Build()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"direct scalar", env.PayloadString("status"), "PENDING"},
		{"value-object wrapped", env.PayloadString("consignmentId"), "C-42"},
		{"wrapped metadata", env.MetadataString(MetadataTenantID), "T1"},
		{"direct metadata", env.MetadataString(MetadataCorrelationID), "corr-9"},
		{"absent field", env.PayloadString("nope"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestValidateEnvelope(t *testing.T) {
	assert.Error(t, ValidateEnvelope(nil))
	assert.Error(t, ValidateEnvelope(&Envelope{Payload: map[string]interface{}{}}))
	assert.Error(t, ValidateEnvelope(&Envelope{ID: "msg-1"}))
	assert.NoError(t, ValidateEnvelope(NewEnvelopeBuilder().WithID("msg-1").Build()))
}
