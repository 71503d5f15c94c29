package cache

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caribou/internal/event"
	"caribou/internal/logger"
	"caribou/internal/tenant"
	"caribou/pkg/models"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore(keys ...string) *fakeStore {
	s := &fakeStore{data: make(map[string]string)}
	for _, k := range keys {
		s.data[k] = "cached"
	}
	return s
}

func (s *fakeStore) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *fakeStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	deleted := 0
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			delete(s.data, k)
			deleted++
		}
	}
	return deleted, nil
}

func tenantCtx(t *testing.T, tenantID string) context.Context {
	t.Helper()
	return tenant.WithTenantID(context.Background(), tenantID)
}

func TestCreatedEventInvalidatesNothing(t *testing.T) {
	store := newFakeStore("T1:consignments:C-1", "T1:consignments:list:all")
	coord := NewCoordinator(store, nil, logger.NopLogger())

	env := models.NewEnvelopeBuilder().WithID("m1").
		WithPayloadField("name", "pallet 7").
		WithPayloadField("status", "NEW").
		Build()

	err := coord.OnEvent(tenantCtx(t, "T1"), event.TypeConsignmentCreated, env)
	require.NoError(t, err)
	assert.Len(t, store.data, 2)
}

func TestStatusChangeInvalidatesEntityAndCollections(t *testing.T) {
	store := newFakeStore(
		"T1:consignments:C-1",
		"T1:consignments:C-2",
		"T1:consignments:list:all",
		"T1:consignments:list:page_1",
		"T2:consignments:list:all",
	)
	coord := NewCoordinator(store, nil, logger.NopLogger())

	env := models.NewEnvelopeBuilder().WithID("m1").
		WithPayloadField("consignmentId", "C-1").
		WithPayloadField("status", "IN_TRANSIT").
		Build()

	err := coord.OnEvent(tenantCtx(t, "T1"), event.TypeConsignmentStatusChanged, env)
	require.NoError(t, err)

	assert.NotContains(t, store.data, "T1:consignments:C-1")
	assert.NotContains(t, store.data, "T1:consignments:list:all")
	assert.NotContains(t, store.data, "T1:consignments:list:page_1")
	// Other entities and other tenants' collections stay put.
	assert.Contains(t, store.data, "T1:consignments:C-2")
	assert.Contains(t, store.data, "T2:consignments:list:all")
}

func TestLocationUpdateInvalidatesEntityOnly(t *testing.T) {
	store := newFakeStore("T1:locations:L-9", "T1:locations:list:all")
	coord := NewCoordinator(store, nil, logger.NopLogger())

	env := models.NewEnvelopeBuilder().WithID("m1").
		WithPayloadField("locationId", "L-9").
		Build()

	err := coord.OnEvent(tenantCtx(t, "T1"), event.TypeLocationUpdated, env)
	require.NoError(t, err)

	assert.NotContains(t, store.data, "T1:locations:L-9")
	assert.Contains(t, store.data, "T1:locations:list:all")
}

func TestInvalidationRequiresTenantContext(t *testing.T) {
	store := newFakeStore("T1:locations:L-9")
	coord := NewCoordinator(store, nil, logger.NopLogger())

	env := models.NewEnvelopeBuilder().WithID("m1").
		WithPayloadField("locationId", "L-9").
		Build()

	err := coord.OnEvent(context.Background(), event.TypeLocationUpdated, env)
	assert.Error(t, err)
	assert.Contains(t, store.data, "T1:locations:L-9")
}

func TestMissingEntityIDSkipsQuietly(t *testing.T) {
	store := newFakeStore("T1:locations:L-9")
	coord := NewCoordinator(store, nil, logger.NopLogger())

	env := models.NewEnvelopeBuilder().WithID("m1").Build()

	err := coord.OnEvent(tenantCtx(t, "T1"), event.TypeLocationUpdated, env)
	require.NoError(t, err)
	assert.Contains(t, store.data, "T1:locations:L-9")
}
