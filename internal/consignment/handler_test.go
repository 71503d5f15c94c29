package consignment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caribou/internal/logger"
	"caribou/internal/tenant"
	pkgerrors "caribou/pkg/errors"
	"caribou/pkg/models"
)

type fakeRepository struct {
	rows        map[string]*Consignment
	hiddenReads map[string]int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		rows:        make(map[string]*Consignment),
		hiddenReads: make(map[string]int),
	}
}

func (r *fakeRepository) Upsert(ctx context.Context, c *Consignment) error {
	if _, exists := r.rows[c.ID]; exists {
		return nil
	}
	if c.Status == "" {
		c.Status = StatusNew
	}
	copied := *c
	r.rows[c.ID] = &copied
	return nil
}

func (r *fakeRepository) UpdateStatus(ctx context.Context, id, status string) (bool, error) {
	if r.hiddenReads[id] > 0 {
		r.hiddenReads[id]--
		return false, pkgerrors.ErrDependencyMissing
	}
	c, ok := r.rows[id]
	if !ok {
		return false, pkgerrors.ErrDependencyMissing
	}
	if c.Status == status {
		return false, nil
	}
	c.Status = status
	return true, nil
}

func (r *fakeRepository) GetByID(ctx context.Context, id string) (*Consignment, error) {
	c, ok := r.rows[id]
	if !ok {
		return nil, pkgerrors.ErrDependencyMissing
	}
	copied := *c
	return &copied, nil
}

func testCtx() context.Context {
	return tenant.WithTenantID(context.Background(), "T1")
}

func TestHandleCreatedUpsertsReadModel(t *testing.T) {
	repo := newFakeRepository()
	h := NewHandler(repo, logger.NopLogger())

	env := models.NewEnvelopeBuilder().WithID("m1").
		WithPayloadField("consignmentId", "C1").
		WithPayloadField("name", "Spring shipment").
		WithPayloadField("status", "NEW").
		Build()

	require.NoError(t, h.HandleCreated(testCtx(), env))
	require.NoError(t, h.HandleCreated(testCtx(), env))

	require.Len(t, repo.rows, 1)
	assert.Equal(t, "Spring shipment", repo.rows["C1"].Name)
	assert.Equal(t, StatusNew, repo.rows["C1"].Status)
}

func TestHandleCreatedFallsBackToEnvelopeID(t *testing.T) {
	repo := newFakeRepository()
	h := NewHandler(repo, logger.NopLogger())

	env := models.NewEnvelopeBuilder().WithID("m1").
		WithPayloadField("name", "Spring shipment").
		WithPayloadField("status", "NEW").
		Build()

	require.NoError(t, h.HandleCreated(testCtx(), env))
	assert.Contains(t, repo.rows, "m1")
}

func TestHandleCreatedWithoutNameIsMalformed(t *testing.T) {
	h := NewHandler(newFakeRepository(), logger.NopLogger())

	env := models.NewEnvelopeBuilder().WithID("m1").
		WithPayloadField("consignmentId", "C1").
		Build()

	err := h.HandleCreated(testCtx(), env)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsMalformed(err))
}

func TestHandleStatusChangedTransitions(t *testing.T) {
	repo := newFakeRepository()
	repo.rows["C1"] = &Consignment{ID: "C1", Name: "Spring shipment", Status: StatusNew}
	h := NewHandler(repo, logger.NopLogger())

	env := models.NewEnvelopeBuilder().WithID("m2").
		WithPayloadField("consignmentId", "C1").
		WithPayloadField("status", "DISPATCHED").
		Build()

	require.NoError(t, h.HandleStatusChanged(testCtx(), env))
	assert.Equal(t, "DISPATCHED", repo.rows["C1"].Status)

	// Redelivery finds the row already transitioned.
	require.NoError(t, h.HandleStatusChanged(testCtx(), env))
	assert.Equal(t, "DISPATCHED", repo.rows["C1"].Status)
}

func TestHandleStatusChangedGuardsOnCreationShape(t *testing.T) {
	repo := newFakeRepository()
	repo.rows["C1"] = &Consignment{ID: "C1", Name: "Spring shipment", Status: StatusNew}
	h := NewHandler(repo, logger.NopLogger())

	env := models.NewEnvelopeBuilder().WithID("m2").
		WithPayloadField("consignmentId", "C1").
		WithPayloadField("name", "Spring shipment").
		WithPayloadField("status", "DISPATCHED").
		Build()

	require.NoError(t, h.HandleStatusChanged(testCtx(), env))
	assert.Equal(t, StatusNew, repo.rows["C1"].Status)
}

func TestHandleStatusChangedInvisibleRowIsDependencyMissing(t *testing.T) {
	repo := newFakeRepository()
	repo.hiddenReads["C1"] = 1
	repo.rows["C1"] = &Consignment{ID: "C1", Status: StatusNew}
	h := NewHandler(repo, logger.NopLogger())

	env := models.NewEnvelopeBuilder().WithID("m2").
		WithPayloadField("consignmentId", "C1").
		WithPayloadField("status", "DISPATCHED").
		Build()

	err := h.HandleStatusChanged(testCtx(), env)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsDependencyMissing(err))

	require.NoError(t, h.HandleStatusChanged(testCtx(), env))
	assert.Equal(t, "DISPATCHED", repo.rows["C1"].Status)
}

func TestHandleStatusChangedMissingFieldsIsMalformed(t *testing.T) {
	h := NewHandler(newFakeRepository(), logger.NopLogger())

	env := models.NewEnvelopeBuilder().WithID("m2").
		WithPayloadField("consignmentId", "C1").
		Build()

	err := h.HandleStatusChanged(testCtx(), env)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsMalformed(err))
}
