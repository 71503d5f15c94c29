package errors

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedErrorsDoNotShareSentinelState(t *testing.T) {
	e1 := ErrMalformedEvent.WithDetail("message", "tenant A: missing field")
	e2 := ErrMalformedEvent.WithDetail("message", "tenant B: missing field")

	assert.Equal(t, "MALFORMED_EVENT: tenant A: missing field", e1.Error())
	assert.Equal(t, "MALFORMED_EVENT: tenant B: missing field", e2.Error())

	// The sentinel itself must stay pristine.
	assert.Empty(t, ErrMalformedEvent.Details)
	assert.Equal(t, "MALFORMED_EVENT: event payload is malformed", ErrMalformedEvent.Error())
}

func TestWithCauseDoesNotShareSentinelState(t *testing.T) {
	wrapped := ErrProvisioning.WithCause(fmt.Errorf("ddl failed")).WithDetail("schema", "tenant_a")

	require.Contains(t, wrapped.Details, "schema")
	assert.Empty(t, ErrProvisioning.Details)
	assert.Nil(t, ErrProvisioning.Cause)
}

func TestWithDetailIsSafeUnderConcurrentWorkers(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				err := ErrDependencyMissing.WithDetail("message", fmt.Sprintf("worker %d row %d", worker, j))
				assert.Contains(t, err.Error(), fmt.Sprintf("worker %d", worker))
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, ErrDependencyMissing.Details)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, ErrDependencyMissing.IsRetryable())
	assert.False(t, ErrDependencyMissing.IsFatal())

	assert.False(t, ErrMalformedEvent.IsRetryable())
	assert.True(t, ErrMalformedEvent.IsFatal())
	assert.True(t, ErrProvisioning.IsFatal())

	wrapped := fmt.Errorf("handler failed: %w", ErrDependencyMissing.WithDetail("message", "row n1 not visible"))
	assert.True(t, IsDependencyMissing(wrapped))
	assert.False(t, IsMalformed(wrapped))
}
