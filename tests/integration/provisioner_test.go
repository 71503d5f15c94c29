package integration

import (
	"context"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "caribou/pkg/errors"

	"caribou/internal/schema"
)

func migrationVersion(t *testing.T, infra *TestInfra, schemaName string) (version int64, dirty bool) {
	t.Helper()
	query := fmt.Sprintf("SELECT version, dirty FROM %s.schema_migrations", pq.QuoteIdentifier(schemaName))
	err := infra.PostgresDB.QueryRow(query).Scan(&version, &dirty)
	require.NoError(t, err)
	return version, dirty
}

func TestEnsureSchemaReadyIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	infra := SetupTestInfraWithOptions(t, true, false)
	ctx := context.Background()

	registry := schema.NewRegistry(infra.PostgresDB)
	require.NoError(t, registry.EnsureTable(ctx))

	provisioner := schema.NewProvisioner(infra.PostgresDB, infra.PostgresCfg, registry, createTestLogger())

	schemaName := schema.Name("acme")
	require.NoError(t, provisioner.EnsureSchemaReady(ctx, schemaName))
	firstVersion, dirty := migrationVersion(t, infra, schemaName)
	assert.False(t, dirty)

	// Redelivered provisioning event: no further changes.
	require.NoError(t, provisioner.EnsureSchemaReady(ctx, schemaName))
	secondVersion, dirty := migrationVersion(t, infra, schemaName)
	assert.False(t, dirty)
	assert.Equal(t, firstVersion, secondVersion)

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s.notifications", pq.QuoteIdentifier(schemaName))
	require.NoError(t, infra.PostgresDB.QueryRow(query).Scan(&count))
	assert.Zero(t, count)
}

func TestProvisionedSchemasAreIsolated(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	infra := SetupTestInfraWithOptions(t, true, false)
	ctx := context.Background()

	registry := schema.NewRegistry(infra.PostgresDB)
	require.NoError(t, registry.EnsureTable(ctx))

	provisioner := schema.NewProvisioner(infra.PostgresDB, infra.PostgresCfg, registry, createTestLogger())

	for _, tenantID := range []string{"alpha", "beta"} {
		require.NoError(t, provisioner.EnsureSchemaReady(ctx, schema.Name(tenantID)))
		require.NoError(t, registry.Record(ctx, tenantID, schema.Name(tenantID)))
	}

	insert := fmt.Sprintf(
		"INSERT INTO %s.notifications (id, recipient, channel, subject, body, status, created_at, updated_at) VALUES ('n1', 'a@b.com', 'EMAIL', 's', 'b', 'PENDING', NOW(), NOW())",
		pq.QuoteIdentifier(schema.Name("alpha")),
	)
	_, err := infra.PostgresDB.Exec(insert)
	require.NoError(t, err)

	var alphaCount, betaCount int
	require.NoError(t, infra.PostgresDB.QueryRow(
		fmt.Sprintf("SELECT COUNT(*) FROM %s.notifications", pq.QuoteIdentifier(schema.Name("alpha"))),
	).Scan(&alphaCount))
	require.NoError(t, infra.PostgresDB.QueryRow(
		fmt.Sprintf("SELECT COUNT(*) FROM %s.notifications", pq.QuoteIdentifier(schema.Name("beta"))),
	).Scan(&betaCount))

	assert.Equal(t, 1, alphaCount)
	assert.Zero(t, betaCount)

	resolved, err := registry.SchemaFor(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, schema.Name("alpha"), resolved)

	_, err = registry.SchemaFor(ctx, "unknown-tenant")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsDependencyMissing(err))
}
