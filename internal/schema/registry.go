package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pkgerrors "caribou/pkg/errors"
)

// ProvisioningRecord maps a tenant to its storage namespace. The records
// live in the shared (public) schema; the per-schema migration ledger is
// owned by the migration tooling itself.
type ProvisioningRecord struct {
	TenantID      string
	SchemaName    string
	ProvisionedAt time.Time
}

type Registry struct {
	db *sql.DB
}

func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

func (r *Registry) EnsureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS tenant_schemas (
			tenant_id      TEXT PRIMARY KEY,
			schema_name    TEXT NOT NULL UNIQUE,
			provisioned_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure tenant_schemas table: %w", err)
	}
	return nil
}

// Record registers the tenant→schema mapping. Duplicate registration from
// a redelivered provisioning event is a no-op.
func (r *Registry) Record(ctx context.Context, tenantID, schemaName string) error {
	query := `
		INSERT INTO tenant_schemas (tenant_id, schema_name)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID, schemaName); err != nil {
		return fmt.Errorf("failed to record tenant schema: %w", err)
	}
	return nil
}

func (r *Registry) SchemaFor(ctx context.Context, tenantID string) (string, error) {
	query := `SELECT schema_name FROM tenant_schemas WHERE tenant_id = $1`

	var schemaName string
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(&schemaName)
	if errors.Is(err, sql.ErrNoRows) {
		return "", pkgerrors.ErrDependencyMissing.
			WithDetail("message", fmt.Sprintf("tenant '%s' has no provisioned schema", tenantID))
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up tenant schema: %w", err)
	}
	return schemaName, nil
}

func (r *Registry) List(ctx context.Context) ([]ProvisioningRecord, error) {
	query := `SELECT tenant_id, schema_name, provisioned_at FROM tenant_schemas ORDER BY provisioned_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant schemas: %w", err)
	}
	defer rows.Close()

	var records []ProvisioningRecord
	for rows.Next() {
		var rec ProvisioningRecord
		if err := rows.Scan(&rec.TenantID, &rec.SchemaName, &rec.ProvisionedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant schema row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
