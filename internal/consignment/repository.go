package consignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"caribou/internal/schema"
	"caribou/internal/tenant"
	pkgerrors "caribou/pkg/errors"
)

type Repository interface {
	Upsert(ctx context.Context, c *Consignment) error
	UpdateStatus(ctx context.Context, id, status string) (bool, error)
	GetByID(ctx context.Context, id string) (*Consignment, error)
}

// PostgresRepository maintains the consignment read model inside the
// tenant's own schema. The schema is resolved from the ambient tenant
// identifier on every call; queries use schema-qualified identifiers so
// they are safe on a pooled connection.
type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) table(ctx context.Context) (string, error) {
	tenantID, err := tenant.MustTenantID(ctx)
	if err != nil {
		return "", err
	}
	return pq.QuoteIdentifier(schema.Name(tenantID)) + ".consignments", nil
}

// Upsert inserts the read-model row. A redelivered creation event hits
// the conflict clause and is a no-op.
func (r *PostgresRepository) Upsert(ctx context.Context, c *Consignment) error {
	table, err := r.table(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = StatusNew
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, table)

	_, err = r.db.ExecContext(ctx, query, c.ID, c.Name, c.Status, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert consignment: %w", err)
	}
	return nil
}

// UpdateStatus transitions the row to the given status. A row that is
// not visible yet surfaces as a dependency-missing error so the caller's
// retry engine can wait out the consistency window; a row already in the
// target status reports false without error.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id, status string) (bool, error) {
	table, err := r.table(ctx)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status <> $1
	`, table)

	result, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to update consignment status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Consignment, error) {
	table, err := r.table(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, name, status, created_at, updated_at
		FROM %s
		WHERE id = $1
	`, table)

	var c Consignment
	err = r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// The creating event may still be in flight on another partition.
		return nil, pkgerrors.ErrDependencyMissing.
			WithDetail("message", fmt.Sprintf("consignment '%s' not visible", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load consignment: %w", err)
	}
	return &c, nil
}
