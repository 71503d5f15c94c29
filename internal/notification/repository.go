package notification

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
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id string) (*Notification, error)
	MarkSent(ctx context.Context, id string) (bool, error)
}

// PostgresRepository reads and writes the tenant's own schema. The schema
// is resolved from the ambient tenant identifier on every call; queries
// use schema-qualified identifiers so they are safe on a pooled
// connection.
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
	return pq.QuoteIdentifier(schema.Name(tenantID)) + ".notifications", nil
}

// Create inserts the notification. Re-inserting the same ID (a redelivered
// message) is a no-op.
func (r *PostgresRepository) Create(ctx context.Context, n *Notification) error {
	table, err := r.table(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	n.CreatedAt = now
	n.UpdatedAt = now
	if n.Status == "" {
		n.Status = StatusPending
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, recipient, channel, subject, body, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, table)

	_, err = r.db.ExecContext(ctx, query,
		n.ID, n.Recipient, n.Channel, n.Subject, n.Body, string(n.Status), n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Notification, error) {
	table, err := r.table(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, recipient, channel, subject, body, status, created_at, updated_at
		FROM %s
		WHERE id = $1
	`, table)

	var n Notification
	var status string
	err = r.db.QueryRowContext(ctx, query, id).Scan(
		&n.ID, &n.Recipient, &n.Channel, &n.Subject, &n.Body, &status, &n.CreatedAt, &n.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		// The creating transaction may not be visible on this side yet.
		return nil, pkgerrors.ErrDependencyMissing.
			WithDetail("message", fmt.Sprintf("notification '%s' not visible", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load notification: %w", err)
	}

	n.Status = Status(status)
	return &n, nil
}

// MarkSent transitions PENDING→SENT. The state guard makes repeated
// invocation safe: a second delivery finds no pending row and reports
// false without error.
func (r *PostgresRepository) MarkSent(ctx context.Context, id string) (bool, error) {
	table, err := r.table(ctx)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, table)

	result, err := r.db.ExecContext(ctx, query, string(StatusSent), time.Now(), id, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to mark notification sent: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}
