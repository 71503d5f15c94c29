package schema

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"

	"caribou/internal/config"
	"caribou/internal/logger"
	"caribou/pkg/metrics"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Provisioner creates and migrates per-tenant storage namespaces on
// demand. Idempotence comes from "create if not exists" DDL plus the
// uniquely keyed migration ledger the tooling maintains inside each
// schema, not from any distributed lock. The migration run opens its own
// connection and commits per script; it must never be nested inside an
// ambient transaction.
type Provisioner struct {
	db       *sql.DB
	cfg      config.PostgresConfig
	registry *Registry
	logger   logger.Logger
}

func NewProvisioner(db *sql.DB, cfg config.PostgresConfig, registry *Registry, log logger.Logger) *Provisioner {
	return &Provisioner{
		db:       db,
		cfg:      cfg,
		registry: registry,
		logger:   log,
	}
}

// EnsureSchemaReady brings schemaName fully up to date. A second
// invocation for an already provisioned schema applies zero further
// changes; two workers racing on the same schema are serialized by the
// migration tooling's advisory lock.
func (p *Provisioner) EnsureSchemaReady(ctx context.Context, schemaName string) error {
	if schemaName == "" {
		return fmt.Errorf("schema name must not be empty")
	}

	createStmt := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pq.QuoteIdentifier(schemaName))
	if _, err := p.db.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schemaName, err)
	}

	applied, err := p.migrateSchema(ctx, schemaName)
	if err != nil {
		return err
	}

	if applied {
		metrics.MigrationsAppliedTotal.Inc()
		p.logger.InfowCtx(ctx, "Applied pending migrations to tenant schema",
			"schema", schemaName,
		)
	} else {
		p.logger.DebugwCtx(ctx, "Tenant schema already up to date",
			"schema", schemaName,
		)
	}

	metrics.SchemasProvisionedTotal.Inc()
	return nil
}

// migrateSchema runs the embedded migration set against one schema. The
// dedicated connection scopes search_path to the schema so scripts stay
// namespace-relative, and the ledger (schema_migrations) lands inside the
// same schema.
func (p *Provisioner) migrateSchema(ctx context.Context, schemaName string) (applied bool, err error) {
	mdb, err := sql.Open("postgres", p.schemaDSN(schemaName))
	if err != nil {
		return false, fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer mdb.Close()

	if err := mdb.PingContext(ctx); err != nil {
		return false, fmt.Errorf("failed to ping migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(mdb, &postgres.Config{
		SchemaName: schemaName,
	})
	if err != nil {
		return false, fmt.Errorf("failed to init migration driver: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return false, fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return false, fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil && srcErr != nil {
			err = srcErr
		}
		if err == nil && dbErr != nil {
			err = dbErr
		}
	}()

	if upErr := m.Up(); upErr != nil {
		if errors.Is(upErr, migrate.ErrNoChange) {
			return false, nil
		}
		return false, fmt.Errorf("failed to migrate schema %s: %w", schemaName, upErr)
	}

	return true, nil
}

func (p *Provisioner) schemaDSN(schemaName string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&search_path=%s",
		url.QueryEscape(p.cfg.User),
		url.QueryEscape(p.cfg.Password),
		p.cfg.Host,
		p.cfg.Port,
		p.cfg.DBName,
		p.cfg.SSLMode,
		url.QueryEscape(schemaName),
	)
}
