package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/FACorreiaa/money-diary/migrations"
)

// MigrationStatus is one row of `migrate status`.
type MigrationStatus struct {
	Version int64
	Path    string
	Applied bool
}

func (d *DB) provider() (*goose.Provider, *sql.DB, error) {
	sqlDB := stdlib.OpenDBFromPool(d.Pool)
	p, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations.FS)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return p, sqlDB, nil
}

// RunMigrations applies all pending migrations.
func (d *DB) RunMigrations() error {
	return d.MigrateUp(context.Background())
}

// MigrateUp applies all pending migrations.
func (d *DB) MigrateUp(ctx context.Context) error {
	p, sqlDB, err := d.provider()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		d.logger.Info("migration applied", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (d *DB) MigrateDown(ctx context.Context) error {
	p, sqlDB, err := d.provider()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	r, err := p.Down(ctx)
	if err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	d.logger.Info("migration rolled back", "version", r.Source.Version)
	return nil
}

// MigrationStatuses lists every known migration and whether it is applied.
func (d *DB) MigrationStatuses(ctx context.Context) ([]MigrationStatus, error) {
	p, sqlDB, err := d.provider()
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()

	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}
	out := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationStatus{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}
