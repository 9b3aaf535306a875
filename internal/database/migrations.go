package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// NewMigrationProvider returns a goose provider over the embedded migrations.
// The provider holds a Postgres advisory lock for the duration of Up and Down.
func NewMigrationProvider(db *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, fmt.Errorf("failed to create migration lock: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys, goose.WithSessionLocker(locker))
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider, nil
}

// Migrate applies every pending migration and returns the files it ran
func Migrate(ctx context.Context, db *sqlx.DB, logger *logrus.Logger) ([]string, error) {
	provider, err := NewMigrationProvider(db.DB)
	if err != nil {
		return nil, err
	}

	results, err := provider.Up(ctx)
	ran := make([]string, 0, len(results))
	for _, result := range results {
		if result.Error != nil {
			continue
		}
		logger.WithFields(logrus.Fields{
			"migration": result.Source.Path,
			"version":   result.Source.Version,
			"duration":  result.Duration.String(),
		}).Info("Applied migration")
		ran = append(ran, result.Source.Path)
	}
	if err != nil {
		return ran, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return ran, nil
}

// MigrationStatus reports, for every embedded migration, whether it has been applied
func MigrationStatus(ctx context.Context, db *sqlx.DB) ([]*goose.MigrationStatus, error) {
	provider, err := NewMigrationProvider(db.DB)
	if err != nil {
		return nil, err
	}
	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}
	return statuses, nil
}

// ResetReservations removes every reservation and ledger row
func ResetReservations(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `TRUNCATE TABLE seat_allocations, reservations RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("failed to truncate reservations: %w", err)
	}
	return nil
}
