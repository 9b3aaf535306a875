package database

import (
	"io/fs"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMigrationProvider(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	provider, err := NewMigrationProvider(db)
	require.NoError(t, err)

	sources := provider.ListSources()
	require.Len(t, sources, 1)
	assert.Equal(t, int64(1), sources[0].Version)
	assert.Equal(t, goose.TypeSQL, sources[0].Type)
	assert.Contains(t, sources[0].Path, "001_reservations.sql")

	// Building the provider must not touch the database
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationFiles(t *testing.T) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	for _, name := range names {
		body, err := migrationFiles.ReadFile(name)
		require.NoError(t, err)

		t.Run(name, func(t *testing.T) {
			assert.Contains(t, string(body), "-- +goose Up")
			assert.Contains(t, string(body), "-- +goose Down")
		})
	}

	body, err := migrationFiles.ReadFile("migrations/001_reservations.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "CONSTRAINT seat_allocations_pkey PRIMARY KEY (vehicle_id, travel_date, seat_number)")
	assert.Contains(t, string(body), "idx_reservations_created")
}
