package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

// VehicleRepository reads buses and their assigned routes
type VehicleRepository struct {
	db *sqlx.DB
}

// NewVehicleRepository creates a new VehicleRepository
func NewVehicleRepository(db *sqlx.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// GetByID returns a vehicle with its route fare, or ErrNotFound
func (r *VehicleRepository) GetByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	query := `
		SELECT
			v.id, v.bus_number, v.bus_type, v.capacity, v.status, v.is_active,
			to_char(v.departure_time, 'HH24:MI') AS departure_time,
			v.route_id, rt.route_name, rt.origin, rt.destination,
			rt.fare AS fare_per_seat
		FROM vehicles v
		LEFT JOIN routes rt ON rt.id = v.route_id
		WHERE v.id = $1`

	var vehicle models.Vehicle
	if err := r.db.GetContext(ctx, &vehicle, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return &vehicle, nil
}
