package models

import "github.com/shopspring/decimal"

// VehicleStatus represents the operating status of a bus
type VehicleStatus string

const (
	VehicleAvailable    VehicleStatus = "available"
	VehicleInTransit    VehicleStatus = "in-transit"
	VehicleMaintenance  VehicleStatus = "maintenance"
	VehicleOutOfService VehicleStatus = "out-of-service"
)

// Vehicle is the read-only view of a bus and its assigned route
type Vehicle struct {
	ID            int64         `json:"id" db:"id"`
	BusNumber     string        `json:"bus_number" db:"bus_number"`
	BusType       string        `json:"bus_type" db:"bus_type"`
	Capacity      int           `json:"capacity" db:"capacity"`
	Status        VehicleStatus `json:"status" db:"status"`
	IsActive      bool          `json:"is_active" db:"is_active"`
	DepartureTime *string       `json:"departure_time,omitempty" db:"departure_time"`

	// Route (nil when the bus has no route assigned)
	RouteID     *int64           `json:"route_id,omitempty" db:"route_id"`
	RouteName   *string          `json:"route_name,omitempty" db:"route_name"`
	Origin      *string          `json:"origin,omitempty" db:"origin"`
	Destination *string          `json:"destination,omitempty" db:"destination"`
	FarePerSeat *decimal.Decimal `json:"fare_per_seat,omitempty" db:"fare_per_seat"`
}

// IsSellable reports whether seats on this vehicle may be sold.
// A bus without a priced route cannot be sold.
func (v *Vehicle) IsSellable() bool {
	return v.IsActive &&
		v.Status == VehicleAvailable &&
		v.FarePerSeat != nil && v.FarePerSeat.IsPositive()
}

// Departure returns the configured daily departure clock, or "" for midnight
func (v *Vehicle) Departure() string {
	if v.DepartureTime == nil {
		return ""
	}
	return *v.DepartureTime
}
