package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================================
// RESERVATION (reservations table)
// ============================================================================

// DeviceInfo stores the parsed client signature captured at booking time
type DeviceInfo map[string]interface{}

func (d DeviceInfo) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

func (d *DeviceInfo) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("cannot scan %T into DeviceInfo", value)
	}
}

// Reservation is a traveler's claim on one or more seats of a vehicle for a travel date.
// Seats, vehicle and travel date never change after insert.
type Reservation struct {
	ID               int64     `json:"id" db:"id"`
	Slug             string    `json:"slug" db:"slug"`
	BookingReference string    `json:"booking_reference" db:"booking_reference"`
	UserID           uuid.UUID `json:"user_id" db:"user_id"`

	// Scope
	VehicleID   int64     `json:"vehicle_id" db:"vehicle_id"`
	TravelDate  Date      `json:"travel_date" db:"travel_date"`
	DepartureAt time.Time `json:"departure_at" db:"departure_at"`

	// Payload
	SeatNumbers     IntArray    `json:"seat_numbers" db:"seat_numbers"`
	PassengerNames  StringArray `json:"passenger_names" db:"passenger_names"`
	ContactPhone    string      `json:"contact_phone" db:"contact_phone"`
	ContactEmail    string      `json:"contact_email" db:"contact_email"`
	BoardingPoint   *string     `json:"boarding_point,omitempty" db:"boarding_point"`
	DroppingPoint   *string     `json:"dropping_point,omitempty" db:"dropping_point"`
	SpecialRequests *string     `json:"special_requests,omitempty" db:"special_requests"`

	// Money (captured at creation)
	FarePerSeat decimal.Decimal `json:"fare_per_seat" db:"fare_per_seat"`
	BaseAmount  decimal.Decimal `json:"base_amount" db:"base_amount"`
	TaxAmount   decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"`

	// Lifecycle
	Status             ReservationStatus `json:"status" db:"status"`
	PaymentStatus      PaymentStatus     `json:"payment_status" db:"payment_status"`
	PaymentMethod      PaymentMethod     `json:"payment_method" db:"payment_method"`
	CancellationReason *string           `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelledBy        *uuid.UUID        `json:"cancelled_by,omitempty" db:"cancelled_by"`
	ConfirmedAt        *time.Time        `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty" db:"completed_at"`

	// Audit
	BookingIP    *string    `json:"-" db:"booking_ip"`
	UserAgent    *string    `json:"-" db:"user_agent"`
	ClientDevice DeviceInfo `json:"-" db:"client_device"`
	SecurityHash string     `json:"-" db:"security_hash"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Vehicle/route display fields (joined, not stored)
	BusNumber   string `json:"bus_number" db:"bus_number"`
	BusType     string `json:"bus_type" db:"bus_type"`
	RouteName   string `json:"route_name" db:"route_name"`
	Origin      string `json:"origin" db:"origin"`
	Destination string `json:"destination" db:"destination"`
}

// IsOwnedBy reports whether userID made the reservation
func (r *Reservation) IsOwnedBy(userID uuid.UUID) bool {
	return r.UserID == userID
}

// SeatCount returns the number of seats held
func (r *Reservation) SeatCount() int {
	return len(r.SeatNumbers)
}

// ApplyVehicle copies the display fields of v onto the reservation
func (r *Reservation) ApplyVehicle(v *Vehicle) {
	r.BusNumber = v.BusNumber
	r.BusType = v.BusType
	r.RouteName = deref(v.RouteName)
	r.Origin = deref(v.Origin)
	r.Destination = deref(v.Destination)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ============================================================================
// IDENTITY
// ============================================================================

// RoleAdmin is the role that may act on any reservation
const RoleAdmin = "admin"

// Requester is the authenticated principal behind an operation
type Requester struct {
	UserID uuid.UUID
	Roles  []string
}

// IsAdmin reports whether the requester carries the admin role
func (r Requester) IsAdmin() bool {
	for _, role := range r.Roles {
		if role == RoleAdmin {
			return true
		}
	}
	return false
}

// ClientInfo is the network origin of a request, recorded for fraud review
type ClientInfo struct {
	IP        string
	UserAgent string
}

// ============================================================================
// REQUEST/RESPONSE DTOs
// ============================================================================

// CreateReservationRequest is the payload for booking seats
type CreateReservationRequest struct {
	VehicleID       int64         `json:"vehicle_id" binding:"required"`
	SeatNumbers     []int         `json:"seat_numbers"`
	TravelDate      Date          `json:"travel_date"`
	PassengerNames  []string      `json:"passenger_names"`
	ContactPhone    string        `json:"contact_phone"`
	ContactEmail    string        `json:"contact_email"`
	BoardingPoint   *string       `json:"boarding_point,omitempty"`
	DroppingPoint   *string       `json:"dropping_point,omitempty"`
	SpecialRequests *string       `json:"special_requests,omitempty"`
	PaymentMethod   PaymentMethod `json:"payment_method,omitempty"`
}

// UpdateStatusRequest moves a reservation through the state machine and/or corrects payment data
type UpdateStatusRequest struct {
	Status             *ReservationStatus `json:"status,omitempty"`
	PaymentStatus      *PaymentStatus     `json:"payment_status,omitempty"`
	PaymentMethod      *PaymentMethod     `json:"payment_method,omitempty"`
	CancellationReason *string            `json:"cancellation_reason,omitempty"`
}

// CancelReservationRequest carries the optional cancellation reason
type CancelReservationRequest struct {
	Reason string `json:"reason"`
}

// ReservationFilter narrows a reservation listing
type ReservationFilter struct {
	UserID   *uuid.UUID
	Status   *ReservationStatus
	FromDate *Date
	ToDate   *Date
	Page     int
	Limit    int
}

// Offset returns the row offset of the requested page
func (f ReservationFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Pagination describes the position of a page in a listing
type Pagination struct {
	CurrentPage  int  `json:"current_page"`
	TotalPages   int  `json:"total_pages"`
	TotalItems   int  `json:"total_items"`
	ItemsPerPage int  `json:"items_per_page"`
	HasNextPage  bool `json:"has_next_page"`
	HasPrevPage  bool `json:"has_prev_page"`
}

// NewPagination computes pagination metadata
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		CurrentPage:  page,
		TotalPages:   totalPages,
		TotalItems:   total,
		ItemsPerPage: limit,
		HasNextPage:  page < totalPages,
		HasPrevPage:  page > 1,
	}
}

// ReservationPage is one page of a reservation listing
type ReservationPage struct {
	Bookings   []Reservation `json:"bookings"`
	Pagination Pagination    `json:"pagination"`
}

// SeatAvailability is the occupancy of a vehicle on a travel date
type SeatAvailability struct {
	VehicleID        int64        `json:"vehicle_id"`
	TravelDate       Date         `json:"travel_date"`
	Capacity         int          `json:"capacity"`
	OccupiedSeats    []int        `json:"occupied_seats"`
	FreeCount        int          `json:"free_count"`
	SeatMap          map[int]bool `json:"seat_map"`
	RequestedSeats   []int        `json:"requested_seats,omitempty"`
	UnavailableSeats []int        `json:"unavailable_seats,omitempty"`
	AllAvailable     *bool        `json:"all_available,omitempty"`
}

// VehicleManifest lists the reservations of a vehicle on a travel date,
// including those already completed, ordered by first seat
type VehicleManifest struct {
	VehicleID      int64           `json:"vehicle_id"`
	BusNumber      string          `json:"bus_number"`
	TravelDate     Date            `json:"travel_date"`
	Capacity       int             `json:"capacity"`
	BookedSeats    int             `json:"booked_seats"`
	AvailableSeats int             `json:"available_seats"`
	Reservations   []Reservation   `json:"reservations"`
	Summary        ManifestSummary `json:"summary"`
}

// ManifestSummary totals a manifest. Revenue counts paid reservations only.
type ManifestSummary struct {
	TotalBookings     int             `json:"total_bookings"`
	TotalPassengers   int             `json:"total_passengers"`
	ConfirmedBookings int             `json:"confirmed_bookings"`
	PendingBookings   int             `json:"pending_bookings"`
	CompletedBookings int             `json:"completed_bookings"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
}

// Summarize computes the summary of the listed reservations
func (m *VehicleManifest) Summarize() {
	summary := ManifestSummary{TotalBookings: len(m.Reservations), TotalRevenue: decimal.Zero}
	booked := 0
	for _, r := range m.Reservations {
		summary.TotalPassengers += r.SeatCount()
		switch r.Status {
		case ReservationConfirmed:
			summary.ConfirmedBookings++
		case ReservationPending:
			summary.PendingBookings++
		case ReservationCompleted:
			summary.CompletedBookings++
		}
		if r.Status.IsActive() {
			booked += r.SeatCount()
		}
		if r.PaymentStatus == PaymentPaid {
			summary.TotalRevenue = summary.TotalRevenue.Add(r.TotalAmount)
		}
	}
	m.BookedSeats = booked
	m.AvailableSeats = m.Capacity - booked
	m.Summary = summary
}

// BookingStatistics summarises reservations created in a period.
// Revenue counts paid reservations only; rates are percentages of TotalBookings.
type BookingStatistics struct {
	TotalBookings       int             `json:"total_bookings" db:"total_bookings"`
	PendingBookings     int             `json:"pending_bookings" db:"pending_bookings"`
	ConfirmedBookings   int             `json:"confirmed_bookings" db:"confirmed_bookings"`
	CancelledBookings   int             `json:"cancelled_bookings" db:"cancelled_bookings"`
	CompletedBookings   int             `json:"completed_bookings" db:"completed_bookings"`
	TotalSeatsSold      int             `json:"total_seats_sold" db:"total_seats_sold"`
	PaidBookings        int             `json:"paid_bookings" db:"paid_bookings"`
	TotalRevenue        decimal.Decimal `json:"total_revenue" db:"total_revenue"`
	AverageBookingValue decimal.Decimal `json:"average_booking_value" db:"-"`
	CancellationRate    float64         `json:"cancellation_rate" db:"-"`
	ConfirmationRate    float64         `json:"confirmation_rate" db:"-"`
}

// DeriveRates fills the average paid booking value and the status rates
func (s *BookingStatistics) DeriveRates() {
	s.AverageBookingValue = decimal.Zero
	if s.PaidBookings > 0 {
		s.AverageBookingValue = s.TotalRevenue.Div(decimal.NewFromInt(int64(s.PaidBookings))).Round(2)
	}
	s.CancellationRate = percentOf(s.CancelledBookings, s.TotalBookings)
	s.ConfirmationRate = percentOf(s.ConfirmedBookings, s.TotalBookings)
}

func percentOf(part, total int) float64 {
	if total == 0 {
		return 0
	}
	rate, _ := decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2).
		Float64()
	return rate
}

// RoutePopularity is the booking volume of one route
type RoutePopularity struct {
	RouteID      int64           `json:"route_id" db:"route_id"`
	RouteName    string          `json:"route_name" db:"route_name"`
	Origin       string          `json:"origin" db:"origin"`
	Destination  string          `json:"destination" db:"destination"`
	BookingCount int             `json:"booking_count" db:"booking_count"`
	TotalRevenue decimal.Decimal `json:"total_revenue" db:"total_revenue"`
}
