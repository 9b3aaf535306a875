// Package notification informs external collaborators about reservation
// lifecycle transitions. Delivery is best-effort: a failed send is logged and
// counted, never reported back to the operation that produced the event.
package notification

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

// EventType names a lifecycle transition
type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingConfirmed EventType = "booking.confirmed"
	EventBookingCancelled EventType = "booking.cancelled"
	EventBookingCompleted EventType = "booking.completed"
)

// EventForStatus maps the status a reservation moved into to its event type
func EventForStatus(status models.ReservationStatus) EventType {
	switch status {
	case models.ReservationConfirmed:
		return EventBookingConfirmed
	case models.ReservationCancelled:
		return EventBookingCancelled
	case models.ReservationCompleted:
		return EventBookingCompleted
	default:
		return EventBookingCreated
	}
}

// Event is the payload handed to every sink
type Event struct {
	Type             EventType                `json:"type"`
	BookingReference string                   `json:"booking_reference"`
	Slug             string                   `json:"slug"`
	UserID           uuid.UUID                `json:"user_id"`
	Status           models.ReservationStatus `json:"status"`
	VehicleID        int64                    `json:"vehicle_id"`
	TravelDate       models.Date              `json:"travel_date"`
	SeatNumbers      []int                    `json:"seat_numbers"`
	TotalAmount      decimal.Decimal          `json:"total_amount"`
	ContactEmail     string                   `json:"contact_email"`
	ContactPhone     string                   `json:"contact_phone"`
	Reason           string                   `json:"reason,omitempty"`
	OccurredAt       time.Time                `json:"occurred_at"`
}

// NewEvent builds the event for res having reached its current status
func NewEvent(eventType EventType, res *models.Reservation, at time.Time) Event {
	event := Event{
		Type:             eventType,
		BookingReference: res.BookingReference,
		Slug:             res.Slug,
		UserID:           res.UserID,
		Status:           res.Status,
		VehicleID:        res.VehicleID,
		TravelDate:       res.TravelDate,
		SeatNumbers:      append([]int(nil), res.SeatNumbers...),
		TotalAmount:      res.TotalAmount,
		ContactEmail:     res.ContactEmail,
		ContactPhone:     res.ContactPhone,
		OccurredAt:       at.UTC(),
	}
	if res.CancellationReason != nil {
		event.Reason = *res.CancellationReason
	}
	return event
}
