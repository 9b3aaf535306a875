package services

import (
	"fmt"
	"sort"
	"strings"
)

// ErrorKind tells callers how to react to a BookingError
type ErrorKind string

const (
	// KindValidation is malformed or out-of-range input; never retried
	KindValidation ErrorKind = "validation"
	// KindNotFound is a missing vehicle or reservation
	KindNotFound ErrorKind = "not_found"
	// KindConflict requires re-reading state before retrying
	KindConflict ErrorKind = "conflict"
	// KindAuthorization is a wrong owner or role; never retried
	KindAuthorization ErrorKind = "authorization"
	// KindTransient is a store timeout or connection loss; safe to retry with backoff
	KindTransient ErrorKind = "transient"
)

// BookingError is the error type returned by the booking operations
type BookingError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Field   string
	Seats   []int
	Err     error
}

func (e *BookingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BookingError) Unwrap() error {
	return e.Err
}

// Is matches BookingErrors by code so detailed copies still match their sentinel
func (e *BookingError) Is(target error) bool {
	t, ok := target.(*BookingError)
	return ok && t.Code == e.Code
}

// Retryable reports whether the operation may be retried unchanged
func (e *BookingError) Retryable() bool {
	return e.Kind == KindTransient
}

func (e *BookingError) withMessage(format string, args ...interface{}) *BookingError {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

var (
	ErrVehicleNotFound = &BookingError{Kind: KindNotFound, Code: "VEHICLE_NOT_FOUND",
		Message: "Vehicle not found", Field: "vehicle_id"}
	ErrVehicleNotSellable = &BookingError{Kind: KindValidation, Code: "VEHICLE_NOT_SELLABLE",
		Message: "Vehicle is not available for booking", Field: "vehicle_id"}
	ErrSeatOutOfRange = &BookingError{Kind: KindValidation, Code: "SEAT_OUT_OF_RANGE",
		Message: "Seat number is outside the vehicle capacity", Field: "seat_numbers"}
	ErrInvalidSeatCount = &BookingError{Kind: KindValidation, Code: "INVALID_SEAT_COUNT",
		Message: "Between 1 and 6 seats must be selected", Field: "seat_numbers"}
	ErrDuplicateSeat = &BookingError{Kind: KindValidation, Code: "DUPLICATE_SEAT",
		Message: "Seat numbers must be unique", Field: "seat_numbers"}
	ErrPassengerCountMismatch = &BookingError{Kind: KindValidation, Code: "PASSENGER_COUNT_MISMATCH",
		Message: "Number of passenger names must match number of seats", Field: "passenger_names"}
	ErrPastTravelDate = &BookingError{Kind: KindValidation, Code: "PAST_TRAVEL_DATE",
		Message: "Travel date cannot be in the past", Field: "travel_date"}
	ErrInvalidField = &BookingError{Kind: KindValidation, Code: "INVALID_FIELD",
		Message: "Invalid field"}

	ErrSeatsUnavailable = &BookingError{Kind: KindConflict, Code: "SEATS_UNAVAILABLE",
		Message: "Seats are no longer available", Field: "seat_numbers"}
	ErrInvalidTransition = &BookingError{Kind: KindConflict, Code: "INVALID_TRANSITION",
		Message: "Status transition is not allowed", Field: "status"}
	ErrAlreadyCancelled = &BookingError{Kind: KindConflict, Code: "ALREADY_CANCELLED",
		Message: "Booking is already cancelled"}
	ErrCannotCancelCompleted = &BookingError{Kind: KindConflict, Code: "CANNOT_CANCEL_COMPLETED",
		Message: "Cannot cancel a completed booking"}
	ErrTooLateToCancel = &BookingError{Kind: KindConflict, Code: "TOO_LATE_TO_CANCEL",
		Message: "Cannot cancel booking less than 2 hours before departure"}

	ErrReservationNotFound = &BookingError{Kind: KindNotFound, Code: "BOOKING_NOT_FOUND",
		Message: "Booking not found", Field: "slug"}
	ErrUnauthorized = &BookingError{Kind: KindAuthorization, Code: "UNAUTHORIZED",
		Message: "You are not allowed to access this booking"}

	ErrStoreUnavailable = &BookingError{Kind: KindTransient, Code: "STORE_UNAVAILABLE",
		Message: "Booking store is temporarily unavailable, please retry"}
)

func invalidField(field, message string) error {
	return &BookingError{Kind: KindValidation, Code: ErrInvalidField.Code, Field: field, Message: message}
}

func seatsUnavailable(seats []int) error {
	sorted := append([]int(nil), seats...)
	sort.Ints(sorted)
	e := ErrSeatsUnavailable.withMessage("Seats %s are no longer available", joinSeats(sorted))
	e.Seats = sorted
	return e
}

func joinSeats(seats []int) string {
	parts := make([]string, len(seats))
	for i, s := range seats {
		parts[i] = fmt.Sprint(s)
	}
	return strings.Join(parts, ", ")
}
