package services

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

const (
	// DefaultCancellationNotice is the minimum time between cancellation and departure
	DefaultCancellationNotice = 2 * time.Hour

	// DefaultCancellationReason is recorded when a traveler gives none
	DefaultCancellationReason = "User cancellation"

	// StatusUpdateCancellationReason is recorded when a status update cancels without a reason
	StatusUpdateCancellationReason = "Status update"
)

// CancellationPolicy decides whether a traveler may cancel a reservation
type CancellationPolicy struct {
	MinNotice time.Duration
	Now       func() time.Time
}

// NewCancellationPolicy creates a CancellationPolicy using the wall clock
func NewCancellationPolicy(minNotice time.Duration) CancellationPolicy {
	return CancellationPolicy{MinNotice: minNotice, Now: time.Now}
}

// Check applies the cancellation rules in order: existence, ownership,
// current status, then the notice window. res may be nil.
func (p CancellationPolicy) Check(res *models.Reservation, requester models.Requester) error {
	if res == nil {
		return ErrReservationNotFound
	}
	if !res.IsOwnedBy(requester.UserID) {
		return ErrUnauthorized
	}
	switch res.Status {
	case models.ReservationCancelled:
		return ErrAlreadyCancelled
	case models.ReservationCompleted:
		return ErrCannotCancelCompleted
	}
	return p.CheckWindow(res)
}

// CheckWindow rejects cancellations closer to departure than MinNotice
func (p CancellationPolicy) CheckWindow(res *models.Reservation) error {
	if res.DepartureAt.Sub(p.Now()) < p.MinNotice {
		return ErrTooLateToCancel.withMessage("Cannot cancel booking less than %s before departure", formatNotice(p.MinNotice))
	}
	return nil
}

// NormalizeCancellationReason trims reason, substitutes fallback when blank,
// and enforces 5-500 characters.
func NormalizeCancellationReason(reason, fallback string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fallback, nil
	}
	if n := utf8.RuneCountInString(reason); n < 5 || n > 500 {
		return "", invalidField("reason", "Cancellation reason must be 5-500 characters")
	}
	return reason, nil
}

func formatNotice(d time.Duration) string {
	if d%time.Hour == 0 {
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return strconv.Itoa(hours) + " hours"
	}
	return d.String()
}
