package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/smarttransit/seat-reservation-engine/pkg/sms"
)

// SMSSink texts the reservation's contact phone
type SMSSink struct {
	gateway sms.SMSGateway
}

// NewSMSSink creates an SMSSink
func NewSMSSink(gateway sms.SMSGateway) *SMSSink {
	return &SMSSink{gateway: gateway}
}

func (s *SMSSink) Name() string { return "sms" }

func (s *SMSSink) Send(ctx context.Context, event Event) error {
	if event.ContactPhone == "" {
		return nil
	}
	return s.gateway.Send(ctx, event.ContactPhone, FormatSMS(event))
}

// FormatSMS renders the text message for event
func FormatSMS(event Event) string {
	seats := make([]string, len(event.SeatNumbers))
	for i, s := range event.SeatNumbers {
		seats[i] = fmt.Sprint(s)
	}
	seatList := strings.Join(seats, ",")

	switch event.Type {
	case EventBookingCreated:
		return fmt.Sprintf("SmartTransit booking %s received: seats %s on %s. Total %s. Pay to confirm.",
			event.BookingReference, seatList, event.TravelDate, event.TotalAmount.StringFixed(2))
	case EventBookingConfirmed:
		return fmt.Sprintf("SmartTransit booking %s confirmed: seats %s on %s.",
			event.BookingReference, seatList, event.TravelDate)
	case EventBookingCancelled:
		return fmt.Sprintf("SmartTransit booking %s for %s was cancelled.",
			event.BookingReference, event.TravelDate)
	default:
		return fmt.Sprintf("SmartTransit booking %s is now %s.", event.BookingReference, event.Status)
	}
}
