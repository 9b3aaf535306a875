package sms

import "context"

// SMSGateway defines the interface for sending SMS messages
type SMSGateway interface {
	// Send delivers a text message to a single phone number
	Send(ctx context.Context, phone, message string) error

	// GetName returns the name of the SMS gateway implementation
	GetName() string
}
