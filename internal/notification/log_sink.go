package notification

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSink writes events to the structured log
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, event Event) error {
	s.logger.WithFields(logrus.Fields{
		"event":             event.Type,
		"booking_reference": event.BookingReference,
		"slug":              event.Slug,
		"status":            event.Status,
		"contact_email":     event.ContactEmail,
	}).Info("Booking lifecycle event")
	return nil
}
