package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smarttransit/seat-reservation-engine/pkg/metrics"
)

// Sink delivers events to one external channel
type Sink interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// Dispatcher fans events out to its sinks on a background goroutine
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  *logrus.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher; each delivery gets its own timeout
func NewDispatcher(logger *logrus.Logger, m *metrics.Metrics, timeout time.Duration, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// Notify hands event to every sink without blocking the caller
func (d *Dispatcher) Notify(event Event) {
	if len(d.sinks) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(event)
	}()
}

// Wait blocks until in-flight deliveries finish
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	for _, sink := range d.sinks {
		if err := d.send(ctx, sink, event); err != nil {
			d.metrics.NotificationFailures.WithLabelValues(sink.Name()).Inc()
			d.logger.WithFields(logrus.Fields{
				"sink":              sink.Name(),
				"event":             event.Type,
				"booking_reference": event.BookingReference,
				"error":             err.Error(),
			}).Warn("Failed to deliver booking notification")
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, sink Sink, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return sink.Send(ctx, event)
}
