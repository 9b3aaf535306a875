package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes events as persistent JSON messages to a durable queue.
// The connection is opened lazily and dropped after any failure, so the next
// event reconnects.
type AMQPSink struct {
	url    string
	queue  string
	logger *logrus.Logger

	mu   sync.Mutex
	ch   amqpChannel
	conn io.Closer

	open func(url string) (amqpChannel, io.Closer, error)
}

// NewAMQPSink creates an AMQPSink for queue on the broker at url
func NewAMQPSink(url, queue string, logger *logrus.Logger) *AMQPSink {
	return &AMQPSink{
		url:    url,
		queue:  queue,
		logger: logger,
		open:   dialAMQP,
	}
}

func dialAMQP(url string) (amqpChannel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel open failed: %w", err)
	}
	return ch, conn, nil
}

func (s *AMQPSink) Name() string { return "amqp" }

func (s *AMQPSink) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureChannel(); err != nil {
		return err
	}

	err = s.ch.PublishWithContext(ctx,
		"",      // default exchange
		s.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Type:         string(event.Type),
			MessageId:    event.BookingReference + ":" + string(event.Type),
			Body:         body,
		})
	if err != nil {
		s.reset()
		return fmt.Errorf("rabbitmq publish failed: %w", err)
	}
	return nil
}

func (s *AMQPSink) ensureChannel() error {
	if s.ch != nil {
		return nil
	}
	ch, conn, err := s.open(s.url)
	if err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
		ch.Close()
		if conn != nil {
			conn.Close()
		}
		return fmt.Errorf("rabbitmq queue declare failed: %w", err)
	}
	s.ch, s.conn = ch, conn
	s.logger.WithField("queue", s.queue).Info("Connected notification sink to RabbitMQ")
	return nil
}

func (s *AMQPSink) reset() {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.ch, s.conn = nil, nil
}

// Close releases the broker connection
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}
