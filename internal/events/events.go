// Package events publishes order lifecycle events for downstream consumers
// (fulfillment, analytics). Publishing is strictly fire-and-forget: a broker
// outage must never fail the request that produced the event.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Subjects for order lifecycle events.
const (
	SubjectOrderCreated       = "orders.created"
	SubjectOrderPaid          = "orders.paid"
	SubjectOrderPaymentFailed = "orders.payment_failed"
	SubjectOrderCancelled     = "orders.cancelled"
)

// OrderEvent is the envelope published on every order subject.
type OrderEvent struct {
	EventID       string    `json:"eventId"`
	OrderID       string    `json:"orderId"`
	OrderNumber   string    `json:"orderNumber"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
	TotalCents    int64     `json:"totalCents"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Publisher emits order events.
type Publisher interface {
	PublishOrderEvent(subject string, event OrderEvent)
}

// NATSPublisher publishes events to a NATS server.
type NATSPublisher struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

var _ Publisher = (*NATSPublisher)(nil)

// Connect dials the NATS server and returns a publisher over it.
func Connect(url string, logger zerolog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("essence"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &NATSPublisher{
		conn:   conn,
		logger: logger.With().Str("component", "events").Logger(),
	}, nil
}

// PublishOrderEvent publishes the event, filling in id and timestamp.
// Failures are logged and swallowed.
func (p *NATSPublisher) PublishOrderEvent(subject string, event OrderEvent) {
	event.EventID = uuid.New().String()
	event.OccurredAt = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("subject", subject).Msg("failed to encode order event")
		return
	}

	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn().Err(err).
			Str("subject", subject).
			Str("order_number", event.OrderNumber).
			Msg("failed to publish order event")
		return
	}

	p.logger.Debug().Str("subject", subject).Str("order_number", event.OrderNumber).Msg("order event published")
}

// Close drains the underlying connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn().Err(err).Msg("failed to drain nats connection")
	}
}

// NoopPublisher drops all events. Used when no broker is configured and in
// tests that do not assert on events.
type NoopPublisher struct{}

var _ Publisher = NoopPublisher{}

// PublishOrderEvent does nothing.
func (NoopPublisher) PublishOrderEvent(string, OrderEvent) {}
