package rabbitmq

import (
	"github.com/rabbitmq/amqp091-go"
)

// message implements a fetched AMQP message
type message struct {
	amqp091.Delivery
}

// Body returns the raw message body.
func (m *message) Body() []byte {
	return m.Delivery.Body
}

// RoutingKey returns the routing key used when publishing.
func (m *message) RoutingKey() string {
	return m.Delivery.RoutingKey
}

// Exchange returns the exchange the message was published to.
func (m *message) Exchange() string {
	return m.Delivery.Exchange
}

// ContentType returns the MIME type of the body.
func (m *message) ContentType() string {
	return m.Delivery.ContentType
}

// MessageID returns the application message id.
func (m *message) MessageID() string {
	return m.Delivery.MessageId
}

// Redelivered whether the message has been redelivered previously.
func (m *message) Redelivered() bool {
	return m.Delivery.Redelivered
}

// Ack attempts to acknowledge a message.
func (m *message) Ack() error {
	return wrapError(m.Delivery.Ack(false))
}

// Nack attempts to negatively acknowledge a message.
func (m *message) Nack(requeue bool) error {
	return wrapError(m.Delivery.Nack(false, requeue))
}
