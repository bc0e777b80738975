package amqptest

// QueueState is the broker's answer to a queue declare.
type QueueState struct {
	Name      string // Name the server assigned name, equal to the requested one unless it was empty.
	Messages  int    // Messages count of ready messages.
	Consumers int    // Consumers count of active consumers.
}

// Message represents a message fetched from a queue.
type Message interface {
	// Body returns the raw payload, it is never interpreted.
	Body() []byte
	// RoutingKey returns the routing key the message was published with.
	RoutingKey() string
	// Exchange returns the exchange the message was published to.
	Exchange() string
	// ContentType returns the MIME type set by the publisher.
	ContentType() string
	// MessageID returns the application message id, if any.
	MessageID() string
	// Redelivered whether the message has been redelivered previously.
	Redelivered() bool
	// Ack attempts to acknowledge that we have processed the message
	Ack() error
	// Nack attempts to acknowledge that we failed processing the message
	Nack(requeue bool) error
}
