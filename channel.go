package amqptest

import (
	"context"
	"io"
)

// ExchangeType represents a type of exchange.
type ExchangeType string

const (
	// ExchangeTypeDirect represents a direct exchange
	// this is where a message is posted to bound queues where the routing key matches exactly.
	ExchangeTypeDirect ExchangeType = "direct"
	// ExchangeTypeFanout represents a fanout exchange
	// this is where the routing key is ignored and all bound queues receive a copy of the message.
	ExchangeTypeFanout ExchangeType = "fanout"
	// ExchangeTypeTopic represents a topic exchange
	// this extends on top of a direct exchange by allowing the routing key to be pattern based rather
	// than having to match exactly.
	ExchangeTypeTopic ExchangeType = "topic"
	// ExchangeTypeHeaders represents a headers exchange
	// this is where one or more headers are used to route the message
	ExchangeTypeHeaders ExchangeType = "headers"
)

// DefaultExchange is the nameless exchange every queue is bound to using its own name as routing key.
const DefaultExchange = ""

// Table holds optional arguments for declares and binds (x-message-ttl, x-max-length ...).
type Table = map[string]interface{}

// ExchangeOptions holds the flags of an exchange declare.
type ExchangeOptions struct {
	// Passive only checks that the exchange exists, nothing is created.
	Passive    bool
	Durable    bool
	AutoDelete bool
	Internal   bool
	NoWait     bool
	Args       Table
}

// QueueOptions holds the flags of a queue declare.
type QueueOptions struct {
	// Passive only reads the queue metadata, nothing is created.
	Passive    bool
	Durable    bool
	Exclusive  bool
	AutoDelete bool
	NoWait     bool
	Args       Table
}

// Channel represents a single AMQP channel.
//
// Every operation maps onto exactly one broker method, no behaviour is added on top
// apart from what an implementation needs to keep the channel usable.
type Channel interface {
	io.Closer

	// DeclareExchange declares (or with Passive, checks) an exchange.
	DeclareExchange(ctx context.Context, name string, typ ExchangeType, opts ExchangeOptions) error
	// DeclareQueue declares (or with Passive, inspects) a queue, returning its current state.
	DeclareQueue(ctx context.Context, name string, opts QueueOptions) (QueueState, error)
	// BindQueue binds a queue to an exchange using the routing key.
	BindQueue(ctx context.Context, queue, exchange, routingKey string, noWait bool, args Table) error
	// Publish publishes a message to an exchange using the supplied routing key
	// if the exchange is empty, the default exchange defined by the broker will be used
	// which affectively routes the message a queue with exactly the same name as the routing key.
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
	// Get fetches a single message without waiting. ok is false when the queue is empty.
	Get(ctx context.Context, queue string, autoAck bool) (msg Message, ok bool, err error)
	// Purge removes every ready message from the queue, returning how many were removed.
	Purge(ctx context.Context, queue string, noWait bool) (int, error)
	// IsClosed determines if the channel is closed.
	IsClosed() bool
}
