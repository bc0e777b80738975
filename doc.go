// Package amqptest defines the broker agnostic pieces of a test harness for AMQP brokers.
// The interfaces only describe what a test needs to drive and inspect broker state: declaring
// exchanges and queues, binding, publishing, fetching single messages and purging queues.
//
// Protocol concerns (handshakes, framing, channel allocation) stay with the client library
// behind an implementation. This package also owns the harness configuration and the error
// kinds shared by every implementation.
//
// The only one current implementation provided at the time of writing is:
// - rabbitmq (github.com/jacklaaa89/amqptest/rabbitmq)
//
// The harness built on top of these interfaces lives in github.com/jacklaaa89/amqptest/harness.
package amqptest
