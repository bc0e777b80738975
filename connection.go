package amqptest

import (
	"io"
)

// Dialer represents a function which returns a connection and an error.
type Dialer func() (Connection, error)

// Connection represents a single connection to an AMQP compatible broker.
//
// A harness opens one connection for its whole lifetime and derives every
// channel from it.
type Connection interface {
	io.Closer

	// Channel opens a new channel to perform actions against.
	Channel() (Channel, error)
	// IsClosed determines if the connection is closed.
	IsClosed() bool
	// NotifyClose triggers the supplied function when the connection closes,
	// either gracefully or because the broker dropped it.
	NotifyClose(fn func())
}
