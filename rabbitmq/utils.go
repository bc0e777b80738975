package rabbitmq

import (
	"context"
	"io"

	"github.com/cenkalti/backoff/v4"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// closer represents any stream which can be closed
// this is either a channel or the overall connection.
type closer interface {
	io.Closer
	notifier

	IsClosed() bool // IsClosed determines if a channel or connection is closed.
}

// isClosed helper function to check whether a connection or channel is closed.
func isClosed(ch closer) bool {
	return ch == nil || ch.IsClosed()
}

// logError helper function to log an error with the logger attached to ctx.
func logError(ctx context.Context, err error) {
	if err == nil {
		return
	}

	zerolog.Ctx(ctx).Error().Err(err).Send()
}

// watchClose registers for close notifications on n and calls fn once with the
// closing error, which is nil on a graceful close.
func watchClose(n notifier, fn func(e *amqp091.Error)) {
	rcv := n.NotifyClose(make(chan *amqp091.Error, 1))

	go func() {
		e, ok := <-rcv
		if !ok {
			e = nil
		}
		fn(e)
	}()
}

// newBackoff the function to generate the backoff policy
// a variable in order to reduce the backoff in tests.
var newBackoff = defaultBackoff

// defaultBackoff generates a new backoff to use when dialing or reopening a channel.
func defaultBackoff(ctx context.Context, retries uint64) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries), ctx)
}
