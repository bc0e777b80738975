package rabbitmq

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/jacklaaa89/amqptest"
)

// reopenRetries how many times opening a replacement channel is retried.
const reopenRetries = 3

// channel represents a wrapped amqp091.Channel
//
// the broker closes a channel on any channel level exception, a passive declare of a
// missing queue being the common one in tests, so the wrapper opens a replacement
// before the next operation.
type channel struct {
	mu       sync.RWMutex    // mu a guarding mutex for the internal channel.
	reopenMu sync.Mutex      // reopenMu mutex specifically for reopen attempts.
	ctx      context.Context // the harness bound context.
	conn     *connection     // the connection which is managing this channel.

	// closed represents whether we have called closed specifically on our channel
	// rather than the broker closing it.
	closed bool

	Channel amqp091Channel // the currently active channel.
}

// DeclareExchange attempts to declare an exchange, or only check it exists when passive.
func (c *channel) DeclareExchange(
	ctx context.Context,
	name string,
	typ amqptest.ExchangeType,
	opts amqptest.ExchangeOptions,
) error {
	return c.onChannel(ctx, func(ch amqp091Channel) error {
		if opts.Passive {
			return ch.ExchangeDeclarePassive(name, string(typ), opts.Durable, opts.AutoDelete, opts.Internal, opts.NoWait, opts.Args)
		}
		return ch.ExchangeDeclare(name, string(typ), opts.Durable, opts.AutoDelete, opts.Internal, opts.NoWait, opts.Args)
	})
}

// DeclareQueue attempts to declare a queue, or only inspect it when passive.
func (c *channel) DeclareQueue(ctx context.Context, name string, opts amqptest.QueueOptions) (amqptest.QueueState, error) {
	var q amqp091.Queue
	err := c.onChannel(ctx, func(ch amqp091Channel) error {
		var qErr error
		if opts.Passive {
			q, qErr = ch.QueueDeclarePassive(name, opts.Durable, opts.AutoDelete, opts.Exclusive, opts.NoWait, opts.Args)
		} else {
			q, qErr = ch.QueueDeclare(name, opts.Durable, opts.AutoDelete, opts.Exclusive, opts.NoWait, opts.Args)
		}
		return qErr
	})
	return newQueueState(q), err
}

// BindQueue attempts to bind a queue to an exchange.
func (c *channel) BindQueue(
	ctx context.Context,
	queue, exchange, routingKey string,
	noWait bool,
	args amqptest.Table,
) error {
	return c.onChannel(ctx, func(ch amqp091Channel) error {
		return ch.QueueBind(queue, routingKey, exchange, noWait, args)
	})
}

// Publish attempts to publish a message onto an exchange with the supplied routing key.
// the content type is sniffed from the body.
func (c *channel) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	msg := amqp091.Publishing{
		ContentType: mimetype.Detect(body).String(),
		MessageId:   uuid.NewString(),
		Timestamp:   time.Now(),
		Body:        body,
	}

	mandatory := false
	immediate := false
	return c.onChannel(ctx, func(ch amqp091Channel) error {
		return ch.PublishWithContext(ctx, exchange, routingKey, mandatory, immediate, msg)
	})
}

// Get attempts to fetch a single message from the queue without waiting.
func (c *channel) Get(ctx context.Context, queue string, autoAck bool) (amqptest.Message, bool, error) {
	var (
		d  amqp091.Delivery
		ok bool
	)
	err := c.onChannel(ctx, func(ch amqp091Channel) error {
		var gErr error
		d, ok, gErr = ch.Get(queue, autoAck)
		return gErr
	})

	if err != nil || !ok {
		return nil, false, err
	}
	return &message{Delivery: d}, true, nil
}

// Purge attempts to remove every ready message from a queue.
func (c *channel) Purge(ctx context.Context, queue string, noWait bool) (int, error) {
	var n int
	err := c.onChannel(ctx, func(ch amqp091Channel) error {
		var pErr error
		n, pErr = ch.QueuePurge(queue, noWait)
		return pErr
	})
	return n, err
}

// Close wraps the original close function.
func (c *channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return wrapError(amqp091.ErrClosed)
	}

	c.closed = true
	ch := c.Channel
	c.mu.Unlock()

	if isClosed(ch) {
		return nil // already closed by the broker.
	}
	return wrapError(ch.Close())
}

// IsClosed wraps the original IsClosed function.
func (c *channel) IsClosed() bool {
	if c == nil {
		return true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return true
	}

	return isClosed(c.Channel)
}

// onChannel helper function to perform an action on the raw amqp091.Channel
func (c *channel) onChannel(ctx context.Context, fn func(ch amqp091Channel) error) error {
	if c.IsClosed() {
		if err := c.reopen(); err != nil {
			return wrapError(err)
		}
	}

	c.mu.RLock()
	err := fn(c.Channel)
	c.mu.RUnlock()

	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("channel operation failed")
	}
	return wrapError(err)
}

// reopen replaces a channel the broker closed with a fresh one from the same connection.
// a channel we closed ourselves is never reopened.
func (c *channel) reopen() error {
	// only allow a single thread to perform reopen at once.
	c.reopenMu.Lock()
	defer c.reopenMu.Unlock()

	if !c.IsClosed() {
		return nil
	}

	var closed bool
	c.mu.RLock()
	closed = c.closed
	c.mu.RUnlock()

	if closed || c.conn == nil {
		return amqp091.ErrClosed
	}

	err := backoff.Retry(func() error {
		ch, err := c.conn.rawChannel()
		if err != nil {
			if c.conn.IsClosed() {
				return backoff.Permanent(err)
			}
			return err
		}

		c.mu.Lock()
		c.Channel = ch
		c.mu.Unlock()
		return nil
	}, newBackoff(c.ctx, reopenRetries))

	if err != nil {
		return err
	}

	c.init()
	zerolog.Ctx(c.ctx).Debug().Msg("channel reopened")
	return nil
}

// init listens for broker initiated closes so the reason is logged when it happens
// rather than on the next operation.
func (c *channel) init() {
	c.mu.RLock()
	ch := c.Channel
	c.mu.RUnlock()

	watchClose(ch, func(e *amqp091.Error) {
		if e == nil {
			return // graceful close.
		}
		zerolog.Ctx(c.ctx).Debug().Int("code", e.Code).Str("reason", e.Reason).Msg("channel closed by broker")
	})
}
