package harness

import (
	"context"

	"github.com/jacklaaa89/amqptest"
)

// PublishToQueue publishes body to the named queue through the default exchange, declaring the
// queue as a non durable queue first when it does not exist yet.
func (h *Harness) PublishToQueue(ctx context.Context, queue string, body []byte) error {
	ctx = h.context(ctx)
	return h.withChannel(func(ch amqptest.Channel) error {
		if err := ensureQueue(ctx, ch, queue); err != nil {
			return err
		}
		return ch.Publish(ctx, amqptest.DefaultExchange, queue, body)
	})
}

// PublishToExchange publishes body to exchange with routingKey. Nothing is declared, publishing
// to a missing exchange fails with a not found error.
func (h *Harness) PublishToExchange(ctx context.Context, exchange string, body []byte, routingKey string) error {
	ctx = h.context(ctx)
	return h.withChannel(func(ch amqptest.Channel) error {
		return ch.Publish(ctx, exchange, routingKey, body)
	})
}

// ensureQueue passively declares queue, falling back to a normal declare when it is missing.
func ensureQueue(ctx context.Context, ch amqptest.Channel, queue string) error {
	_, err := ch.DeclareQueue(ctx, queue, amqptest.QueueOptions{Passive: true})
	if !amqptest.IsNotFound(err) {
		return err
	}

	_, err = ch.DeclareQueue(ctx, queue, amqptest.QueueOptions{})
	return err
}
