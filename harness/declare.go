package harness

import (
	"context"

	"github.com/jacklaaa89/amqptest"
)

// DeclareExchange declares an exchange of the given type.
func (h *Harness) DeclareExchange(ctx context.Context, name string, typ amqptest.ExchangeType, opts amqptest.ExchangeOptions) error {
	ctx = h.context(ctx)
	return h.withChannel(func(ch amqptest.Channel) error {
		return ch.DeclareExchange(ctx, name, typ, opts)
	})
}

// DeclareQueue declares a queue and returns the state the broker reported for it.
func (h *Harness) DeclareQueue(ctx context.Context, name string, opts amqptest.QueueOptions) (amqptest.QueueState, error) {
	ctx = h.context(ctx)

	var q amqptest.QueueState
	err := h.withChannel(func(ch amqptest.Channel) (err error) {
		q, err = ch.DeclareQueue(ctx, name, opts)
		return err
	})
	return q, err
}

// BindQueue binds queue to exchange using routingKey.
func (h *Harness) BindQueue(ctx context.Context, queue, exchange, routingKey string, noWait bool, args amqptest.Table) error {
	ctx = h.context(ctx)
	return h.withChannel(func(ch amqptest.Channel) error {
		return ch.BindQueue(ctx, queue, exchange, routingKey, noWait, args)
	})
}
