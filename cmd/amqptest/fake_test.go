package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/jacklaaa89/amqptest"
)

type fakeError struct {
	code   int
	reason string
}

func (e *fakeError) Error() string    { return fmt.Sprintf("Exception (%d) Reason: %q", e.code, e.reason) }
func (e *fakeError) Code() int        { return e.code }
func (e *fakeError) Reason() string   { return e.reason }
func (e *fakeError) Recover() bool    { return false }
func (e *fakeError) FromServer() bool { return true }

type fakeDelivery struct {
	body        string
	redelivered bool
}

type fakeRoute struct {
	key, queue string
}

// fakeBroker keeps queues and direct exchange routes in memory.
type fakeBroker struct {
	mu        sync.Mutex
	queues    map[string][]fakeDelivery
	exchanges map[string][]fakeRoute
	unacked   int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		queues:    map[string][]fakeDelivery{},
		exchanges: map[string][]fakeRoute{},
	}
}

func (b *fakeBroker) addQueue(name string, bodies ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := []fakeDelivery{}
	for _, body := range bodies {
		q = append(q, fakeDelivery{body: body})
	}
	b.queues[name] = q
}

func (b *fakeBroker) bodies(name string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []string{}
	for _, d := range b.queues[name] {
		out = append(out, d.body)
	}
	return out
}

func (b *fakeBroker) dial() (amqptest.Connection, error) {
	return &fakeConnection{b: b}, nil
}

type fakeConnection struct {
	b      *fakeBroker
	closed bool
}

func (c *fakeConnection) Channel() (amqptest.Channel, error) { return &fakeChannel{b: c.b}, nil }
func (c *fakeConnection) Close() error                       { c.closed = true; return nil }
func (c *fakeConnection) IsClosed() bool                     { return c.closed }
func (c *fakeConnection) NotifyClose(func())                 {}

type fakeChannel struct {
	b      *fakeBroker
	closed bool
}

func notFound(kind, name string) error {
	return &fakeError{code: amqptest.NotFound, reason: fmt.Sprintf("NOT_FOUND - no %s '%s'", kind, name)}
}

func (c *fakeChannel) DeclareExchange(_ context.Context, name string, _ amqptest.ExchangeType, opts amqptest.ExchangeOptions) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if _, ok := c.b.exchanges[name]; !ok {
		if opts.Passive {
			return notFound("exchange", name)
		}
		c.b.exchanges[name] = nil
	}
	return nil
}

func (c *fakeChannel) DeclareQueue(_ context.Context, name string, opts amqptest.QueueOptions) (amqptest.QueueState, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	q, ok := c.b.queues[name]
	if !ok {
		if opts.Passive {
			return amqptest.QueueState{}, notFound("queue", name)
		}
		c.b.queues[name] = []fakeDelivery{}
	}
	return amqptest.QueueState{Name: name, Messages: len(q)}, nil
}

func (c *fakeChannel) BindQueue(_ context.Context, queue, exchange, routingKey string, _ bool, _ amqptest.Table) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.exchanges[exchange] = append(c.b.exchanges[exchange], fakeRoute{key: routingKey, queue: queue})
	return nil
}

func (c *fakeChannel) Publish(_ context.Context, exchange, routingKey string, body []byte) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if exchange == amqptest.DefaultExchange {
		if q, ok := c.b.queues[routingKey]; ok {
			c.b.queues[routingKey] = append(q, fakeDelivery{body: string(body)})
		}
		return nil
	}

	routes, ok := c.b.exchanges[exchange]
	if !ok {
		return notFound("exchange", exchange)
	}
	for _, r := range routes {
		if r.key == routingKey {
			c.b.queues[r.queue] = append(c.b.queues[r.queue], fakeDelivery{body: string(body)})
		}
	}
	return nil
}

func (c *fakeChannel) Get(_ context.Context, queue string, _ bool) (amqptest.Message, bool, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	q, ok := c.b.queues[queue]
	if !ok {
		return nil, false, notFound("queue", queue)
	}
	if len(q) == 0 {
		return nil, false, nil
	}
	c.b.queues[queue] = q[1:]
	c.b.unacked++
	return &fakeMessage{b: c.b, queue: queue, d: q[0]}, true, nil
}

func (c *fakeChannel) Purge(_ context.Context, queue string, _ bool) (int, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	q, ok := c.b.queues[queue]
	if !ok {
		return 0, notFound("queue", queue)
	}
	c.b.queues[queue] = []fakeDelivery{}
	return len(q), nil
}

func (c *fakeChannel) IsClosed() bool { return c.closed }
func (c *fakeChannel) Close() error   { c.closed = true; return nil }

type fakeMessage struct {
	b     *fakeBroker
	queue string
	d     fakeDelivery
}

func (m *fakeMessage) Body() []byte        { return []byte(m.d.body) }
func (m *fakeMessage) RoutingKey() string  { return m.queue }
func (m *fakeMessage) Exchange() string    { return "" }
func (m *fakeMessage) ContentType() string { return "text/plain; charset=utf-8" }
func (m *fakeMessage) MessageID() string   { return "" }
func (m *fakeMessage) Redelivered() bool   { return m.d.redelivered }

func (m *fakeMessage) Ack() error {
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	m.b.unacked--
	return nil
}

func (m *fakeMessage) Nack(requeue bool) error {
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	m.b.unacked--
	if requeue {
		d := m.d
		d.redelivered = true
		m.b.queues[m.queue] = append([]fakeDelivery{d}, m.b.queues[m.queue]...)
	}
	return nil
}
