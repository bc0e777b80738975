package harness

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jacklaaa89/amqptest"
)

// fakeError mirrors a broker reply error.
type fakeError struct {
	code   int
	reason string
}

func (e *fakeError) Error() string    { return fmt.Sprintf("Exception (%d) Reason: %q", e.code, e.reason) }
func (e *fakeError) Code() int        { return e.code }
func (e *fakeError) Reason() string   { return e.reason }
func (e *fakeError) Recover() bool    { return false }
func (e *fakeError) FromServer() bool { return true }

func notFound(kind, name string) error {
	return &fakeError{code: amqptest.NotFound, reason: fmt.Sprintf("NOT_FOUND - no %s '%s'", kind, name)}
}

type fakeDelivery struct {
	body        []byte
	exchange    string
	routingKey  string
	redelivered bool
}

type fakeQueue struct {
	durable  bool
	ready    []fakeDelivery
	unacked  int
	declares int
}

type fakeBinding struct {
	queue, key string
}

// fakeBroker is an in memory broker covering the primitives a harness uses.
type fakeBroker struct {
	mu        sync.Mutex
	queues    map[string]*fakeQueue
	exchanges map[string]amqptest.ExchangeType
	bindings  map[string][]fakeBinding
	purgeErr  map[string]error

	opened, closed int
	dials          int
	generated      int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		queues:    map[string]*fakeQueue{},
		exchanges: map[string]amqptest.ExchangeType{},
		bindings:  map[string][]fakeBinding{},
		purgeErr:  map[string]error{},
	}
}

func (b *fakeBroker) dial() (amqptest.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	return &fakeConnection{b: b}, nil
}

// openChannels returns the number of channels which are still open.
func (b *fakeBroker) openChannels() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened - b.closed
}

func (b *fakeBroker) queue(name string) (*fakeQueue, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	return q, ok
}

// ready returns the number of ready messages in name.
func (b *fakeBroker) ready(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		return len(q.ready)
	}
	return 0
}

func (b *fakeBroker) addQueue(name string, durable bool, bodies ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := &fakeQueue{durable: durable}
	for _, body := range bodies {
		q.ready = append(q.ready, fakeDelivery{body: []byte(body), routingKey: name})
	}
	b.queues[name] = q
}

type fakeConnection struct {
	b *fakeBroker

	mu     sync.Mutex
	closed bool
	closes []func()
}

func (c *fakeConnection) Channel() (amqptest.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, &fakeError{code: 504, reason: "channel/connection is not open"}
	}

	c.b.mu.Lock()
	c.b.opened++
	c.b.mu.Unlock()
	return &fakeChannel{b: c.b}, nil
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, fn := range c.closes {
		fn()
	}
	return nil
}

func (c *fakeConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConnection) NotifyClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes = append(c.closes, fn)
}

type fakeChannel struct {
	b      *fakeBroker
	closed bool
}

func (c *fakeChannel) DeclareExchange(_ context.Context, name string, typ amqptest.ExchangeType, opts amqptest.ExchangeOptions) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if _, ok := c.b.exchanges[name]; !ok && opts.Passive {
		return notFound("exchange", name)
	}
	c.b.exchanges[name] = typ
	return nil
}

func (c *fakeChannel) DeclareQueue(_ context.Context, name string, opts amqptest.QueueOptions) (amqptest.QueueState, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	q, ok := c.b.queues[name]
	switch {
	case !ok && opts.Passive:
		return amqptest.QueueState{}, notFound("queue", name)
	case ok && !opts.Passive && q.durable != opts.Durable:
		return amqptest.QueueState{}, &fakeError{code: 406, reason: "PRECONDITION_FAILED - inequivalent arg 'durable'"}
	case !ok:
		if name == "" {
			c.b.generated++
			name = fmt.Sprintf("amq.gen-%d", c.b.generated)
		}
		q = &fakeQueue{durable: opts.Durable}
		c.b.queues[name] = q
	}

	q.declares++
	return amqptest.QueueState{Name: name, Messages: len(q.ready)}, nil
}

func (c *fakeChannel) BindQueue(_ context.Context, queue, exchange, routingKey string, _ bool, _ amqptest.Table) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if _, ok := c.b.queues[queue]; !ok {
		return notFound("queue", queue)
	}
	if _, ok := c.b.exchanges[exchange]; !ok {
		return notFound("exchange", exchange)
	}
	c.b.bindings[exchange] = append(c.b.bindings[exchange], fakeBinding{queue: queue, key: routingKey})
	return nil
}

func (c *fakeChannel) Publish(_ context.Context, exchange, routingKey string, body []byte) error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	d := fakeDelivery{body: append([]byte(nil), body...), exchange: exchange, routingKey: routingKey}
	if exchange == amqptest.DefaultExchange {
		if q, ok := c.b.queues[routingKey]; ok {
			q.ready = append(q.ready, d)
		}
		return nil
	}

	typ, ok := c.b.exchanges[exchange]
	if !ok {
		return notFound("exchange", exchange)
	}
	for _, bnd := range c.b.bindings[exchange] {
		if typ == amqptest.ExchangeTypeFanout || bnd.key == routingKey || (typ == amqptest.ExchangeTypeTopic && bnd.key == "#") {
			q := c.b.queues[bnd.queue]
			q.ready = append(q.ready, d)
		}
	}
	return nil
}

func (c *fakeChannel) Get(_ context.Context, queue string, autoAck bool) (amqptest.Message, bool, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	q, ok := c.b.queues[queue]
	if !ok {
		return nil, false, notFound("queue", queue)
	}
	if len(q.ready) == 0 {
		return nil, false, nil
	}

	d := q.ready[0]
	q.ready = q.ready[1:]
	if !autoAck {
		q.unacked++
	}
	return &fakeMessage{b: c.b, queue: queue, d: d}, true, nil
}

func (c *fakeChannel) Purge(_ context.Context, queue string, _ bool) (int, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()

	if err := c.b.purgeErr[queue]; err != nil {
		return 0, err
	}
	q, ok := c.b.queues[queue]
	if !ok {
		return 0, notFound("queue", queue)
	}
	n := len(q.ready)
	q.ready = nil
	return n, nil
}

func (c *fakeChannel) IsClosed() bool {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return &fakeError{code: 504, reason: "channel/connection is not open"}
	}
	c.closed = true
	c.b.closed++
	return nil
}

type fakeMessage struct {
	b     *fakeBroker
	queue string
	d     fakeDelivery
}

func (m *fakeMessage) Body() []byte        { return m.d.body }
func (m *fakeMessage) RoutingKey() string  { return m.d.routingKey }
func (m *fakeMessage) Exchange() string    { return m.d.exchange }
func (m *fakeMessage) ContentType() string { return "application/octet-stream" }
func (m *fakeMessage) MessageID() string   { return "" }
func (m *fakeMessage) Redelivered() bool   { return m.d.redelivered }

func (m *fakeMessage) Ack() error {
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	m.b.queues[m.queue].unacked--
	return nil
}

func (m *fakeMessage) Nack(requeue bool) error {
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	q := m.b.queues[m.queue]
	q.unacked--
	if requeue {
		d := m.d
		d.redelivered = true
		q.ready = append([]fakeDelivery{d}, q.ready...)
	}
	return nil
}

// recordingT records assertion failures without stopping the test.
type recordingT struct {
	errors  []string
	stopped bool
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recordingT) FailNow() {
	r.stopped = true
}

func (r *recordingT) failed() bool {
	return len(r.errors) > 0
}

// newTestHarness connects a harness to a fresh fake broker.
func newTestHarness(t *testing.T, cfg amqptest.Config) (*Harness, *fakeBroker) {
	t.Helper()

	b := newFakeBroker()
	h, err := New(context.Background(), cfg, WithDialer(b.dial))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = h.Close()
	})
	return h, b
}
