package harness

import (
	"context"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacklaaa89/amqptest"
)

type tHelper interface {
	Helper()
}

// Assertions checks broker state on behalf of a test.
//
// A broker error while checking fails the test immediately, a state which does not match
// records a failure and the assertion returns false.
type Assertions struct {
	h      *Harness
	t      require.TestingT
	ctx    context.Context
	assert *assert.Assertions
}

// Assert returns assertions reporting to t.
func (h *Harness) Assert(t require.TestingT) *Assertions {
	return &Assertions{
		h:      h,
		t:      t,
		ctx:    context.Background(),
		assert: assert.New(t),
	}
}

// WithContext returns a copy of the assertions whose broker calls use ctx.
func (a *Assertions) WithContext(ctx context.Context) *Assertions {
	c := *a
	c.ctx = ctx
	return &c
}

// QueueEmpty asserts queue has no ready messages.
func (a *Assertions) QueueEmpty(queue string) bool {
	if h, ok := a.t.(tHelper); ok {
		h.Helper()
	}

	n, ok := a.count(queue)
	if !ok {
		return false
	}
	return a.assert.Equalf(0, n, "queue %q holds %d messages", queue, n)
}

// QueueNotEmpty asserts queue has at least one ready message.
func (a *Assertions) QueueNotEmpty(queue string) bool {
	if h, ok := a.t.(tHelper); ok {
		h.Helper()
	}

	n, ok := a.count(queue)
	if !ok {
		return false
	}
	return a.assert.Greaterf(n, 0, "queue %q is empty", queue)
}

// QueueLength asserts queue has exactly expected ready messages.
func (a *Assertions) QueueLength(queue string, expected int) bool {
	if h, ok := a.t.(tHelper); ok {
		h.Helper()
	}

	n, ok := a.count(queue)
	if !ok {
		return false
	}
	return a.assert.Equalf(expected, n, "queue %q length", queue)
}

// MessageContains fetches the next message from queue and asserts its body contains substring.
// A matching message is acked, any other message is requeued.
func (a *Assertions) MessageContains(queue, substring string) bool {
	if h, ok := a.t.(tHelper); ok {
		h.Helper()
	}

	msg, ok := a.fetch(queue)
	if !ok {
		return false
	}
	return a.settle(msg, a.assert.Containsf(string(msg.Body()), substring, "message from queue %q", queue))
}

// MessageEquals fetches the next message from queue and asserts its body equals expected.
// A matching message is acked, any other message is requeued.
func (a *Assertions) MessageEquals(queue string, expected []byte) bool {
	if h, ok := a.t.(tHelper); ok {
		h.Helper()
	}

	msg, ok := a.fetch(queue)
	if !ok {
		return false
	}
	return a.settle(msg, a.assert.Equalf(string(expected), string(msg.Body()), "message from queue %q", queue))
}

func (a *Assertions) count(queue string) (int, bool) {
	n, err := a.h.CountMessages(a.ctx, queue)
	if !a.assert.NoErrorf(err, "count messages in queue %q", queue) {
		a.t.FailNow()
		return 0, false
	}
	return n, true
}

func (a *Assertions) fetch(queue string) (amqptest.Message, bool) {
	msg, ok, err := a.h.FetchMessage(a.ctx, queue)
	if !a.assert.NoErrorf(err, "fetch message from queue %q", queue) {
		a.t.FailNow()
		return nil, false
	}
	if !a.assert.Truef(ok, "queue %q has no message", queue) {
		return nil, false
	}
	return msg, true
}

// settle acks msg when matched and requeues it otherwise.
func (a *Assertions) settle(msg amqptest.Message, matched bool) bool {
	var err error
	if matched {
		err = msg.Ack()
	} else {
		err = msg.Nack(true)
	}

	if !a.assert.NoError(err, "settle message") {
		a.t.FailNow()
		return false
	}
	return matched
}
