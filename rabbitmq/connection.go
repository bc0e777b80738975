package rabbitmq

import (
	"context"
	"errors"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/jacklaaa89/amqptest"
)

// helper types exposed from the underlined SDK package.

type (
	Config         = amqp091.Config
	Authentication = amqp091.Authentication
	PlainAuth      = amqp091.PlainAuth
)

// connectionName the client provided name shown in the management UI.
const connectionName = "amqptest"

// amqp091ConnectionDialer a function which takes no arguments and returns a new amqp091 connection.
type amqp091ConnectionDialer = func() (amqp091Connection, error)

// connection represents an amqp091.Connection which implements our generic implementation.
type connection struct {
	mu     sync.RWMutex // variable guard.
	omitMu sync.Mutex   // mutex for events.

	ctx    context.Context // a harness bound context, also carries the logger.
	closed bool            // whether the connection is closed.

	// containers for assigned event handlers.
	closeOnce sync.Once
	closes    []func()

	Connection amqp091Connection // the connection.
}

// NewConfig converts the harness configuration into the amqp091 dial configuration.
func NewConfig(cfg amqptest.Config) (Config, error) {
	tc, err := NewTLSConfig(cfg.Host, cfg.TLS)
	if err != nil {
		return Config{}, err
	}

	vhost := cfg.VHost
	if vhost == "" {
		vhost = "/"
	}

	return Config{
		SASL: []Authentication{&PlainAuth{
			Username: cfg.Username,
			Password: cfg.Password,
		}},
		Vhost:           vhost,
		Heartbeat:       cfg.Heartbeat,
		TLSClientConfig: tc,
		Locale:          "en_US",
		Properties:      amqp091.Table{"connection_name": connectionName},
	}, nil
}

// DialConfig attempts to connect to the broker described by cfg, retrying failed
// attempts cfg.ConnectRetries times.
func DialConfig(ctx context.Context, cfg amqptest.Config) amqptest.Dialer {
	return func() (amqptest.Connection, error) {
		c, err := NewConfig(cfg)
		if err != nil {
			return nil, err
		}

		addr := cfg.Addr()
		zerolog.Ctx(ctx).Debug().Str("addr", addr).Str("vhost", c.Vhost).Msg("dialing broker")
		return wrapDial(ctx, cfg.ConnectRetries, func() (amqp091Connection, error) {
			return dialConfig(addr, c)
		})
	}
}

// Dial attempts to connect to a rabbitmq broker using an amqp:// url, without retries.
func Dial(ctx context.Context, addr string) amqptest.Dialer {
	return func() (amqptest.Connection, error) {
		return wrapDial(ctx, 0, func() (amqp091Connection, error) {
			return dial(addr)
		})
	}
}

// wrapDial helper function to wrap an amqp091.Connection as our generic interface implementation.
// authentication failures are never retried.
func wrapDial(ctx context.Context, retries uint64, dial amqp091ConnectionDialer) (amqptest.Connection, error) {
	var conn amqp091Connection
	err := backoff.Retry(func() error {
		var dErr error
		conn, dErr = dial()
		if dErr == nil {
			return nil
		}

		zerolog.Ctx(ctx).Warn().Err(dErr).Msg("dial failed")
		if errors.Is(dErr, amqp091.ErrSASL) || errors.Is(dErr, amqp091.ErrCredentials) {
			return backoff.Permanent(dErr)
		}
		return dErr
	}, newBackoff(ctx, retries))

	if err != nil {
		return nil, wrapError(err)
	}

	c := &connection{
		Connection: conn,
		ctx:        ctx,
	}
	go c.background()
	return c, nil
}

// Channel initialises a new AMQP channel from a connection.
func (c *connection) Channel() (amqptest.Channel, error) {
	ch, err := c.rawChannel()
	if err != nil {
		return nil, err
	}

	wc := &channel{Channel: ch, conn: c, ctx: c.ctx}
	wc.init()
	return wc, nil
}

// rawChannel returns a lower level channel
func (c *connection) rawChannel() (amqp091Channel, error) {
	if c.IsClosed() {
		return nil, wrapError(amqp091.ErrClosed)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, wrapError(err)
	}
	return ch, nil
}

// NotifyClose registers a handler to be triggered on a close.
func (c *connection) NotifyClose(fn func()) {
	c.omitMu.Lock()
	defer c.omitMu.Unlock()
	if fn == nil {
		return
	}

	c.closes = append(c.closes, fn)
}

// omitClose omits a close event to all handlers.
func (c *connection) omitClose() {
	c.omitMu.Lock()
	defer c.omitMu.Unlock()
	for _, fn := range c.closes {
		fn()
	}
}

// Close wraps the original close function.
func (c *connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil // already closed.
	}
	c.closed = true
	conn := c.Connection
	c.mu.Unlock()

	defer c.closeOnce.Do(c.omitClose)
	if isClosed(conn) {
		return nil
	}
	return wrapError(conn.Close())
}

// IsClosed wraps the original IsClosed function.
func (c *connection) IsClosed() bool {
	if c == nil {
		return true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return true
	}

	return isClosed(c.Connection)
}

// background waits for the connection to go away, either because the harness context
// finished or the broker closed it, and notifies the registered handlers.
// the connection is never re-established, a harness lives on a single connection.
func (c *connection) background() {
	c.mu.RLock()
	rcv := c.Connection.NotifyClose(make(chan *amqp091.Error, 1))
	c.mu.RUnlock()

	select {
	case <-c.ctx.Done():
		logError(c.ctx, c.Close())
	case e, ok := <-rcv:
		if ok && e != nil {
			zerolog.Ctx(c.ctx).Warn().Int("code", e.Code).Str("reason", e.Reason).Msg("connection closed by broker")
		}

		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.closeOnce.Do(c.omitClose)
	}
}
