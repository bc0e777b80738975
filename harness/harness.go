package harness

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jacklaaa89/amqptest"
	"github.com/jacklaaa89/amqptest/rabbitmq"
)

// Harness drives a broker on behalf of tests.
type Harness struct {
	cfg    amqptest.Config
	conn   amqptest.Connection
	logger zerolog.Logger

	chMu   sync.Mutex       // chMu serialises use of the shared channel.
	shared amqptest.Channel // shared the channel reused when cfg.SingleChannel is set.

	cleanupMu sync.Mutex
	cleanup   []string
}

// Option configures a Harness.
type Option func(*options)

type options struct {
	dialer amqptest.Dialer
	logger zerolog.Logger
}

// WithDialer replaces the rabbitmq dialer built from the config.
func WithDialer(d amqptest.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithLogger sets the logger, nothing is logged by default.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// New validates cfg and opens the harness connection. ctx bounds the lifetime of the connection.
//
// Any failure to connect is returned as an *amqptest.ConfigurationError, as it almost always
// means the harness points at the wrong broker or uses the wrong credentials.
func New(ctx context.Context, cfg amqptest.Config, opts ...Option) (*Harness, error) {
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx = o.logger.WithContext(ctx)
	dialer := o.dialer
	if dialer == nil {
		dialer = rabbitmq.DialConfig(ctx, cfg)
	}

	conn, err := dialer()
	if err != nil {
		if amqptest.IsConfigurationError(err) {
			return nil, err
		}
		return nil, &amqptest.ConfigurationError{Reason: "could not connect to " + cfg.Addr(), Err: err}
	}

	h := &Harness{
		cfg:    cfg,
		conn:   conn,
		logger: o.logger,
	}
	for _, q := range cfg.Queues {
		h.ScheduleCleanup(q)
	}

	conn.NotifyClose(func() {
		h.logger.Debug().Msg("harness connection closed")
	})
	h.logger.Debug().Str("addr", cfg.Addr()).Str("vhost", cfg.VHost).Bool("single_channel", cfg.SingleChannel).Msg("harness connected")
	return h, nil
}

// Config returns a copy of the configuration the harness was created with.
func (h *Harness) Config() amqptest.Config {
	return h.cfg.Clone()
}

// Setup prepares the broker for a test, purging every registered queue when
// CleanupOnSetup is configured.
func (h *Harness) Setup(ctx context.Context) error {
	if !h.cfg.CleanupOnSetup {
		return nil
	}
	return h.PurgeAllQueues(ctx)
}

// Close closes the shared channel, if any, and the connection.
func (h *Harness) Close() error {
	h.chMu.Lock()
	var chErr error
	if h.shared != nil && !h.shared.IsClosed() {
		chErr = h.shared.Close()
	}
	h.shared = nil
	h.chMu.Unlock()

	return errors.Join(chErr, h.conn.Close())
}

// withChannel runs fn on the shared channel, or on a channel opened for this call only.
func (h *Harness) withChannel(fn func(ch amqptest.Channel) error) error {
	ch, release, err := h.acquire()
	if err != nil {
		return err
	}
	defer release()
	return fn(ch)
}

// acquire returns the channel to use for one operation and the function which hands it back.
func (h *Harness) acquire() (amqptest.Channel, func(), error) {
	if !h.cfg.SingleChannel {
		ch, err := h.conn.Channel()
		if err != nil {
			return nil, nil, err
		}
		return ch, func() { h.closeChannel(ch) }, nil
	}

	h.chMu.Lock()
	if h.shared == nil {
		ch, err := h.conn.Channel()
		if err != nil {
			h.chMu.Unlock()
			return nil, nil, err
		}
		h.shared = ch
	}
	return h.shared, h.chMu.Unlock, nil
}

// closeChannel closes a per call channel, a channel the broker already closed is skipped.
func (h *Harness) closeChannel(ch amqptest.Channel) {
	if ch.IsClosed() {
		return
	}
	if err := ch.Close(); err != nil {
		h.logger.Warn().Err(err).Msg("could not close channel")
	}
}

// context attaches the harness logger so the broker binding logs through it.
func (h *Harness) context(ctx context.Context) context.Context {
	return h.logger.WithContext(ctx)
}
