package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jacklaaa89/amqptest"
	"github.com/jacklaaa89/amqptest/harness"
	"github.com/jacklaaa89/amqptest/management"
	"github.com/jacklaaa89/amqptest/rabbitmq"
)

var (
	// Version information
	version   = "dev"
	gitCommit = "unknown"
)

// app holds the state shared by every sub command.
type app struct {
	cfg           amqptest.Config
	managementURL string
	verbose       bool

	// dialer overrides the rabbitmq dialer, used in tests.
	dialer amqptest.Dialer
	logger zerolog.Logger
}

func main() {
	cfg, err := amqptest.ConfigFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := &app{cfg: cfg, managementURL: management.EndpointFromEnv()}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "amqptest",
		Short: "Prepare and inspect broker state for tests",
		Long: `amqptest publishes, counts, fetches and purges messages on an AMQP broker so test
fixtures can be prepared from scripts. Flags default to the AMQP_* environment variables.`,
		Version:      fmt.Sprintf("%s (commit: %s)", version, gitCommit),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := zerolog.InfoLevel
			if a.verbose {
				level = zerolog.DebugLevel
			}
			a.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
				Level(level).With().Timestamp().Logger()
		},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfg.Host, "host", a.cfg.Host, "broker host")
	flags.IntVar(&a.cfg.Port, "port", a.cfg.Port, "broker port, 0 uses the scheme default")
	flags.StringVarP(&a.cfg.Username, "username", "u", a.cfg.Username, "broker username")
	flags.StringVarP(&a.cfg.Password, "password", "p", a.cfg.Password, "broker password")
	flags.StringVar(&a.cfg.VHost, "vhost", a.cfg.VHost, "virtual host")
	flags.BoolVar(&a.cfg.SingleChannel, "single-channel", a.cfg.SingleChannel, "reuse one channel for every operation")
	flags.BoolVar(&a.cfg.TLS.Enabled, "tls", a.cfg.TLS.Enabled, "connect with TLS")
	flags.StringVar(&a.cfg.TLS.CAFile, "tls-ca-file", a.cfg.TLS.CAFile, "certificate authority bundle")
	flags.StringVar(&a.cfg.TLS.CAPath, "tls-ca-path", a.cfg.TLS.CAPath, "directory of certificate authorities")
	flags.StringVar(&a.cfg.TLS.CertFile, "tls-cert-file", a.cfg.TLS.CertFile, "client certificate")
	flags.StringVar(&a.cfg.TLS.KeyFile, "tls-key-file", a.cfg.TLS.KeyFile, "client key")
	flags.BoolVar(&a.cfg.TLS.VerifyPeer, "tls-verify-peer", a.cfg.TLS.VerifyPeer, "verify the broker certificate")
	flags.BoolVar(&a.cfg.TLS.VerifyPeerName, "tls-verify-peer-name", a.cfg.TLS.VerifyPeerName, "verify the broker certificate matches the host")
	flags.StringVar(&a.cfg.TLS.ServerName, "tls-server-name", a.cfg.TLS.ServerName, "server name sent with SNI, defaults to the host")
	flags.DurationVar(&a.cfg.Heartbeat, "heartbeat", a.cfg.Heartbeat, "heartbeat interval, 0 accepts the broker's")
	flags.Uint64Var(&a.cfg.ConnectRetries, "connect-retries", a.cfg.ConnectRetries, "retries of a failed dial")
	flags.StringSliceVar(&a.cfg.Queues, "queues", a.cfg.Queues, "queues registered for cleanup, comma separated")
	flags.StringVar(&a.managementURL, "management-url", a.managementURL, "management API endpoint")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newPublishCmd(a),
		newPublishExchangeCmd(a),
		newCountCmd(a),
		newGetCmd(a),
		newPurgeCmd(a),
		newQueuesCmd(a),
	)
	return rootCmd
}

// withHarness connects a harness for the duration of fn.
func (a *app) withHarness(ctx context.Context, fn func(h *harness.Harness) error) error {
	opts := []harness.Option{harness.WithLogger(a.logger)}
	if a.dialer != nil {
		opts = append(opts, harness.WithDialer(a.dialer))
	}

	h, err := harness.New(ctx, a.cfg, opts...)
	if err != nil {
		a.logger.Error().Err(err).Msg("could not connect")
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("could not close harness")
		}
	}()

	if err := fn(h); err != nil {
		a.logger.Error().Err(err).Msg("command failed")
		return err
	}
	return nil
}

// managementClient builds a management client, trusting the broker CA for HTTPS endpoints.
func (a *app) managementClient() (*management.Client, error) {
	u, err := url.Parse(a.managementURL)
	if err != nil {
		return nil, &amqptest.ConfigurationError{Field: "management-url", Reason: "invalid endpoint", Err: err}
	}
	if u.Scheme != "https" {
		return management.New(a.managementURL, a.cfg)
	}

	tlsCfg := a.cfg.TLS
	tlsCfg.Enabled = true
	c, err := rabbitmq.NewTLSConfig(u.Hostname(), tlsCfg)
	if err != nil {
		return nil, err
	}
	return management.New(a.managementURL, a.cfg, management.WithTransport(&http.Transport{TLSClientConfig: c}))
}
