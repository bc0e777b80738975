package management

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	rh "github.com/michaelklishin/rabbit-hole/v2"

	"github.com/jacklaaa89/amqptest"
)

// DefaultEndpoint the management API of a stock local installation.
const DefaultEndpoint = "http://localhost:15672"

// EndpointFromEnv returns AMQP_MANAGEMENT_URL, falling back to DefaultEndpoint.
func EndpointFromEnv() string {
	if v := os.Getenv(amqptest.EnvPrefix + "MANAGEMENT_URL"); v != "" {
		return v
	}
	return DefaultEndpoint
}

// api the subset of the rabbit-hole client we use.
type api interface {
	PutVhost(name string, settings rh.VhostSettings) (*http.Response, error)
	DeleteVhost(name string) (*http.Response, error)
	ListQueuesIn(vhost string) ([]rh.QueueInfo, error)
	ListConnections() ([]rh.ConnectionInfo, error)
	CloseConnection(name string) (*http.Response, error)
}

// Client talks to the management API with the credentials of the harness config.
type Client struct {
	api api
}

// Option configures a Client.
type Option func(*options)

type options struct {
	transport http.RoundTripper
}

// WithTransport sets the HTTP transport, required for HTTPS endpoints with a private CA.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// New creates a client for the management API at endpoint.
func New(endpoint string, cfg amqptest.Config, opts ...Option) (*Client, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		c   *rh.Client
		err error
	)
	if o.transport != nil {
		c, err = rh.NewTLSClient(endpoint, cfg.Username, cfg.Password, o.transport)
	} else {
		c, err = rh.NewClient(endpoint, cfg.Username, cfg.Password)
	}
	if err != nil {
		return nil, &amqptest.ConfigurationError{Field: "management_url", Reason: "invalid endpoint", Err: err}
	}
	return &Client{api: c}, nil
}

// EnsureVhost creates the virtual host if it does not exist yet.
func (c *Client) EnsureVhost(vhost string) error {
	res, err := c.api.PutVhost(vhost, rh.VhostSettings{
		Description: "virtual host used for integration testing",
	})
	return checkResponse(res, err, "put vhost "+vhost)
}

// DeleteVhost deletes the virtual host and everything in it, a missing vhost is not an error.
func (c *Client) DeleteVhost(vhost string) error {
	res, err := c.api.DeleteVhost(vhost)
	var e rh.ErrorResponse
	if (res != nil && res.StatusCode == http.StatusNotFound) || (errors.As(err, &e) && e.StatusCode == http.StatusNotFound) {
		return nil
	}
	return checkResponse(res, err, "delete vhost "+vhost)
}

// QueueNames lists the name of every queue in the virtual host.
func (c *Client) QueueNames(vhost string) ([]string, error) {
	qs, err := c.api.ListQueuesIn(vhost)
	if err != nil {
		return nil, fmt.Errorf("list queues in %s: %w", vhost, err)
	}

	names := make([]string, 0, len(qs))
	for _, q := range qs {
		names = append(names, q.Name)
	}
	return names, nil
}

// CloseConnections force closes every client connection to the virtual host,
// returning how many were closed.
//
// not intended for use on production instances.
func (c *Client) CloseConnections(vhost string) (int, error) {
	conns, err := c.api.ListConnections()
	if err != nil {
		return 0, fmt.Errorf("list connections: %w", err)
	}

	var closed int
	for _, conn := range conns {
		if conn.Vhost != vhost {
			continue
		}
		res, cErr := c.api.CloseConnection(conn.Name)
		if cErr = checkResponse(res, cErr, "close connection "+conn.Name); cErr != nil {
			return closed, cErr
		}
		closed++
	}
	return closed, nil
}

// checkResponse turns transport errors and non 2xx replies into errors.
func checkResponse(res *http.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}
	if res != nil && (res.StatusCode < 200 || res.StatusCode > 299) {
		return fmt.Errorf("%s: unexpected status %s", op, res.Status)
	}
	return nil
}
