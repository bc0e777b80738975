package amqptest

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// default ports as registered with IANA.
const (
	DefaultPort    = 5672
	DefaultTLSPort = 5671
)

// TLSConfig holds the TLS settings of the broker connection.
type TLSConfig struct {
	Enabled bool
	// CAPath a directory of PEM encoded certificate authorities.
	CAPath string
	// CAFile a single PEM file of certificate authorities.
	CAFile string
	// CertFile and KeyFile a client key pair, for brokers requiring peer verification.
	CertFile string
	KeyFile  string
	// VerifyPeer validates the broker certificate chain.
	VerifyPeer bool
	// VerifyPeerName validates the broker certificate against the host name,
	// only applies when VerifyPeer is set.
	VerifyPeerName bool
	// ServerName overrides the name used for SNI and peer name verification, defaults to Host.
	ServerName string
}

// Config represents the harness configuration.
// A harness copies its config on creation, so changes made afterwards have no effect.
type Config struct {
	Host     string
	Port     int // Port zero resolves to DefaultPort, or DefaultTLSPort with TLS.
	Username string
	Password string
	VHost    string

	// CleanupOnSetup purges every registered queue when a test is set up.
	CleanupOnSetup bool
	// Queues the queues registered for cleanup from the start.
	Queues []string
	// SingleChannel shares one channel between every operation, otherwise a channel is opened per call.
	SingleChannel bool

	TLS TLSConfig

	// Heartbeat the connection heartbeat interval, zero accepts the interval the broker proposes.
	Heartbeat time.Duration
	// ConnectRetries how many times a failed dial is retried before giving up.
	ConnectRetries uint64
}

// DefaultConfig returns the configuration of a stock local RabbitMQ installation.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Username:       "guest",
		Password:       "guest",
		VHost:          "/",
		SingleChannel:  true,
		ConnectRetries: 3,
		TLS: TLSConfig{
			VerifyPeer:     true,
			VerifyPeerName: true,
		},
	}
}

// Clone returns a deep copy of the config.
func (c Config) Clone() Config {
	if c.Queues != nil {
		c.Queues = append([]string(nil), c.Queues...)
	}
	return c
}

// Validate checks that every field required to dial is present.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return &ConfigurationError{Field: "host", Reason: "is required"}
	case c.Username == "":
		return &ConfigurationError{Field: "username", Reason: "is required"}
	case c.Port < 0 || c.Port > 65535:
		return &ConfigurationError{Field: "port", Reason: "must be between 0 and 65535"}
	case c.TLS.Enabled && (c.TLS.CertFile == "") != (c.TLS.KeyFile == ""):
		return &ConfigurationError{Field: "tls", Reason: "cert file and key file must be set together"}
	}

	for _, q := range c.Queues {
		if q == "" {
			return &ConfigurationError{Field: "queues", Reason: "queue names cannot be empty"}
		}
	}
	return nil
}

// Addr returns the broker URL without credentials or virtual host, which are
// supplied separately when dialing, so the address is safe to log.
func (c Config) Addr() string {
	scheme := "amqp"
	if c.TLS.Enabled {
		scheme = "amqps"
	}

	u := url.URL{Scheme: scheme, Host: net.JoinHostPort(c.Host, strconv.Itoa(c.port())), Path: "/"}
	return u.String()
}

// port resolves the port to dial, falling back to the IANA default for the scheme.
func (c Config) port() int {
	if c.Port != 0 {
		return c.Port
	}
	if c.TLS.Enabled {
		return DefaultTLSPort
	}
	return DefaultPort
}

// EnvPrefix the prefix of every environment variable read by ConfigFromEnv.
const EnvPrefix = "AMQP_"

// ConfigFromEnv starts from DefaultConfig and overrides each value set in the environment
// (AMQP_HOST, AMQP_PORT, AMQP_QUEUES ...).
func ConfigFromEnv() (Config, error) {
	c := DefaultConfig()
	e := envReader{}

	e.setString("HOST", &c.Host)
	e.setInt("PORT", &c.Port)
	e.setString("USERNAME", &c.Username)
	e.setString("PASSWORD", &c.Password)
	e.setString("VHOST", &c.VHost)
	e.setBool("CLEANUP_ON_SETUP", &c.CleanupOnSetup)
	e.setList("QUEUES", &c.Queues)
	e.setBool("SINGLE_CHANNEL", &c.SingleChannel)
	e.setBool("TLS", &c.TLS.Enabled)
	e.setString("TLS_CA_PATH", &c.TLS.CAPath)
	e.setString("TLS_CA_FILE", &c.TLS.CAFile)
	e.setString("TLS_CERT_FILE", &c.TLS.CertFile)
	e.setString("TLS_KEY_FILE", &c.TLS.KeyFile)
	e.setBool("TLS_VERIFY_PEER", &c.TLS.VerifyPeer)
	e.setBool("TLS_VERIFY_PEER_NAME", &c.TLS.VerifyPeerName)
	e.setString("TLS_SERVER_NAME", &c.TLS.ServerName)
	e.setDuration("HEARTBEAT", &c.Heartbeat)
	e.setUint("CONNECT_RETRIES", &c.ConnectRetries)

	if e.err != nil {
		return Config{}, e.err
	}
	return c, nil
}

// envReader reads prefixed environment variables, keeping the first parse error.
type envReader struct {
	err error
}

func (e *envReader) lookup(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	return os.LookupEnv(EnvPrefix + key)
}

func (e *envReader) fail(key string, err error) {
	e.err = &ConfigurationError{Field: EnvPrefix + key, Reason: "invalid value", Err: err}
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) setInt(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = i
}

func (e *envReader) setUint(key string, dst *uint64) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	i, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = i
}

func (e *envReader) setBool(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = b
}

func (e *envReader) setDuration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = d
}

func (e *envReader) setList(key string, dst *[]string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}
