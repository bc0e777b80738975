package amqptest

import (
	"errors"
	"fmt"
)

// NotFound is the AMQP reply code for a missing exchange or queue.
const NotFound = 404

// Error represents an error from AMQP.
type Error interface {
	error

	// Code returns the constant code from the specification
	Code() int
	// Reason returns the description of the error
	Reason() string
	// Recover returns true when this error can be recovered by retrying later or with different parameters
	Recover() bool
	// FromServer returns true when initiated from the server, false when from this library
	FromServer() bool
}

// IsNotFound reports whether err carries the AMQP 404 reply code.
func IsNotFound(err error) bool {
	var e Error
	return errors.As(err, &e) && e.Code() == NotFound
}

// ConfigurationError is returned when the harness is used with missing or invalid configuration,
// including a connection which could not be established with the supplied settings.
type ConfigurationError struct {
	Field  string // Field the configuration key at fault, empty when not tied to a single key.
	Reason string
	Err    error // Err the underlying cause, if any.
}

func (e *ConfigurationError) Error() string {
	msg := "amqptest: configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s)", e.Field)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is, or wraps, a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}
