package rabbitmq

import (
	"errors"

	"github.com/rabbitmq/amqp091-go"
)

// notifier helper interface which wraps notification methods
// which are usually shared by different types.
type notifier interface {
	// NotifyClose the internal amqp091 function defined on both
	// channels and connections which set up notifications for errors.
	NotifyClose(rcv chan *amqp091.Error) chan *amqp091.Error
}

// amqpError represents a wrapped amqp091.Error, it satisfies amqptest.Error.
type amqpError struct {
	err *amqp091.Error
}

// Error returns the formatted AMQP exception.
func (a *amqpError) Error() string {
	return a.err.Error()
}

// Code returns the AMQP error code.
func (a *amqpError) Code() int {
	return a.err.Code
}

// Reason returns the error description
func (a *amqpError) Reason() string {
	return a.err.Reason
}

// Recover whether the error is recoverable.
func (a *amqpError) Recover() bool {
	return a.err.Recover
}

// FromServer whether the close originated from the client or server.
func (a *amqpError) FromServer() bool {
	return a.err.Server
}

// Unwrap exposes the original amqp091 error to errors.As.
func (a *amqpError) Unwrap() error {
	return a.err
}

// wrapError converts amqp091 protocol errors so callers can inspect them through amqptest.Error,
// any other error is returned untouched.
func wrapError(err error) error {
	var e *amqp091.Error
	if errors.As(err, &e) {
		return &amqpError{err: e}
	}
	return err
}
