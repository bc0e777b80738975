package rabbitmq

import (
	"github.com/rabbitmq/amqp091-go"

	"github.com/jacklaaa89/amqptest"
)

// newQueueState converts the declare-ok reply into the broker agnostic state.
func newQueueState(q amqp091.Queue) amqptest.QueueState {
	return amqptest.QueueState{
		Name:      q.Name,
		Messages:  q.Messages,
		Consumers: q.Consumers,
	}
}
