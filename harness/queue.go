package harness

import (
	"context"
	"fmt"
	"sync"

	"github.com/jacklaaa89/amqptest"
)

// QueueLister lists the queues which exist in a virtual host.
// *management.Client satisfies it.
type QueueLister interface {
	QueueNames(vhost string) ([]string, error)
}

// CountMessages returns the number of ready messages in queue. The queue is declared passively,
// so a missing queue is reported as a not found error rather than created.
func (h *Harness) CountMessages(ctx context.Context, queue string) (int, error) {
	ctx = h.context(ctx)

	var n int
	err := h.withChannel(func(ch amqptest.Channel) error {
		q, err := ch.DeclareQueue(ctx, queue, amqptest.QueueOptions{Passive: true})
		n = q.Messages
		return err
	})
	return n, err
}

// FetchMessage gets a single message from queue without acknowledging it. ok is false when the
// queue is empty.
//
// The caller settles the message with Ack or Nack. With one channel per call, the channel the
// message was delivered on stays open until the message is settled.
func (h *Harness) FetchMessage(ctx context.Context, queue string) (msg amqptest.Message, ok bool, err error) {
	ctx = h.context(ctx)

	ch, release, err := h.acquire()
	if err != nil {
		return nil, false, err
	}

	msg, ok, err = ch.Get(ctx, queue, false)
	if err != nil || !ok || h.cfg.SingleChannel {
		release()
		return msg, ok, err
	}

	return &fetchedMessage{Message: msg, release: release}, true, nil
}

// fetchedMessage hands the channel it was delivered on back once settled.
type fetchedMessage struct {
	amqptest.Message

	once    sync.Once
	release func()
}

func (m *fetchedMessage) Ack() error {
	defer m.once.Do(m.release)
	return m.Message.Ack()
}

func (m *fetchedMessage) Nack(requeue bool) error {
	defer m.once.Do(m.release)
	return m.Message.Nack(requeue)
}

// PurgeQueue removes every ready message from a registered queue and returns how many were
// removed. Purging a queue which is not registered for cleanup is a configuration error.
func (h *Harness) PurgeQueue(ctx context.Context, queue string) (int, error) {
	if !h.registered(queue) {
		return 0, &amqptest.ConfigurationError{
			Field:  "queues",
			Reason: fmt.Sprintf("queue %q is not registered for cleanup", queue),
		}
	}

	ctx = h.context(ctx)

	var n int
	err := h.withChannel(func(ch amqptest.Channel) (err error) {
		n, err = ch.Purge(ctx, queue, false)
		return err
	})
	return n, err
}

// PurgeAllQueues purges every registered queue. Queues which no longer exist are skipped, the
// first other error stops the purge and is returned as is.
func (h *Harness) PurgeAllQueues(ctx context.Context) error {
	queues := h.CleanupQueues()
	if len(queues) == 0 {
		return nil
	}

	ctx = h.context(ctx)
	return h.withChannel(func(ch amqptest.Channel) error {
		for _, q := range queues {
			n, err := ch.Purge(ctx, q, false)
			if amqptest.IsNotFound(err) {
				h.logger.Debug().Str("queue", q).Msg("skipped purge of missing queue")
				continue
			}
			if err != nil {
				return err
			}
			h.logger.Debug().Str("queue", q).Int("messages", n).Msg("purged queue")
		}
		return nil
	})
}

// ScheduleCleanup registers queue for purging. Registering a queue twice has no effect.
func (h *Harness) ScheduleCleanup(queue string) {
	if queue == "" {
		return
	}

	h.cleanupMu.Lock()
	defer h.cleanupMu.Unlock()

	for _, q := range h.cleanup {
		if q == queue {
			return
		}
	}
	h.cleanup = append(h.cleanup, queue)
}

// ScheduleVhostCleanup registers every queue lister reports for the configured virtual host.
func (h *Harness) ScheduleVhostCleanup(lister QueueLister) error {
	names, err := lister.QueueNames(h.cfg.VHost)
	if err != nil {
		return fmt.Errorf("list queues in %s: %w", h.cfg.VHost, err)
	}

	for _, q := range names {
		h.ScheduleCleanup(q)
	}
	return nil
}

// CleanupQueues returns the registered queues in registration order.
func (h *Harness) CleanupQueues() []string {
	h.cleanupMu.Lock()
	defer h.cleanupMu.Unlock()

	out := make([]string, len(h.cleanup))
	copy(out, h.cleanup)
	return out
}

func (h *Harness) registered(queue string) bool {
	h.cleanupMu.Lock()
	defer h.cleanupMu.Unlock()

	for _, q := range h.cleanup {
		if q == queue {
			return true
		}
	}
	return false
}
