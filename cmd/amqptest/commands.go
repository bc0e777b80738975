package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jacklaaa89/amqptest/harness"
)

func newPublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish QUEUE BODY",
		Short: "Publish a message to a queue, declaring the queue when missing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHarness(cmd.Context(), func(h *harness.Harness) error {
				if err := h.PublishToQueue(cmd.Context(), args[0], []byte(args[1])); err != nil {
					return fmt.Errorf("publish to %s: %w", args[0], err)
				}
				a.logger.Info().Str("queue", args[0]).Msg("published")
				return nil
			})
		},
	}
}

func newPublishExchangeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish-exchange EXCHANGE BODY [ROUTING_KEY]",
		Short: "Publish a message to an exchange",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 3 {
				key = args[2]
			}

			return a.withHarness(cmd.Context(), func(h *harness.Harness) error {
				if err := h.PublishToExchange(cmd.Context(), args[0], []byte(args[1]), key); err != nil {
					return fmt.Errorf("publish to exchange %s: %w", args[0], err)
				}
				a.logger.Info().Str("exchange", args[0]).Str("routing_key", key).Msg("published")
				return nil
			})
		},
	}
}

func newCountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count QUEUE",
		Short: "Print the number of ready messages in a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHarness(cmd.Context(), func(h *harness.Harness) error {
				n, err := h.CountMessages(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("count %s: %w", args[0], err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	var requeue bool
	cmd := &cobra.Command{
		Use:   "get QUEUE",
		Short: "Fetch one message from a queue and print its body",
		Long:  "Fetch one message from a queue and print its body. The message is acked unless --requeue is set.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHarness(cmd.Context(), func(h *harness.Harness) error {
				msg, ok, err := h.FetchMessage(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("get from %s: %w", args[0], err)
				}
				if !ok {
					a.logger.Info().Str("queue", args[0]).Msg("queue is empty")
					return nil
				}

				a.logger.Debug().
					Str("content_type", msg.ContentType()).
					Str("message_id", msg.MessageID()).
					Bool("redelivered", msg.Redelivered()).
					Msg("fetched message")
				fmt.Fprintln(cmd.OutOrStdout(), string(msg.Body()))

				if requeue {
					return msg.Nack(true)
				}
				return msg.Ack()
			})
		},
	}
	cmd.Flags().BoolVar(&requeue, "requeue", false, "return the message to the queue instead of acking it")
	return cmd
}

func newPurgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge [QUEUE...]",
		Short: "Purge the named queues and every queue in AMQP_QUEUES",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withHarness(cmd.Context(), func(h *harness.Harness) error {
				for _, q := range args {
					h.ScheduleCleanup(q)
				}
				if err := h.PurgeAllQueues(cmd.Context()); err != nil {
					return err
				}
				a.logger.Info().Strs("queues", h.CleanupQueues()).Msg("purged")
				return nil
			})
		},
	}
}

func newQueuesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "queues",
		Short: "List the queues of the virtual host through the management API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.managementClient()
			if err != nil {
				return err
			}

			names, err := c.QueueNames(a.cfg.VHost)
			if err != nil {
				return fmt.Errorf("list queues: %w", err)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "VHOST\tQUEUE\n")
			for _, n := range names {
				fmt.Fprintf(w, "%s\t%s\n", a.cfg.VHost, n)
			}
			return w.Flush()
		},
	}
}
