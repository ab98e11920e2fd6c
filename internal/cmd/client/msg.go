package client

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	apiv1 "github.com/rzbill/shardq/api/v1"
)

// NewMessageCommand constructs the `msg` command group.
func NewMessageCommand(baseURL BaseURLFunc) *cobra.Command {
	msgCmd := &cobra.Command{
		Use:     "msg",
		Aliases: []string{"message"},
		Short:   "Produce, claim and settle messages",
		Long: `Message operations.

Lifecycle:
  send → (due) → read [claimed under a lease] → ack | poison
  Recurring messages are re-enqueued on ack. Poisoned messages are
  moved to the queue's poison row and never rescheduled.`,
	}
	msgCmd.AddCommand(
		newMsgSendCommand(baseURL),
		newMsgReadCommand(baseURL),
		newMsgPeekCommand(baseURL),
		newMsgSettleCommand(baseURL, "ack", "Acknowledge a claimed message"),
		newMsgSettleCommand(baseURL, "poison", "Move a claimed message to the poison row"),
		newMsgDeleteCommand(baseURL),
		newMsgPoisonedCommand(baseURL),
	)
	return msgCmd
}

func newMsgSendCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Enqueue a message",
		Example: `  shardq msg send --data hello
  shardq msg send --data '{"job":1}' --delay 30s --priority 1
  shardq msg send --data tick --every 1m --repeat 10
  shardq msg send --data report --cron "0 9 * * 1-5"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			data, _ := cmd.Flags().GetString("data")
			priority, _ := cmd.Flags().GetUint8("priority")
			key, _ := cmd.Flags().GetString("key")
			headerKVs, _ := cmd.Flags().GetStringArray("header")
			delay, _ := cmd.Flags().GetDuration("delay")
			every, _ := cmd.Flags().GetDuration("every")
			cron, _ := cmd.Flags().GetString("cron")
			repeat, _ := cmd.Flags().GetInt64("repeat")
			until, _ := cmd.Flags().GetString("until")

			if data == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				data = string(b)
			}
			headers, err := parseHeaders(headerKVs)
			if err != nil {
				return err
			}
			endMs, err := parseTime(until)
			if err != nil {
				return err
			}
			if every > 0 && cron != "" {
				return errors.New("--every and --cron are mutually exclusive")
			}
			req := apiv1.EnqueueRequest{
				Queue:    queue,
				Body:     []byte(data),
				Priority: priority,
				Key:      key,
				Headers:  headers,
			}
			switch {
			case every > 0:
				req.Trigger = &apiv1.Trigger{Kind: "repeating", DelayMs: delay.Milliseconds(), IntervalMs: every.Milliseconds(), RepeatCount: repeat, EndTimeMs: endMs}
			case cron != "":
				req.Trigger = &apiv1.Trigger{Kind: "cron", Expr: cron, RepeatCount: repeat, EndTimeMs: endMs}
			case delay > 0:
				req.Trigger = &apiv1.Trigger{Kind: "oneshot", DelayMs: delay.Milliseconds()}
			}
			res, err := transportFor(cmd, baseURL).Enqueue(cmd.Context(), req)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "id: %s\nshard: %d\ndue: %s\n", res.ID, res.Shard, time.UnixMilli(res.DueAtMs).UTC().Format(time.RFC3339Nano))
			return nil
		},
	}
	addCommonFlags(cmd)
	cmd.Flags().StringP("data", "d", "", "Message body, or - to read stdin")
	cmd.Flags().Uint8("priority", 0, "Priority (lower is served first)")
	cmd.Flags().String("key", "", "Routing key")
	cmd.Flags().StringArray("header", nil, "Header key=value (repeatable)")
	cmd.Flags().Duration("delay", 0, "Delay before the first delivery")
	cmd.Flags().Duration("every", 0, "Repeat at this fixed interval")
	cmd.Flags().String("cron", "", "Repeat on this cron schedule")
	cmd.Flags().Int64("repeat", 0, "Total occurrences for recurring messages (0 = unbounded)")
	cmd.Flags().String("until", "", "End time for recurring messages (RFC3339 or unix ms)")
	return cmd
}

func newMsgReadCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Claim due messages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			consumer, _ := cmd.Flags().GetString("consumer")
			limit, _ := cmd.Flags().GetInt("max")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			autoAck, _ := cmd.Flags().GetBool("ack")
			req := apiv1.ReadRequest{Queue: queue, Consumer: consumer, Max: limit, TimeoutMs: timeout.Milliseconds()}
			if cmd.Flags().Changed("shard") {
				shard, _ := cmd.Flags().GetInt("shard")
				req.Shard = &shard
			}
			tr := transportFor(cmd, baseURL)
			msgs, err := tr.Read(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := printMessages(cmd.OutOrStdout(), msgs); err != nil {
				return err
			}
			if !autoAck {
				return nil
			}
			for _, m := range msgs {
				if err := tr.Ack(cmd.Context(), apiv1.AckRequest{Queue: queue, Consumer: consumer, Shard: m.Shard, ID: m.ID}); err != nil {
					return fmt.Errorf("ack %s: %w", m.ID, err)
				}
			}
			return nil
		},
	}
	addCommonFlags(cmd)
	cmd.Flags().StringP("consumer", "c", "cli", "Consumer identity")
	cmd.Flags().IntP("max", "n", 1, "Maximum messages to claim")
	cmd.Flags().Duration("timeout", 0, "Bound on the claim pass")
	cmd.Flags().Int("shard", 0, "Read from a single shard")
	cmd.Flags().Bool("ack", false, "Acknowledge each message after printing it")
	return cmd
}

func newMsgPeekCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peek",
		Short: "List due messages without claiming them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			limit, _ := cmd.Flags().GetInt("limit")
			msgs, err := transportFor(cmd, baseURL).Peek(cmd.Context(), queue, limit)
			if err != nil {
				return err
			}
			return printMessages(cmd.OutOrStdout(), msgs)
		},
	}
	addCommonFlags(cmd)
	cmd.Flags().IntP("limit", "n", 10, "Maximum messages to list")
	return cmd
}

func newMsgSettleCommand(baseURL BaseURLFunc, op, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   op + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			consumer, _ := cmd.Flags().GetString("consumer")
			shard, _ := cmd.Flags().GetInt("shard")
			req := apiv1.AckRequest{Queue: queue, Consumer: consumer, Shard: shard, ID: args[0]}
			tr := transportFor(cmd, baseURL)
			var err error
			if op == "poison" {
				err = tr.Poison(cmd.Context(), req)
			} else {
				err = tr.Ack(cmd.Context(), req)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	addCommonFlags(cmd)
	cmd.Flags().StringP("consumer", "c", "cli", "Consumer identity that holds the claim")
	cmd.Flags().Int("shard", 0, "Shard the message was read from")
	return cmd
}

func newMsgDeleteCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a message without acking it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			if err := transportFor(cmd, baseURL).Delete(cmd.Context(), queue, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	addCommonFlags(cmd)
	return cmd
}

func newMsgPoisonedCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poisoned",
		Short: "List messages in the poison row",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			limit, _ := cmd.Flags().GetInt("limit")
			msgs, err := transportFor(cmd, baseURL).ListPoison(cmd.Context(), queue, limit)
			if err != nil {
				return err
			}
			return printMessages(cmd.OutOrStdout(), msgs)
		},
	}
	addCommonFlags(cmd)
	cmd.Flags().IntP("limit", "n", 10, "Maximum messages to list")
	return cmd
}
