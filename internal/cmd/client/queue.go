package client

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	apiv1 "github.com/rzbill/shardq/api/v1"
)

// NewQueueCommand constructs the `queue` command group.
func NewQueueCommand(baseURL BaseURLFunc) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue administration",
	}
	queueCmd.AddCommand(
		newQueueCreateCommand(baseURL),
		newQueueInfoCommand(baseURL),
		newQueueStatsCommand(baseURL),
	)
	return queueCmd
}

func newQueueCreateCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shards, _ := cmd.Flags().GetInt("shards")
			lease, _ := cmd.Flags().GetDuration("lease")
			poison, _ := cmd.Flags().GetString("poison-location")
			info, err := transportFor(cmd, baseURL).CreateQueue(cmd.Context(), apiv1.CreateQueueRequest{
				Name:            args[0],
				ShardCount:      shards,
				LeaseDurationMs: lease.Milliseconds(),
				PoisonLocation:  poison,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			printInfo(cmd, info)
			return nil
		},
	}
	cmd.Flags().Int("shards", 0, "Shard count (default: server default)")
	cmd.Flags().Duration("lease", 0, "Lease duration (default: server default)")
	cmd.Flags().String("poison-location", "", "Poison row (default: <queue>:poison)")
	cmd.Flags().String("token", "", "Bearer token (default $SHARDQ_TOKEN)")
	return cmd
}

func newQueueInfoCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show queue metadata",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			info, err := transportFor(cmd, baseURL).QueueInfo(cmd.Context(), queue)
			if err != nil {
				return err
			}
			printInfo(cmd, info)
			return nil
		},
	}
	addCommonFlags(cmd)
	return cmd
}

func newQueueStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-shard message counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			info, err := transportFor(cmd, baseURL).QueueInfo(cmd.Context(), queue)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "SHARD\tMESSAGES")
			for i, n := range info.Shards {
				_, _ = fmt.Fprintf(tw, "%d\t%s\n", i, humanize.Comma(int64(n)))
			}
			_, _ = fmt.Fprintf(tw, "total\t%s\n", humanize.Comma(int64(info.Messages)))
			_, _ = fmt.Fprintf(tw, "poison\t%s\n", humanize.Comma(int64(info.Poisoned)))
			return tw.Flush()
		},
	}
	addCommonFlags(cmd)
	return cmd
}

func printInfo(cmd *cobra.Command, info apiv1.QueueInfo) {
	out := cmd.OutOrStdout()
	created := time.UnixMilli(info.CreatedAtMs)
	_, _ = fmt.Fprintf(out, "name:     %s\n", info.Name)
	_, _ = fmt.Fprintf(out, "shards:   %d\n", info.ShardCount)
	_, _ = fmt.Fprintf(out, "lease:    %s\n", time.Duration(info.LeaseDurationMs)*time.Millisecond)
	_, _ = fmt.Fprintf(out, "poison:   %s (%s messages)\n", info.PoisonLocation, humanize.Comma(int64(info.Poisoned)))
	_, _ = fmt.Fprintf(out, "messages: %s\n", humanize.Comma(int64(info.Messages)))
	_, _ = fmt.Fprintf(out, "created:  %s (%s)\n", created.UTC().Format(time.RFC3339), humanize.Time(created))
}
