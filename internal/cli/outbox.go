package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"taskagent/pkg/mq"
	"taskagent/pkg/outbox"
)

var (
	replayEventID int64
	replayFailed  bool
	replayLimit   int
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and replay task events in the outbox",
}

var outboxReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Republish one event (--id) or a batch of failed events (--failed)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if (replayEventID > 0) == replayFailed {
			return fmt.Errorf("exactly one of --id or --failed is required")
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		b, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		publisher, err := mq.NewPublisher(b.cfg.MQ.URL)
		if err != nil {
			return fmt.Errorf("connecting to broker: %w", err)
		}
		defer publisher.Close()

		replay := outbox.NewReplayService(outbox.NewRepository(b.pool), publisher, b.logger)

		if replayFailed {
			n, err := replay.ReplayFailedEvents(ctx, replayLimit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d failed events\n", n)
			return nil
		}

		if err := replay.ReplayEvent(ctx, replayEventID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "replayed event %d\n", replayEventID)
		return nil
	},
}

var outboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show outbox event counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		b, err := openBackend(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		counts, err := outbox.NewRepository(b.pool).CountByStatus(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	},
}

func init() {
	outboxReplayCmd.Flags().Int64Var(&replayEventID, "id", 0, "outbox event id to replay")
	outboxReplayCmd.Flags().BoolVar(&replayFailed, "failed", false, "replay events that exhausted their retries")
	outboxReplayCmd.Flags().IntVar(&replayLimit, "limit", 100, "maximum number of failed events to replay")

	outboxCmd.AddCommand(outboxReplayCmd, outboxStatsCmd)
	rootCmd.AddCommand(outboxCmd)
}
