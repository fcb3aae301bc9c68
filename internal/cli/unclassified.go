package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"taskagent/internal/repository"
)

var unclassifiedLimit int

var unclassifiedCmd = &cobra.Command{
	Use:   "unclassified",
	Short: "Review chat messages no intent pattern matched",
}

var unclassifiedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent unclassified messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		if unclassifiedLimit <= 0 {
			return fmt.Errorf("--limit must be positive")
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

		msgs, err := repository.NewUnclassifiedRepository(b.pool).Recent(ctx, unclassifiedLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RECEIVED\tUSER\tCONFIDENCE\tMESSAGE")
		for _, m := range msgs {
			fmt.Fprintf(w, "%s\t%d\t%.2f\t%s\n",
				m.ReceivedAt.UTC().Format(time.RFC3339), m.UserID, m.Confidence, m.Message)
		}
		return w.Flush()
	},
}

func init() {
	unclassifiedListCmd.Flags().IntVar(&unclassifiedLimit, "limit", 20, "number of messages to show")
	unclassifiedCmd.AddCommand(unclassifiedListCmd)
	rootCmd.AddCommand(unclassifiedCmd)
}
