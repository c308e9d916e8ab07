package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newUnansweredCommand(deps Deps) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "unanswered",
		Short: "List recent questions the knowledge base could not ground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader, release, err := deps.OpenUnanswered(cmd.Context())
			if err != nil {
				return fmt.Errorf("open unanswered log: %w", err)
			}
			defer release()

			items, err := reader.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tSCORE\tCATEGORY\tREASON\tQUESTION")
			for _, q := range items {
				category := q.Category
				if q.Condition != "" {
					category += " / " + q.Condition
				}
				fmt.Fprintf(tw, "%s\t%.3f\t%s\t%s\t%s\n",
					q.CreatedAt.UTC().Format(time.RFC3339), q.Score, category, q.Reason, q.Text)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum records (max 200)")
	return cmd
}
