package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/answer-engine/cmd/answer-engine-cli/ui"
)

func newCacheCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the answer cache",
	}
	cmd.AddCommand(newCachePurgeCmd(opts))
	return cmd
}

func newCachePurgeCmd(opts *globalOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired cache entries",
		Long: `Delete cache entries that expired before now minus --older-than.
Entries held in Redis expire on their own and are not affected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, err := opts.openEngine(ctx, cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			before := time.Now().UTC().Add(-olderThan)
			n, err := eng.PurgeCache(ctx, before)
			if err != nil {
				return err
			}

			out := ui.NewPrinter(cmd.OutOrStdout())
			out.Success("Purged %d expired cache entr%s", n, plural(n, "y", "ies"))
			out.KeyValue("Expired before", before.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only purge entries expired at least this long ago")
	return cmd
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
