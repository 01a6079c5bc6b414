package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/answer-engine/cmd/answer-engine-cli/ui"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := ui.NewPrinter(cmd.OutOrStdout())

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			conn, err := storage.Open(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer conn.Close()

			migrator := storage.NewMigrator(conn)
			if statusOnly {
				status, err := migrator.Status(ctx)
				if err != nil {
					return err
				}
				out.KeyValue("Current", status.Current)
				out.KeyValue("Total", fmt.Sprintf("%d", status.Total))
				if status.UpToDate {
					out.Success("Database is up to date")
				} else {
					out.Warning("%d pending migration(s): %v", len(status.Pending), status.Pending)
				}
				return nil
			}

			applied, err := migrator.Up(ctx)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				out.Success("Database is up to date")
				return nil
			}
			for _, v := range applied {
				out.Info("Applied %s", v)
			}
			out.Success("Applied %d migration(s)", len(applied))
			return nil
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "report pending migrations without applying them")
	return cmd
}
