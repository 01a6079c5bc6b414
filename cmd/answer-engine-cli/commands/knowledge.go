package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/answer-engine/cmd/answer-engine-cli/ui"
	"github.com/spherical-ai/spherical/libs/answer-engine/pkg/engine"
)

func newKnowledgeCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage curated questions and answers",
	}
	cmd.AddCommand(newKnowledgeUpsertCmd(opts))
	return cmd
}

func newKnowledgeUpsertCmd(opts *globalOptions) *cobra.Command {
	var in engine.KnowledgeInput

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Add or replace a curated answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tenant, err := opts.tenant()
			if err != nil {
				return err
			}

			eng, err := opts.openEngine(ctx, cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			item, err := eng.UpsertKnowledgeItem(ctx, tenant, in)
			if err != nil {
				return err
			}

			out := ui.NewPrinter(cmd.OutOrStdout())
			out.Success("Stored knowledge item %s", item.ID)
			out.KeyValue("Question", item.Question)
			return nil
		},
	}

	cmd.Flags().StringVarP(&in.Question, "question", "q", "", "customer question (required)")
	cmd.Flags().StringVarP(&in.Answer, "answer", "a", "", "answer text (required)")
	cmd.Flags().StringSliceVar(&in.Sources, "source", nil, "source reference (repeatable)")
	cmd.Flags().StringVar(&in.CreatedBy, "created-by", "", "author of the answer")
	_ = cmd.MarkFlagRequired("question")
	_ = cmd.MarkFlagRequired("answer")
	return cmd
}
