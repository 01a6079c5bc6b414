package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/answer-engine/cmd/answer-engine-cli/ui"
	"github.com/spherical-ai/spherical/libs/answer-engine/pkg/engine"
)

func newResolveCmd(opts *globalOptions) *cobra.Command {
	var (
		phone    string
		language string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [question]",
		Short: "Resolve a customer question",
		Args:  cobra.MinimumNArgs(1),
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

			spin := ui.NewSpinner(cmd.ErrOrStderr(), "Resolving...")
			spin.Start()
			res, err := eng.Resolve(ctx, engine.Request{
				TenantID:      tenant,
				Query:         strings.Join(args, " "),
				CustomerPhone: phone,
				Language:      language,
			})
			spin.Stop()
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printResolution(ui.NewPrinter(cmd.OutOrStdout()), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "customer phone number")
	cmd.Flags().StringVar(&language, "language", "", "customer language")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the resolution as JSON")
	return cmd
}

func printResolution(out *ui.Printer, res *engine.Resolution) {
	if !res.Answered() {
		out.Warning("No answer; escalate to a human agent")
		out.KeyValue("Intent", string(res.Intent))
		if len(res.DegradedTiers) > 0 {
			out.KeyValue("Degraded", strings.Join(res.DegradedTiers, ", "))
		}
		return
	}

	out.Section("Answer")
	out.KeyValue("Text", res.ResponseText)
	out.KeyValue("Source", res.SourceTag)
	out.KeyValue("Groundedness", ui.Groundedness(string(res.Groundedness)))
	if res.FromCache {
		out.KeyValue("Cache", fmt.Sprintf("hit #%d (originally %s)", res.HitCount, res.CachedSourceTag))
	}
	if res.Citation != nil && res.Citation.Label != "" {
		out.KeyValue("Citation", res.Citation.Label)
	}
	if res.NeedsReview {
		out.Warning("Generated answer; review before relying on it")
	}
}
