package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/answer-engine/cmd/answer-engine-cli/ui"
	"github.com/spherical-ai/spherical/libs/answer-engine/pkg/engine"
)

func newIndexCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index tenant documents and website pages",
	}
	cmd.AddCommand(newIndexDocumentsCmd(opts), newIndexPageCmd(opts))
	return cmd
}

func newIndexDocumentsCmd(opts *globalOptions) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "documents <file>...",
		Short: "Extract and index PDF, DOCX or text documents",
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

			out := ui.NewPrinter(cmd.OutOrStdout())
			bar := ui.NewProgressBar(cmd.ErrOrStderr(), int64(len(args)), "Indexing")

			var (
				rows   [][]string
				failed int
			)
			for _, path := range args {
				bar.Describe(filepath.Base(path))

				abs, err := filepath.Abs(path)
				if err != nil {
					return err
				}
				in := engine.DocumentInput{Filename: filepath.Base(path), StoragePath: abs}
				if len(args) == 1 {
					in.Title = title
				}

				_, res, err := eng.IngestDocument(ctx, tenant, in)
				bar.Add(1)
				if err != nil {
					failed++
					rows = append(rows, []string{in.Filename, "failed", "0", err.Error()})
					continue
				}
				rows = append(rows, []string{in.Filename, string(res.Status), strconv.Itoa(res.Chunks), res.SourceID.String()})
			}
			bar.Finish()

			out.Table([]string{"FILE", "STATUS", "CHUNKS", "DETAIL"}, rows)
			if failed > 0 {
				return fmt.Errorf("%d of %d document(s) failed", failed, len(args))
			}
			out.Success("Indexed %d document(s)", len(args))
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "citation label when indexing a single document")
	return cmd
}

func newIndexPageCmd(opts *globalOptions) *cobra.Command {
	var (
		in   engine.PageInput
		file string
	)

	cmd := &cobra.Command{
		Use:   "page",
		Short: "Index the extracted text of a website page",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tenant, err := opts.tenant()
			if err != nil {
				return err
			}

			text, err := readText(cmd, file)
			if err != nil {
				return err
			}
			in.Text = text

			eng, err := opts.openEngine(ctx, cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			res, err := eng.IndexWebsitePage(ctx, tenant, in)
			if err != nil {
				return err
			}

			out := ui.NewPrinter(cmd.OutOrStdout())
			out.Success("Indexed %s", in.URL)
			out.KeyValue("Chunks", strconv.Itoa(res.Chunks))
			return nil
		},
	}

	cmd.Flags().StringVar(&in.URL, "url", "", "page url (required)")
	cmd.Flags().StringVar(&in.Title, "title", "", "page title")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "file with the page text, - for stdin")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func readText(cmd *cobra.Command, file string) (string, error) {
	if file == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", file, err)
	}
	return string(data), nil
}
