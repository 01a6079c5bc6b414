// Package commands implements the answer engine CLI.
package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/answer-engine/cmd/answer-engine-cli/ui"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/answer-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/answer-engine/pkg/engine"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	cfgFile  string
	tenantID string
	verbose  bool
	noColor  bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "answer-engine",
		Short: "Answer Engine - tiered answers for customer messages",
		Long: `The Answer Engine resolves customer questions against a tenant's cached answers,
curated knowledge, product catalog, documents and website content.

Use it to load tenant content and to try questions locally.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.Init(opts.noColor)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", os.Getenv("CONFIG_PATH"), "config file path")
	rootCmd.PersistentFlags().StringVarP(&opts.tenantID, "tenant", "t", os.Getenv("ANSWER_ENGINE_TENANT"), "tenant id")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		newMigrateCmd(opts),
		newResolveCmd(opts),
		newKnowledgeCmd(opts),
		newIndexCmd(opts),
		newProductCmd(opts),
		newCacheCmd(opts),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (o *globalOptions) logger(cmd *cobra.Command) *observability.Logger {
	level := "error"
	if o.verbose {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: "console",
		Output: cmd.ErrOrStderr(),
	})
}

// openEngine builds an engine from the configuration. Callers must Close it.
func (o *globalOptions) openEngine(ctx context.Context, cmd *cobra.Command) (*engine.Engine, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(ctx, cfg, engine.Options{Logger: o.logger(cmd)})
	if err != nil {
		return nil, fmt.Errorf("initialize engine: %w", err)
	}
	return eng, nil
}

func (o *globalOptions) tenant() (string, error) {
	tenant := strings.TrimSpace(o.tenantID)
	if tenant == "" {
		return "", fmt.Errorf("tenant is required (--tenant or ANSWER_ENGINE_TENANT)")
	}
	return tenant, nil
}
