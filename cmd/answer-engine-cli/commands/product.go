package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/answer-engine/cmd/answer-engine-cli/ui"
	"github.com/spherical-ai/spherical/libs/answer-engine/pkg/engine"
)

func newProductCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage the product catalog",
	}
	cmd.AddCommand(newProductUpsertCmd(opts), newProductDeleteCmd(opts))
	return cmd
}

func newProductUpsertCmd(opts *globalOptions) *cobra.Command {
	var p engine.Product

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Add or update a product by SKU",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tenant, err := opts.tenant()
			if err != nil {
				return err
			}
			p.TenantID = tenant

			eng, err := opts.openEngine(ctx, cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.UpsertProduct(ctx, &p); err != nil {
				return err
			}

			out := ui.NewPrinter(cmd.OutOrStdout())
			out.Success("Stored product %s", p.ID)
			out.KeyValue("Name", p.Name)
			out.KeyValue("Price", fmt.Sprintf("%.2f %s", p.Price, p.Currency))
			return nil
		},
	}

	cmd.Flags().StringVar(&p.SKU, "sku", "", "stock keeping unit (required)")
	cmd.Flags().StringVar(&p.Name, "name", "", "product name (required)")
	cmd.Flags().StringVar(&p.Description, "description", "", "product description")
	cmd.Flags().StringVar(&p.Category, "category", "", "product category")
	cmd.Flags().Float64Var(&p.Price, "price", 0, "unit price")
	cmd.Flags().StringVar(&p.Currency, "currency", "USD", "price currency")
	cmd.Flags().StringVar(&p.Unit, "unit", "", "sales unit")
	cmd.Flags().BoolVar(&p.InStock, "in-stock", true, "whether the product is available")
	_ = cmd.MarkFlagRequired("sku")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newProductDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <product-id>",
		Short: "Remove a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tenant, err := opts.tenant()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid product id: %w", err)
			}

			eng, err := opts.openEngine(ctx, cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.DeleteProduct(ctx, tenant, id); err != nil {
				return err
			}
			ui.NewPrinter(cmd.OutOrStdout()).Success("Deleted product %s", id)
			return nil
		},
	}
}
