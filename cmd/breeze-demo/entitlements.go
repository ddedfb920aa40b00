package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newEntitlementsCommand(opts *options) *cobra.Command {
	var sync bool

	cmd := &cobra.Command{
		Use:   "entitlements [product-id...]",
		Short: "List the user's purchased products",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if sync {
				n, err := a.engine.SyncEntitlements(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "delivered %d missed purchase(s)\n", n)
			}

			ents, err := a.engine.Entitlements(ctx, args...)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), ents)
			return nil
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", false, "deliver purchased entitlements missing from the ledger first")
	return cmd
}

func newProductsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "products [product-id...]",
		Short: "List the product catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			products, err := a.engine.Products(ctx, args...)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), products)
			return nil
		},
	}
}

func printJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
