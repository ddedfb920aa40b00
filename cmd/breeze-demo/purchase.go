package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	breeze "github.com/beamo-co/breeze-go"
	becho "github.com/beamo-co/breeze-go/pkg/echo"
)

func newPurchaseCommand(opts *options) *cobra.Command {
	var productType string

	cmd := &cobra.Command{
		Use:   "purchase <product-id>",
		Short: "Open web checkout for a product and wait for the purchase to resolve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurchase(cmd, opts, args[0], breeze.ProductType(productType))
		},
	}
	cmd.Flags().StringVar(&productType, "type", string(breeze.ProductTypeConsumable), "product type: consumable, non_consumable, auto_renewable or non_renewable")
	cmd.Flags().StringVar(&opts.CallbackAddr, "callback-addr", "", "listen address of the loopback callback server (env BREEZE_CALLBACK_ADDR)")
	return cmd
}

func runPurchase(cmd *cobra.Command, opts *options, productID string, productType breeze.ProductType) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	delivered := make(chan breeze.CompletedTransaction, 1)
	resolved := make(chan string, 1)
	opener := breeze.BrowserOpenerFunc(func(ctx context.Context, url string) error {
		fmt.Fprintf(out, "Open this URL to pay:\n\n  %s\n\n", url)
		return nil
	})

	a, err := newApp(ctx, opts,
		breeze.WithBrowserOpener(opener),
		breeze.WithPurchaseHandler(func(tx breeze.CompletedTransaction) {
			select {
			case delivered <- tx:
			default:
			}
		}),
		breeze.WithOnFailedHook(func(c breeze.FailedContext) error {
			select {
			case resolved <- string(c.Result.Status):
			default:
			}
			return nil
		}),
		breeze.WithOnExpiredHook(func(c breeze.ExpiredContext) error {
			select {
			case resolved <- "timed out":
			default:
			}
			return nil
		}),
	)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := newCallbackServer(a.cfg, a.engine)
	go func() {
		if err := srv.Start(opts.CallbackAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("callback server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	intent, err := a.engine.Initiate(ctx, productID, productType)
	if err != nil {
		return err
	}
	a.logger.Info("waiting for payment", zap.String("id", intent.ID), zap.String("callback", opts.CallbackAddr))

	select {
	case tx := <-delivered:
		printJSON(out, tx)
		a.engine.Finish(tx.ID)
		return nil
	case reason := <-resolved:
		return fmt.Errorf("purchase %s did not complete: %s", intent.ID, reason)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newCallbackServer(cfg *breeze.Config, h becho.URLHandler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	becho.Register(e, cfg, h)
	return e
}
