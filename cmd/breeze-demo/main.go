// Command breeze-demo drives the Breeze purchase engine from a terminal.
//
// Configuration comes from BREEZE_-prefixed environment variables, optionally
// loaded from a .env file. Set BREEZE_APP_SCHEME to a loopback address such as
// http://127.0.0.1:8787/ so the payment page redirects back to the built-in
// callback server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "breeze-demo",
		Short:         "Buy products through Breeze web checkout",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// a missing .env file is fine
			_ = godotenv.Load(opts.envFile)
			return opts.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flags.StringVar(&opts.Ledger, "ledger", "", "delivery ledger backend: memory, redis or sqlite (env BREEZE_LEDGER)")
	flags.StringVar(&opts.RedisAddr, "redis-addr", "", "redis address for the redis ledger (env BREEZE_REDIS_ADDR)")
	flags.StringVar(&opts.SQLitePath, "sqlite-path", "", "database file for the sqlite ledger (env BREEZE_SQLITE_PATH)")

	cmd.AddCommand(
		newPurchaseCommand(opts),
		newEntitlementsCommand(opts),
		newProductsCommand(opts),
		newMCPCommand(opts),
	)
	return cmd
}
