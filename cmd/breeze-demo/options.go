package main

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/spf13/cobra"

	"github.com/beamo-co/breeze-go/internal/logging"
)

const (
	ledgerMemory = "memory"
	ledgerRedis  = "redis"
	ledgerSQLite = "sqlite"
)

// options are the demo settings that are not part of breeze.Config
type options struct {
	envFile string

	Logging      logging.Config
	Ledger       string `env:"BREEZE_LEDGER" envDefault:"memory"`
	RedisAddr    string `env:"BREEZE_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	SQLitePath   string `env:"BREEZE_SQLITE_PATH" envDefault:"breeze-ledger.db"`
	CallbackAddr string `env:"BREEZE_CALLBACK_ADDR" envDefault:"127.0.0.1:8787"`
}

// load fills unset fields from the environment. Flags win over env.
func (o *options) load(cmd *cobra.Command) error {
	var fromEnv options
	if err := env.Parse(&fromEnv); err != nil {
		return fmt.Errorf("failed to parse demo options: %w", err)
	}

	o.Logging = fromEnv.Logging
	if !cmd.Flags().Changed("ledger") {
		o.Ledger = fromEnv.Ledger
	}
	if !cmd.Flags().Changed("redis-addr") {
		o.RedisAddr = fromEnv.RedisAddr
	}
	if !cmd.Flags().Changed("sqlite-path") {
		o.SQLitePath = fromEnv.SQLitePath
	}
	if !cmd.Flags().Changed("callback-addr") {
		o.CallbackAddr = fromEnv.CallbackAddr
	}

	switch o.Ledger {
	case ledgerMemory, ledgerRedis, ledgerSQLite:
		return nil
	default:
		return fmt.Errorf("unknown ledger %q", o.Ledger)
	}
}
