package main

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	breeze "github.com/beamo-co/breeze-go"
	"github.com/beamo-co/breeze-go/extensions/ledger"
	bhttp "github.com/beamo-co/breeze-go/http"
	"github.com/beamo-co/breeze-go/internal/logging"
)

type app struct {
	cfg     *breeze.Config
	engine  *breeze.Engine
	logger  *zap.Logger
	closers []func() error
}

func newApp(ctx context.Context, opts *options, extra ...breeze.EngineOption) (*app, error) {
	logger, err := logging.New(opts.Logging)
	if err != nil {
		return nil, err
	}

	cfg, err := breeze.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	l, err := a.openLedger(ctx, opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	client := bhttp.NewBackendClient(cfg)
	engineOpts := []breeze.EngineOption{
		breeze.WithConfig(cfg),
		breeze.WithInitiator(client),
		breeze.WithPoller(client),
		breeze.WithEntitlementSource(client),
		breeze.WithCatalog(client),
		breeze.WithDeliveryLedger(l),
		breeze.WithLogger(logger),
		breeze.WithOnExpiredHook(func(c breeze.ExpiredContext) error {
			logger.Warn("purchase timed out", zap.String("id", c.Intent.ID), zap.Duration("age", c.Age))
			return nil
		}),
	}
	a.engine, err = breeze.New(append(engineOpts, extra...)...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append([]func() error{a.engine.Close}, a.closers...)
	return a, nil
}

func (a *app) openLedger(ctx context.Context, opts *options) (breeze.DeliveryLedger, error) {
	switch opts.Ledger {
	case ledgerRedis:
		client := goredis.NewClient(&goredis.Options{Addr: opts.RedisAddr})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", opts.RedisAddr, err)
		}
		a.logger.Info("using redis ledger", zap.String("addr", opts.RedisAddr))
		return ledger.NewRedisLedger(client), nil

	case ledgerSQLite:
		db, err := gorm.Open(sqlite.Open(opts.SQLitePath), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", opts.SQLitePath, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sqlDB.Close)
		a.logger.Info("using sqlite ledger", zap.String("path", opts.SQLitePath))
		l, err := ledger.NewGormLedger(db)
		if err != nil {
			return nil, err
		}
		return l, nil

	default:
		return ledger.NewInMemoryLedger(a.cfg.DeliveredRetention), nil
	}
}

// Close releases the engine and ledger connections
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
