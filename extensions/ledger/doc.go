// Package ledger provides delivery ledgers as an opt-in extension for the
// breeze engine.
//
// # Overview
//
// The engine guarantees at most one delivery per intent while the intent is
// tracked in memory. A ledger extends that guarantee to purchases that reach
// the application through more than one path (web notification, poll, native
// store, entitlement sync) and across process restarts, by recording every
// delivered transaction id in a store shared by all of them.
//
// # Usage
//
// In-memory ledger for a single process:
//
//	engine, err := breeze.New(
//	    breeze.WithConfig(cfg),
//	    breeze.WithDeliveryLedger(ledger.NewInMemoryLedger(24*time.Hour)),
//	)
//
// Redis, shared between instances:
//
//	l := ledger.NewRedisLedger(redisClient, ledger.WithTTL(30*24*time.Hour))
//
// SQL through gorm, durable across restarts:
//
//	l, err := ledger.NewGormLedger(db)
//
// # Failure Handling
//
// A ledger error never blocks a delivery: the engine logs it and delivers
// anyway, so an unavailable store degrades to the in-memory guarantee.
package ledger
