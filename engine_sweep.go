package breeze

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type pollOutcome struct {
	id     string
	result *PollResult
	err    error
}

// Sweep runs one reconciliation pass: pending intents past the timeout
// expire, the rest are polled and the results merged. Safe to call with
// nothing pending.
func (e *Engine) Sweep(ctx context.Context) {
	e.mu.Lock()
	cfg := e.cfg
	if cfg == nil {
		e.mu.Unlock()
		return
	}
	now := e.now()

	var expired []ExpiredContext
	var toPoll []string
	for _, intent := range e.store.Snapshot() {
		age := now.Sub(intent.CreatedAt)
		switch {
		case intent.Status == IntentPending && age >= cfg.PendingTimeout:
			intent.Status = IntentExpired
			e.store.Remove(intent.ID)
			expired = append(expired, ExpiredContext{Ctx: ctx, Intent: intent, Age: age})
		case intent.Status == IntentPending:
			toPoll = append(toPoll, intent.ID)
		case intent.Delivered && now.Sub(intent.retainedSince()) >= cfg.DeliveredRetention:
			e.store.Remove(intent.ID)
		}
	}
	e.mu.Unlock()

	for _, hc := range expired {
		e.logger.Info("purchase intent expired",
			zap.String("id", hc.Intent.ID),
			zap.String("productId", hc.Intent.ProductID),
			zap.Duration("age", hc.Age))
		e.runExpiredHooks(hc)
	}

	if len(toPoll) == 0 || e.poller == nil {
		return
	}
	e.merge(ctx, e.pollAll(ctx, cfg, toPoll))
}

// pollAll queries the backend for ids without holding the engine lock
func (e *Engine) pollAll(ctx context.Context, cfg *Config, ids []string) []pollOutcome {
	outcomes := make([]pollOutcome, len(ids))

	var g errgroup.Group
	g.SetLimit(cfg.PollConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()
			result, err := e.poller.Poll(pctx, id)
			outcomes[i] = pollOutcome{id: id, result: result, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// merge applies poll outcomes. Outcomes for intents resolved while the poll
// was in flight are dropped.
func (e *Engine) merge(ctx context.Context, outcomes []pollOutcome) {
	var deliveries []CompletedTransaction
	var failed []FailedContext
	var pollErrors []PollErrorContext

	e.mu.Lock()
	now := e.now()
	for _, o := range outcomes {
		if o.err != nil || o.result == nil {
			err := o.err
			if err == nil {
				err = ErrInvalidResponse
			}
			pollErrors = append(pollErrors, PollErrorContext{Ctx: ctx, IntentID: o.id, Error: err})
			continue
		}

		intent, ok := e.store.Get(o.id)
		if !ok || intent.Status != IntentPending || intent.Delivered {
			continue
		}

		switch o.result.Status {
		case TransactionPurchased:
			intent.confirm(now)
			if e.dispatcher.claim(intent) {
				deliveries = append(deliveries, completedFromPoll(intent, o.result, now))
			}
		case TransactionFailed, TransactionExpired, TransactionRefunded:
			intent.Status = IntentFailed
			snapshot := *intent
			e.store.Remove(o.id)
			failed = append(failed, FailedContext{Ctx: ctx, Intent: snapshot, Result: *o.result})
		}
	}
	e.mu.Unlock()

	for _, hc := range pollErrors {
		e.logger.Warn("failed to poll transaction", zap.String("id", hc.IntentID), zap.Error(hc.Error))
		e.runPollErrorHooks(hc)
	}
	for _, hc := range failed {
		e.logger.Info("purchase denied by backend",
			zap.String("id", hc.Intent.ID),
			zap.String("status", string(hc.Result.Status)))
		e.runFailedHooks(hc)
	}
	for _, tx := range deliveries {
		e.deliver(ctx, tx)
	}
}

func completedFromPoll(intent *PurchaseIntent, result *PollResult, now time.Time) CompletedTransaction {
	tx := CompletedTransaction{
		ID:          intent.ID,
		ProductID:   intent.ProductID,
		ProductType: intent.ProductType,
		Status:      TransactionPurchased,
		Source:      SourcePoll,
		ConfirmedAt: now,
		Transaction: result.Transaction,
	}
	return tx
}

// startSweeperLocked starts the periodic sweep if it is not running.
// Must be called with e.mu held.
func (e *Engine) startSweeperLocked() {
	if e.sweepCancel != nil || e.closed || e.cfg == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.sweepCancel, e.sweepDone = cancel, done
	go e.sweepLoop(ctx, cancel, e.cfg.PollInterval, done)
}

func (e *Engine) sweepLoop(ctx context.Context, cancel context.CancelFunc, interval time.Duration, done chan struct{}) {
	defer close(done)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			e.sweepActive = done
			e.mu.Unlock()

			e.Sweep(ctx)

			e.mu.Lock()
			if e.sweepActive == done {
				e.sweepActive = nil
			}
			if e.sweepDone == done && e.store.PendingCount() == 0 {
				e.sweepCancel, e.sweepDone = nil, nil
				e.mu.Unlock()
				e.logger.Debug("no pending intents, sweeper stopped")
				return
			}
			e.mu.Unlock()
		}
	}
}

// SweeperRunning reports whether the periodic sweep is active
func (e *Engine) SweeperRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sweepCancel != nil
}
