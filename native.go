package breeze

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DeliverNative hands a transaction already verified by the native store to
// the purchase handler. It is not re-verified. When a delivery ledger is
// configured a transaction id seen before is not delivered again.
// It reports whether the handler was invoked.
func (e *Engine) DeliverNative(ctx context.Context, t Transaction) bool {
	if t.ID == "" {
		e.logger.Warn("native transaction without id ignored", zap.String("productId", t.ProductID))
		return false
	}

	e.mu.Lock()
	if intent, ok := e.store.Get(t.ID); ok {
		if !e.dispatcher.claim(intent) {
			e.mu.Unlock()
			return false
		}
		intent.confirm(e.now())
	}
	now := e.now()
	e.mu.Unlock()

	txn := t
	return e.deliver(ctx, CompletedTransaction{
		ID:          t.ID,
		ProductID:   t.ProductID,
		ProductType: t.ProductType,
		Status:      TransactionPurchased,
		Source:      SourceNative,
		ConfirmedAt: now,
		Transaction: &txn,
	})
}

// Entitlements lists the user's purchases, all current ones when productIDs is empty
func (e *Engine) Entitlements(ctx context.Context, productIDs ...string) ([]Entitlement, error) {
	cfg, err := e.requireConfig()
	if err != nil {
		return nil, err
	}
	if e.entitlements == nil {
		return nil, NewPurchaseError(ErrCodeNotConfigured, "no entitlement source", nil)
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	list, err := e.entitlements.Entitlements(reqCtx, productIDs...)
	if err != nil {
		return nil, wrapNetwork("failed to fetch entitlements", err)
	}
	return list, nil
}

// Products lists the catalog, all products when productIDs is empty
func (e *Engine) Products(ctx context.Context, productIDs ...string) ([]Product, error) {
	cfg, err := e.requireConfig()
	if err != nil {
		return nil, err
	}
	if e.catalog == nil {
		return nil, NewPurchaseError(ErrCodeNotConfigured, "no catalog source", nil)
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	products, err := e.catalog.Products(reqCtx, productIDs...)
	if err != nil {
		return nil, wrapNetwork("failed to fetch products", err)
	}
	return products, nil
}

// SyncEntitlements reconciles the current entitlements with tracked intents.
// Purchased entitlements resolve matching pending intents. Entitlements with no
// tracked intent (purchases lost across a restart) are delivered only when a
// delivery ledger is configured to deduplicate them. It returns the number of
// deliveries made.
func (e *Engine) SyncEntitlements(ctx context.Context) (int, error) {
	list, err := e.Entitlements(ctx)
	if err != nil {
		return 0, err
	}

	var deliveries []CompletedTransaction
	e.mu.Lock()
	now := e.now()
	for _, ent := range list {
		if ent.Status != TransactionPurchased || ent.PaymentPageID == "" {
			continue
		}
		intent, ok := e.store.Get(ent.PaymentPageID)
		switch {
		case ok && intent.Status == IntentPending && intent.ProductID == ent.ProductID:
			intent.confirm(now)
			if e.dispatcher.claim(intent) {
				deliveries = append(deliveries, completedFromEntitlement(ent, now))
			}
		case !ok && e.ledger != nil:
			deliveries = append(deliveries, completedFromEntitlement(ent, now))
		}
	}
	e.mu.Unlock()

	delivered := 0
	for _, tx := range deliveries {
		if e.deliver(ctx, tx) {
			delivered++
		}
	}
	e.logger.Debug("entitlements synced",
		zap.Int("entitlements", len(list)),
		zap.Int("delivered", delivered))
	return delivered, nil
}

func completedFromEntitlement(ent Entitlement, now time.Time) CompletedTransaction {
	return CompletedTransaction{
		ID:          ent.PaymentPageID,
		ProductID:   ent.ProductID,
		ProductType: ent.ProductType,
		Status:      TransactionPurchased,
		Source:      SourceEntitlementSync,
		ConfirmedAt: now,
		Transaction: &Transaction{
			ID:           ent.PaymentPageID,
			ProductID:    ent.ProductID,
			ProductType:  ent.ProductType,
			PurchaseDate: ent.PurchaseDate,
			Quantity:     ent.Quantity,
			Status:       ent.Status,
		},
	}
}

func (e *Engine) requireConfig() (*Config, error) {
	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()
	if cfg == nil {
		return nil, NewPurchaseError(ErrCodeNotConfigured, "breeze is not configured", nil)
	}
	return cfg, nil
}

func wrapNetwork(message string, err error) error {
	var pe *PurchaseError
	if errors.As(err, &pe) {
		return err
	}
	return &PurchaseError{Code: ErrCodeNetwork, Message: message, Err: err}
}
