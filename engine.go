package breeze

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine reconciles web purchases. All intent state lives behind mu; network
// calls and the purchase handler run with mu released.
type Engine struct {
	mu     sync.Mutex
	store  *PendingStore
	cfg    *Config
	closed bool

	verifier     *TokenVerifier
	initiator    PurchaseInitiator
	poller       BackendPoller
	opener       BrowserOpener
	entitlements EntitlementSource
	catalog      CatalogSource
	ledger       DeliveryLedger

	dispatcher *Dispatcher
	hooks      engineHooks
	logger     *zap.Logger
	now        func() time.Time

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
	// sweepActive is the done channel of the sweeper while it runs a pass
	sweepActive chan struct{}
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithConfig sets the configuration at construction time
func WithConfig(cfg *Config) EngineOption {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithVerifier overrides the verifier derived from the configured environment
func WithVerifier(v *TokenVerifier) EngineOption {
	return func(e *Engine) {
		e.verifier = v
	}
}

// WithInitiator sets the backend that creates payment pages
func WithInitiator(i PurchaseInitiator) EngineOption {
	return func(e *Engine) {
		e.initiator = i
	}
}

// WithPoller sets the backend queried by the sweep
func WithPoller(p BackendPoller) EngineOption {
	return func(e *Engine) {
		e.poller = p
	}
}

// WithBrowserOpener sets how payment pages are shown to the user
func WithBrowserOpener(o BrowserOpener) EngineOption {
	return func(e *Engine) {
		e.opener = o
	}
}

// WithEntitlementSource enables Entitlements and SyncEntitlements
func WithEntitlementSource(s EntitlementSource) EngineOption {
	return func(e *Engine) {
		e.entitlements = s
	}
}

// WithCatalog enables Products
func WithCatalog(c CatalogSource) EngineOption {
	return func(e *Engine) {
		e.catalog = c
	}
}

// WithDeliveryLedger records deliveries so they survive restarts and are
// deduplicated across the web, native and sync paths
func WithDeliveryLedger(l DeliveryLedger) EngineOption {
	return func(e *Engine) {
		e.ledger = l
	}
}

// WithPurchaseHandler registers the initial purchase handler
func WithPurchaseHandler(h PurchaseHandler) EngineOption {
	return func(e *Engine) {
		e.dispatcher.SetHandler(h)
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine. Without WithConfig the engine starts unconfigured and
// Initiate fails with ErrNotConfigured until Configure is called.
func New(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		store:      NewPendingStore(),
		dispatcher: NewDispatcher(nil),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.dispatcher.logger = e.logger

	if e.cfg != nil {
		cfg := e.cfg
		e.cfg = nil
		if err := e.Configure(cfg); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Configure activates cfg. Configuration is set once; a second call fails.
func (e *Engine) Configure(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	c := *cfg
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg != nil {
		return fmt.Errorf("%w: already configured", ErrInvalidConfig)
	}
	if e.verifier == nil {
		v, err := NewTokenVerifierForEnvironment(c.Environment)
		if err != nil {
			return err
		}
		e.verifier = v
	}
	e.cfg = &c
	e.logger.Info("breeze configured",
		zap.String("environment", string(c.Environment)),
		zap.String("redirectUrl", c.RedirectURL()))
	return nil
}

// IsConfigured reports whether Configure succeeded
func (e *Engine) IsConfigured() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg != nil
}

// Config returns a copy of the active configuration, or nil
func (e *Engine) Config() *Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg == nil {
		return nil
	}
	c := *e.cfg
	return &c
}

// SetPurchaseCallback registers the purchase handler. The last registration wins.
func (e *Engine) SetPurchaseCallback(h PurchaseHandler) {
	e.dispatcher.SetHandler(h)
}

// Initiate creates a payment page for productID, tracks it as a pending intent
// and opens it in the browser.
func (e *Engine) Initiate(ctx context.Context, productID string, productType ProductType) (*PurchaseIntent, error) {
	e.mu.Lock()
	cfg, closed := e.cfg, e.closed
	e.mu.Unlock()

	if closed {
		return nil, ErrEngineClosed
	}
	if cfg == nil {
		return nil, NewPurchaseError(ErrCodeNotConfigured, "breeze is not configured", nil)
	}
	if e.initiator == nil {
		return nil, NewPurchaseError(ErrCodeNotConfigured, "no purchase initiator", nil)
	}
	if productID == "" {
		return nil, NewPurchaseError(ErrCodeInvalidProduct, "product id is required", nil)
	}
	if !productType.Valid() {
		return nil, NewPurchaseError(ErrCodeInvalidProduct, "unknown product type",
			map[string]interface{}{"productType": string(productType)})
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	page, err := e.initiator.CreatePaymentPage(reqCtx, InitiateRequest{
		ProductID:         productID,
		ProductType:       productType,
		Quantity:          1,
		RedirectURL:       cfg.RedirectURL(),
		ClientReferenceID: uuid.NewString(),
	})
	cancel()
	if err != nil {
		var pe *PurchaseError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &PurchaseError{
			Code:    ErrCodeNetwork,
			Message: "failed to create payment page",
			Details: map[string]interface{}{"productId": productID},
			Err:     err,
		}
	}
	if page == nil || page.ID == "" || page.URL == "" {
		return nil, NewPurchaseError(ErrCodeInvalidResponse, "payment page response is missing id or url", nil)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	if existing, ok := e.store.Get(page.ID); ok {
		snapshot := *existing
		e.mu.Unlock()
		if snapshot.Status == IntentPending && !snapshot.Delivered {
			return &snapshot, nil
		}
		return nil, NewPurchaseError(ErrCodeDuplicateIntent, "payment page already resolved",
			map[string]interface{}{"id": page.ID, "status": string(snapshot.Status)})
	}
	intent := &PurchaseIntent{
		ID:          page.ID,
		ProductID:   productID,
		ProductType: productType,
		PaymentURL:  page.URL,
		CreatedAt:   e.now(),
		Status:      IntentPending,
	}
	e.store.Put(intent)
	e.startSweeperLocked()
	snapshot := *intent
	e.mu.Unlock()

	e.logger.Info("purchase initiated",
		zap.String("id", snapshot.ID),
		zap.String("productId", productID),
		zap.String("productType", string(productType)))

	if e.opener != nil {
		if err := e.opener.OpenURL(ctx, snapshot.PaymentURL); err != nil {
			e.mu.Lock()
			if cur, ok := e.store.Get(snapshot.ID); ok && cur.Status == IntentPending && !cur.Delivered {
				e.store.Remove(snapshot.ID)
			}
			e.mu.Unlock()
			return nil, &PurchaseError{
				Code:    ErrCodeBrowser,
				Message: "failed to open payment page",
				Details: map[string]interface{}{"id": snapshot.ID},
				Err:     err,
			}
		}
	}
	return &snapshot, nil
}

// Purchase registers onSuccess as the purchase handler when it is non-nil and
// starts a purchase
func (e *Engine) Purchase(ctx context.Context, productID string, productType ProductType, onSuccess PurchaseHandler) (*PurchaseIntent, error) {
	if onSuccess != nil {
		e.SetPurchaseCallback(onSuccess)
	}
	return e.Initiate(ctx, productID, productType)
}

// Finish acknowledges id and forgets it. Unknown ids are ignored.
func (e *Engine) Finish(id string) {
	e.mu.Lock()
	_, ok := e.store.Get(id)
	e.store.Remove(id)
	e.mu.Unlock()

	if ok {
		e.logger.Debug("transaction finished", zap.String("id", id))
	}
}

// Pending returns a snapshot of all tracked intents, oldest first
func (e *Engine) Pending() []PurchaseIntent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Snapshot()
}

// Intent returns a copy of the tracked intent id
func (e *Engine) Intent(id string) (PurchaseIntent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	intent, ok := e.store.Get(id)
	if !ok {
		return PurchaseIntent{}, false
	}
	return *intent, true
}

// Close stops the periodic sweep and waits for it to exit. When the sweeper is
// in the middle of a pass, which includes a purchase handler called from that
// pass, Close cancels it and returns without waiting; the pass ends at its next
// cancellation point. Further Initiate calls fail with ErrEngineClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	cancel, done := e.sweepCancel, e.sweepDone
	inPass := done != nil && e.sweepActive == done
	e.sweepCancel, e.sweepDone = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		if !inPass {
			<-done
		}
	}
	return nil
}

// deliver hands tx to the application. The caller has already claimed the
// delivered flag and released the engine lock.
func (e *Engine) deliver(ctx context.Context, tx CompletedTransaction) bool {
	if e.ledger != nil {
		fresh, err := e.ledger.MarkDelivered(ctx, tx)
		switch {
		case err != nil:
			e.logger.Warn("delivery ledger unavailable, delivering anyway",
				zap.String("id", tx.ID), zap.Error(err))
		case !fresh:
			e.logger.Info("transaction already delivered, skipping",
				zap.String("id", tx.ID), zap.String("source", string(tx.Source)))
			return false
		}
	}

	if !e.dispatcher.Dispatch(tx) {
		return false
	}
	e.logger.Info("purchase delivered",
		zap.String("id", tx.ID),
		zap.String("productId", tx.ProductID),
		zap.String("source", string(tx.Source)))

	e.runDeliveredHooks(DeliveredContext{Ctx: ctx, Transaction: tx, Timestamp: e.now()})
	return true
}
