package breeze

import (
	"sync"

	"go.uber.org/zap"
)

// Dispatcher delivers confirmed purchases to the application handler.
//
// The handler is swapped under its own lock so it can be registered from any
// goroutine; the last registration wins. Dispatch runs the handler on the
// calling goroutine and must never be called with the engine lock held.
type Dispatcher struct {
	mu      sync.RWMutex
	handler PurchaseHandler
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher with no handler
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger}
}

// SetHandler replaces the current handler. A nil handler unregisters it.
func (d *Dispatcher) SetHandler(h PurchaseHandler) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

// claim marks intent as delivered and reports whether this caller won the
// right to deliver it. Must be called with the engine lock held.
func (d *Dispatcher) claim(intent *PurchaseIntent) bool {
	if intent.Delivered {
		return false
	}
	intent.Delivered = true
	return true
}

// Dispatch invokes the handler with tx. It reports false when no handler is
// registered; the delivery is then dropped.
func (d *Dispatcher) Dispatch(tx CompletedTransaction) bool {
	d.mu.RLock()
	h := d.handler
	d.mu.RUnlock()

	if h == nil {
		d.logger.Warn("no purchase handler registered, dropping delivery",
			zap.String("id", tx.ID),
			zap.String("productId", tx.ProductID),
			zap.String("source", string(tx.Source)))
		return false
	}
	h(tx)
	return true
}
