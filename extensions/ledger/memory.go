package ledger

import (
	"context"
	"sync"
	"time"

	breeze "github.com/beamo-co/breeze-go"
)

// InMemoryLedger remembers delivered transaction ids for a TTL.
//
// It only deduplicates within one process. Use RedisLedger or GormLedger when
// deliveries must be deduplicated across instances or restarts.
type InMemoryLedger struct {
	mu      sync.Mutex
	expiry  map[string]time.Time
	records map[string]breeze.CompletedTransaction
	ttl     time.Duration
	now     func() time.Time
}

// NewInMemoryLedger creates an in-memory ledger with the given TTL
func NewInMemoryLedger(ttl time.Duration, opts ...Option) *InMemoryLedger {
	cfg := newConfig(append([]Option{WithTTL(ttl)}, opts...))
	return &InMemoryLedger{
		expiry:  make(map[string]time.Time),
		records: make(map[string]breeze.CompletedTransaction),
		ttl:     cfg.ttl,
		now:     cfg.now,
	}
}

// MarkDelivered records tx and reports whether its id was new
func (l *InMemoryLedger) MarkDelivered(ctx context.Context, tx breeze.CompletedTransaction) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiry, ok := l.expiry[tx.ID]; ok && now.Before(expiry) {
		return false, nil
	}

	l.expiry[tx.ID] = now.Add(l.ttl)
	l.records[tx.ID] = tx

	l.cleanupExpiredLocked(now)
	return true, nil
}

// Get returns the recorded transaction for id if it has not expired
func (l *InMemoryLedger) Get(id string) (breeze.CompletedTransaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	expiry, ok := l.expiry[id]
	if !ok || !l.now().Before(expiry) {
		return breeze.CompletedTransaction{}, false
	}
	return l.records[id], true
}

// Len returns the number of remembered ids, expired ones included until the next cleanup
func (l *InMemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.expiry)
}

// cleanupExpiredLocked removes expired entries. Must be called with lock held.
func (l *InMemoryLedger) cleanupExpiredLocked(now time.Time) {
	for id, expiry := range l.expiry {
		if !now.Before(expiry) {
			delete(l.expiry, id)
			delete(l.records, id)
		}
	}
}

var _ breeze.DeliveryLedger = (*InMemoryLedger)(nil)
