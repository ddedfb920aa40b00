package breeze

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	return key
}

func signToken(t *testing.T, key *ecdsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func paidClaims(id, productID string) jwt.MapClaims {
	return jwt.MapClaims{
		"successPaymentId": "sp_" + id,
		"paymentPageId":    id,
		"paymentAmount":    "4.99",
		"productId":        productID,
		"productType":      "consumable",
		"status":           "PAID",
	}
}

func callbackURL(token string) string {
	return "myapp://breeze-payment?signature=" + url.QueryEscape(token)
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeInitiator hands out payment pages with the queued ids
type fakeInitiator struct {
	mu       sync.Mutex
	ids      []string
	err      error
	requests []InitiateRequest
}

func (f *fakeInitiator) CreatePaymentPage(ctx context.Context, req InitiateRequest) (*PaymentPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.ids) == 0 {
		return nil, errors.New("no payment page queued")
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return &PaymentPage{ID: id, URL: "https://pay.example.com/" + id}, nil
}

// fakePoller answers polls from a table. Missing ids report pending.
type fakePoller struct {
	mu      sync.Mutex
	results map[string]TransactionStatus
	errs    map[string]error
	calls   map[string]int
	onPoll  func(id string)
}

func newFakePoller() *fakePoller {
	return &fakePoller{
		results: make(map[string]TransactionStatus),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakePoller) set(id string, status TransactionStatus) {
	f.mu.Lock()
	f.results[id] = status
	f.mu.Unlock()
}

func (f *fakePoller) fail(id string, err error) {
	f.mu.Lock()
	f.errs[id] = err
	f.mu.Unlock()
}

func (f *fakePoller) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakePoller) Poll(ctx context.Context, id string) (*PollResult, error) {
	f.mu.Lock()
	f.calls[id]++
	status, ok := f.results[id]
	err := f.errs[id]
	hook := f.onPoll
	f.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		status = TransactionPending
	}
	return &PollResult{ID: id, Status: status}, nil
}

// recorder collects delivered transactions
type recorder struct {
	mu  sync.Mutex
	txs []CompletedTransaction
}

func (r *recorder) handle(tx CompletedTransaction) {
	r.mu.Lock()
	r.txs = append(r.txs, tx)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.txs)
}

func (r *recorder) all() []CompletedTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CompletedTransaction(nil), r.txs...)
}

// memoryLedger is a minimal DeliveryLedger
type memoryLedger struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (l *memoryLedger) MarkDelivered(ctx context.Context, tx CompletedTransaction) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	if l.seen[tx.ID] {
		return false, nil
	}
	l.seen[tx.ID] = true
	return true, nil
}

type testEngine struct {
	*Engine
	key       *ecdsa.PrivateKey
	clock     *fakeClock
	initiator *fakeInitiator
	poller    *fakePoller
	rec       *recorder
	opened    []string
}

func testConfig() *Config {
	return &Config{
		APIKey:         "test-api-key",
		AppScheme:      "myapp://",
		UserID:         "user-1",
		Environment:    EnvironmentSandbox,
		PollInterval:   time.Hour,
		PendingTimeout: 300 * time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

func newTestEngine(t *testing.T, ids []string, opts ...EngineOption) *testEngine {
	t.Helper()
	te := &testEngine{
		key:       newTestKey(t),
		clock:     newFakeClock(),
		initiator: &fakeInitiator{ids: ids},
		poller:    newFakePoller(),
		rec:       &recorder{},
	}
	verifier, err := NewTokenVerifier(&te.key.PublicKey)
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}

	base := []EngineOption{
		WithConfig(testConfig()),
		WithVerifier(verifier),
		WithInitiator(te.initiator),
		WithPoller(te.poller),
		WithBrowserOpener(BrowserOpenerFunc(func(ctx context.Context, u string) error {
			te.opened = append(te.opened, u)
			return nil
		})),
		WithClock(te.clock.Now),
		WithPurchaseHandler(te.rec.handle),
	}
	engine, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	te.Engine = engine
	return te
}

func (te *testEngine) initiate(t *testing.T, productID string) *PurchaseIntent {
	t.Helper()
	intent, err := te.Initiate(context.Background(), productID, ProductTypeConsumable)
	if err != nil {
		t.Fatalf("Initiate(%s) failed: %v", productID, err)
	}
	return intent
}

func (te *testEngine) paidURL(t *testing.T, id, productID string) string {
	t.Helper()
	return callbackURL(signToken(t, te.key, paidClaims(id, productID)))
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s_%d", prefix, i+1)
	}
	return out
}
