package breeze

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEntitlements struct {
	list []Entitlement
	err  error
	ids  []string
}

func (f *fakeEntitlements) Entitlements(ctx context.Context, productIDs ...string) ([]Entitlement, error) {
	f.ids = productIDs
	return f.list, f.err
}

type fakeCatalog struct {
	products []Product
}

func (f *fakeCatalog) Products(ctx context.Context, productIDs ...string) ([]Product, error) {
	return f.products, nil
}

func TestEngine_DeliverNative(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	tx := Transaction{
		ID:           "2000000123",
		ProductID:    "consumable.fuel.octane87",
		ProductType:  ProductTypeConsumable,
		PurchaseDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Quantity:     1,
		Status:       TransactionPurchased,
	}
	assert.True(t, te.DeliverNative(ctx, tx))

	txs := te.rec.all()
	require.Len(t, txs, 1)
	assert.Equal(t, SourceNative, txs[0].Source)
	require.NotNil(t, txs[0].Transaction)
	assert.Equal(t, tx, *txs[0].Transaction)

	assert.False(t, te.DeliverNative(ctx, Transaction{ProductID: "x"}))
}

func TestEngine_DeliverNativeDedupedByLedger(t *testing.T) {
	te := newTestEngine(t, nil, WithDeliveryLedger(&memoryLedger{}))
	ctx := context.Background()

	tx := Transaction{ID: "2000000123", ProductID: "sku_1", Status: TransactionPurchased}
	assert.True(t, te.DeliverNative(ctx, tx))
	assert.False(t, te.DeliverNative(ctx, tx))
	assert.Equal(t, 1, te.rec.count())
}

func TestEngine_SyncEntitlements(t *testing.T) {
	source := &fakeEntitlements{list: []Entitlement{
		{PaymentPageID: "pp_1", ProductID: "sku_1", ProductType: ProductTypeConsumable, Quantity: 1, Status: TransactionPurchased},
		{PaymentPageID: "pp_2", ProductID: "sku_2", Status: TransactionRefunded},
		{PaymentPageID: "pp_lost", ProductID: "sku_9", Status: TransactionPurchased},
	}}
	te := newTestEngine(t, []string{"pp_1", "pp_2"}, WithEntitlementSource(source))
	ctx := context.Background()

	te.initiate(t, "sku_1")
	te.initiate(t, "sku_2")

	n, err := te.SyncEntitlements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "untracked entitlements need a ledger")

	txs := te.rec.all()
	require.Len(t, txs, 1)
	assert.Equal(t, "pp_1", txs[0].ID)
	assert.Equal(t, SourceEntitlementSync, txs[0].Source)

	got, ok := te.Intent("pp_2")
	require.True(t, ok)
	assert.Equal(t, IntentPending, got.Status, "sync only confirms")

	n, err = te.SyncEntitlements(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_SyncEntitlementsWithLedger(t *testing.T) {
	source := &fakeEntitlements{list: []Entitlement{
		{PaymentPageID: "pp_lost", ProductID: "sku_9", Status: TransactionPurchased},
	}}
	te := newTestEngine(t, nil, WithEntitlementSource(source), WithDeliveryLedger(&memoryLedger{}))
	ctx := context.Background()

	n, err := te.SyncEntitlements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = te.SyncEntitlements(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, te.rec.count())
}

func TestEngine_EntitlementsErrors(t *testing.T) {
	te := newTestEngine(t, nil)
	_, err := te.Entitlements(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)

	source := &fakeEntitlements{err: errors.New("timeout")}
	te = newTestEngine(t, nil, WithEntitlementSource(source))
	_, err = te.SyncEntitlements(context.Background())
	assert.ErrorIs(t, err, ErrNetwork)

	unconfigured, err := New(WithEntitlementSource(source))
	require.NoError(t, err)
	_, err = unconfigured.Entitlements(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestEngine_EntitlementsPassProductIDs(t *testing.T) {
	source := &fakeEntitlements{}
	te := newTestEngine(t, nil, WithEntitlementSource(source))

	_, err := te.Entitlements(context.Background(), "sku_1", "sku_2")
	require.NoError(t, err)
	assert.Equal(t, []string{"sku_1", "sku_2"}, source.ids)
}

func TestEngine_Products(t *testing.T) {
	te := newTestEngine(t, nil, WithCatalog(&fakeCatalog{products: []Product{{ID: "sku_1", Type: ProductTypeConsumable}}}))

	products, err := te.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "sku_1", products[0].ID)
}
