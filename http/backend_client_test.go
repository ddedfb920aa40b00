package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	breeze "github.com/beamo-co/breeze-go"
	"github.com/beamo-co/breeze-go/test/mocks/backend"
)

func testConfig(baseURL string) *breeze.Config {
	return &breeze.Config{
		APIKey:         "key_123",
		AppScheme:      "myapp://",
		UserID:         "user-1",
		UserEmail:      "user@example.com",
		Environment:    breeze.EnvironmentSandbox,
		BaseURL:        baseURL,
		RequestTimeout: 5 * time.Second,
	}
}

func TestBaseURLFor(t *testing.T) {
	if BaseURLFor(breeze.EnvironmentProduction) != ProductionBaseURL {
		t.Errorf("Expected production URL %s", ProductionBaseURL)
	}
	if BaseURLFor(breeze.EnvironmentSandbox) != SandboxBaseURL {
		t.Errorf("Expected sandbox URL %s", SandboxBaseURL)
	}
}

func TestBackendClient_CreatePaymentPage(t *testing.T) {
	server := backend.NewServer()
	defer server.Close()

	client := NewBackendClient(testConfig(server.URL))
	page, err := client.CreatePaymentPage(context.Background(), breeze.InitiateRequest{
		ProductID:         "sku_1",
		ProductType:       breeze.ProductTypeNonConsumable,
		Quantity:          1,
		RedirectURL:       "myapp://breeze-payment",
		ClientReferenceID: "ref-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pp_1", page.ID)
	assert.Equal(t, server.URL+"/pay/pp_1", page.URL)

	pages := server.Pages()
	require.Len(t, pages, 1)
	assert.Equal(t, "nonConsumable", pages[0].ProductType)
	assert.Equal(t, "myapp://breeze-payment", pages[0].RedirectURL)
	assert.Equal(t, "ref-1", pages[0].ClientReferenceID)

	reqs := server.Requests()
	require.Len(t, reqs, 1)
	want := backend.Request{
		Method:    http.MethodPost,
		Path:      PaymentPagesPath,
		APIKey:    "key_123",
		UserID:    "user-1",
		UserEmail: "user@example.com",
		LiveMode:  "false",
		Query:     "livemode=false",
	}
	if diff := cmp.Diff(want, reqs[0]); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestBackendClient_Poll(t *testing.T) {
	server := backend.NewServer()
	defer server.Close()
	client := NewBackendClient(testConfig(server.URL))
	ctx := context.Background()

	page, err := client.CreatePaymentPage(ctx, breeze.InitiateRequest{ProductID: "sku_1", ProductType: breeze.ProductTypeConsumable, RedirectURL: "myapp://breeze-payment"})
	require.NoError(t, err)

	result, err := client.Poll(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, breeze.TransactionPending, result.Status)

	server.SetStatus(page.ID, "purchased")
	result, err = client.Poll(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, breeze.TransactionPurchased, result.Status)
	require.NotNil(t, result.Transaction)
	assert.Equal(t, "sku_1", result.Transaction.ProductID)
	assert.Equal(t, breeze.ProductTypeConsumable, result.Transaction.ProductType)
	assert.False(t, result.Transaction.PurchaseDate.IsZero())
}

func TestBackendClient_PollErrors(t *testing.T) {
	server := backend.NewServer()
	defer server.Close()
	client := NewBackendClient(testConfig(server.URL))

	_, err := client.Poll(context.Background(), "pp_missing")
	assert.ErrorIs(t, err, breeze.ErrNetwork)

	var pe *breeze.PurchaseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusNotFound, pe.Details["status"])
}

func TestBackendClient_RetriesRateLimit(t *testing.T) {
	server := backend.NewServer()
	defer server.Close()
	client := NewBackendClient(testConfig(server.URL), WithRetryWait(time.Millisecond))

	server.RateLimit(2)
	page, err := client.CreatePaymentPage(context.Background(), breeze.InitiateRequest{ProductID: "sku_1", RedirectURL: "myapp://breeze-payment"})
	require.NoError(t, err)
	assert.Equal(t, "pp_1", page.ID)
	assert.Len(t, server.Requests(), 3)
}

func TestBackendClient_RateLimitExhausted(t *testing.T) {
	server := backend.NewServer()
	defer server.Close()
	client := NewBackendClient(testConfig(server.URL), WithRetryWait(time.Millisecond))

	server.RateLimit(10)
	_, err := client.CreatePaymentPage(context.Background(), breeze.InitiateRequest{ProductID: "sku_1", RedirectURL: "myapp://breeze-payment"})
	assert.ErrorIs(t, err, breeze.ErrNetwork)
	assert.Len(t, server.Requests(), rateLimitRetries+1)
}

func TestBackendClient_Entitlements(t *testing.T) {
	server := backend.NewServer()
	defer server.Close()
	client := NewBackendClient(testConfig(server.URL))
	ctx := context.Background()

	purchased := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	server.AddPage(backend.Page{ID: "pp_a", ProductID: "sku_a", ProductType: "autoRenewable", Status: "purchased", PurchaseDate: purchased})
	server.AddPage(backend.Page{ID: "pp_b", ProductID: "sku_b", ProductType: "consumable", Status: "purchased", PurchaseDate: purchased})
	server.AddPage(backend.Page{ID: "pp_c", ProductID: "sku_c", ProductType: "consumable", Status: "pending"})

	current, err := client.Entitlements(ctx)
	require.NoError(t, err)
	want := []breeze.Entitlement{
		{PaymentPageID: "pp_a", ProductID: "sku_a", ProductType: breeze.ProductTypeAutoRenewable, PurchaseDate: purchased, Quantity: 1, Status: breeze.TransactionPurchased},
		{PaymentPageID: "pp_b", ProductID: "sku_b", ProductType: breeze.ProductTypeConsumable, PurchaseDate: purchased, Quantity: 1, Status: breeze.TransactionPurchased},
	}
	if diff := cmp.Diff(want, current); diff != "" {
		t.Errorf("Entitlements() mismatch (-want +got):\n%s", diff)
	}

	filtered, err := client.Entitlements(ctx, "sku_b")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "pp_b", filtered[0].PaymentPageID)

	reqs := server.Requests()
	assert.Equal(t, CurrentEntitlementsPath, reqs[0].Path)
	assert.Equal(t, EntitlementsPath, reqs[1].Path)
	assert.Contains(t, reqs[1].Query, "productIds=sku_b")
}

func TestBackendClient_Products(t *testing.T) {
	server := backend.NewServer()
	defer server.Close()
	client := NewBackendClient(testConfig(server.URL))

	server.SetProducts([]map[string]interface{}{{
		"id":           "coins_100",
		"displayName":  "100 Coins",
		"description":  "A pile of coins",
		"price":        "0.99",
		"displayPrice": "$0.99",
		"currencyCode": "USD",
		"type":         "consumable",
	}})

	products, err := client.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "coins_100", products[0].ID)
	assert.Equal(t, breeze.ProductTypeConsumable, products[0].Type)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("0.99")))
	assert.Equal(t, "USD", products[0].Currency)
}

func TestBackendClient_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": `))
	}))
	defer server.Close()

	client := NewBackendClient(testConfig(server.URL))
	_, err := client.Poll(context.Background(), "pp_1")
	assert.ErrorIs(t, err, breeze.ErrInvalidResponse)
}

func TestBackendClient_MissingPageFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"paymentPageId": "pp_1"}})
	}))
	defer server.Close()

	client := NewBackendClient(testConfig(server.URL))
	_, err := client.CreatePaymentPage(context.Background(), breeze.InitiateRequest{ProductID: "sku_1"})
	assert.ErrorIs(t, err, breeze.ErrInvalidResponse)
}

func TestBackendClient_ProductionLiveMode(t *testing.T) {
	server := backend.NewServer()
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Environment = breeze.EnvironmentProduction
	cfg.UserEmail = ""
	client := NewBackendClient(cfg)

	_, err := client.Entitlements(context.Background())
	require.NoError(t, err)

	reqs := server.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "true", reqs[0].LiveMode)
	assert.Empty(t, reqs[0].UserEmail)
}
