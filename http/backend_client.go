package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	breeze "github.com/beamo-co/breeze-go"
)

// ============================================================================
// HTTP Backend Client
// ============================================================================

// Backend base URLs
const (
	ProductionBaseURL = "https://api.breeze.cash"
	SandboxBaseURL    = "https://api.qa.breeze.cash"
)

// Request headers
const (
	HeaderAPIKey    = "x-api-key"
	HeaderUserID    = "x-user-unique-id"
	HeaderUserEmail = "x-user-email"
)

// Endpoint paths
const (
	PaymentPagesPath        = "/iap/client/payment_pages"
	TransactionPath         = "/iap/client/transactions/{id}"
	EntitlementsPath        = "/iap/client/entitlements"
	CurrentEntitlementsPath = "/iap/client/entitlements/current"
	ProductsPath            = "/iap/client/products"
)

// rateLimitRetries is the number of retries on 429 responses
const rateLimitRetries = 2

// rateLimitRetryBaseDelay is the base delay for exponential backoff on retries
const rateLimitRetryBaseDelay = 1 * time.Second

// BackendClient talks to the Breeze backend. It implements
// breeze.PurchaseInitiator, breeze.BackendPoller, breeze.EntitlementSource and
// breeze.CatalogSource.
type BackendClient struct {
	client *resty.Client
}

type backendOptions struct {
	httpClient *http.Client
	retryWait  time.Duration
}

// BackendOption configures a BackendClient
type BackendOption func(*backendOptions)

// WithHTTPClient uses hc as the transport
func WithHTTPClient(hc *http.Client) BackendOption {
	return func(o *backendOptions) {
		o.httpClient = hc
	}
}

// WithRetryWait sets the base backoff used when the backend rate limits
func WithRetryWait(base time.Duration) BackendOption {
	return func(o *backendOptions) {
		o.retryWait = base
	}
}

// BaseURLFor returns the backend URL of env
func BaseURLFor(env breeze.Environment) string {
	if env == breeze.EnvironmentSandbox {
		return SandboxBaseURL
	}
	return ProductionBaseURL
}

// NewBackendClient creates a client for cfg
func NewBackendClient(cfg *breeze.Config, opts ...BackendOption) *BackendClient {
	o := backendOptions{retryWait: rateLimitRetryBaseDelay}
	for _, opt := range opts {
		opt(&o)
	}

	client := resty.New()
	if o.httpClient != nil {
		client = resty.NewWithClient(o.httpClient)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURLFor(cfg.Environment)
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = breeze.DefaultRequestTimeout
	}

	client.
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader(HeaderAPIKey, cfg.APIKey).
		SetQueryParam("livemode", fmt.Sprintf("%t", cfg.Environment.LiveMode())).
		SetRetryCount(rateLimitRetries).
		SetRetryWaitTime(o.retryWait).
		SetRetryMaxWaitTime(o.retryWait * 4).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() == http.StatusTooManyRequests
		})
	if cfg.UserID != "" {
		client.SetHeader(HeaderUserID, cfg.UserID)
	}
	if cfg.UserEmail != "" {
		client.SetHeader(HeaderUserEmail, cfg.UserEmail)
	}
	return &BackendClient{client: client}
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type paymentPageRequest struct {
	ProductID         string `json:"productId"`
	ProductType       string `json:"productType"`
	Quantity          int    `json:"quantity"`
	RedirectURL       string `json:"redirectUrl"`
	ClientReferenceID string `json:"clientReferenceId"`
}

type paymentPageResponse struct {
	PaymentPageID  string `json:"paymentPageId"`
	PaymentPageURL string `json:"paymentPageUrl"`
}

type transactionResponse struct {
	ID                   string  `json:"id"`
	ProductID            string  `json:"productId"`
	ProductType          string  `json:"productType"`
	PurchaseDate         string  `json:"purchaseDate"`
	OriginalPurchaseDate string  `json:"originalPurchaseDate,omitempty"`
	ExpirationDate       *string `json:"expirationDate,omitempty"`
	Quantity             int     `json:"quantity"`
	Status               string  `json:"status"`
}

type entitlementResponse struct {
	PaymentPageID string `json:"paymentPageId"`
	ProductID     string `json:"productId"`
	ProductType   string `json:"productType"`
	PurchaseDate  string `json:"purchaseDate"`
	Quantity      int    `json:"quantity"`
	Status        string `json:"status"`
}

type entitlementsResponse struct {
	Entitlements []entitlementResponse `json:"entitlements"`
}

type productResponse struct {
	ID           string          `json:"id"`
	DisplayName  string          `json:"displayName"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	DisplayPrice string          `json:"displayPrice"`
	CurrencyCode string          `json:"currencyCode"`
	Type         string          `json:"type"`
}

type productsResponse struct {
	Products []productResponse `json:"products"`
}

// CreatePaymentPage creates a hosted payment page
func (c *BackendClient) CreatePaymentPage(ctx context.Context, req breeze.InitiateRequest) (*breeze.PaymentPage, error) {
	var out envelope[paymentPageResponse]
	err := c.do(ctx, http.MethodPost, PaymentPagesPath, func(r *resty.Request) {
		r.SetBody(paymentPageRequest{
			ProductID:         req.ProductID,
			ProductType:       breeze.FormatProductType(req.ProductType),
			Quantity:          req.Quantity,
			RedirectURL:       req.RedirectURL,
			ClientReferenceID: req.ClientReferenceID,
		})
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Data.PaymentPageID == "" || out.Data.PaymentPageURL == "" {
		return nil, breeze.NewPurchaseError(breeze.ErrCodeInvalidResponse, "payment page response is missing id or url", nil)
	}
	return &breeze.PaymentPage{ID: out.Data.PaymentPageID, URL: out.Data.PaymentPageURL}, nil
}

// Poll fetches the transaction for a payment page
func (c *BackendClient) Poll(ctx context.Context, id string) (*breeze.PollResult, error) {
	var out envelope[transactionResponse]
	err := c.do(ctx, http.MethodGet, TransactionPath, func(r *resty.Request) {
		r.SetPathParam("id", id)
	}, &out)
	if err != nil {
		return nil, err
	}

	tx, err := out.Data.toTransaction()
	if err != nil {
		return nil, breeze.NewPurchaseError(breeze.ErrCodeInvalidResponse, err.Error(), map[string]interface{}{"id": id})
	}
	if tx.ID == "" {
		tx.ID = id
	}
	return &breeze.PollResult{ID: id, Status: tx.Status, Transaction: tx}, nil
}

// Entitlements lists current entitlements, or all entitlements for productIDs
func (c *BackendClient) Entitlements(ctx context.Context, productIDs ...string) ([]breeze.Entitlement, error) {
	path := CurrentEntitlementsPath
	var query map[string]string
	if len(productIDs) > 0 {
		path = EntitlementsPath
		query = map[string]string{"productIds": strings.Join(productIDs, ",")}
	}

	var out envelope[entitlementsResponse]
	err := c.do(ctx, http.MethodGet, path, func(r *resty.Request) {
		r.SetQueryParams(query)
	}, &out)
	if err != nil {
		return nil, err
	}

	list := make([]breeze.Entitlement, 0, len(out.Data.Entitlements))
	for _, e := range out.Data.Entitlements {
		purchased, err := parseTime(e.PurchaseDate)
		if err != nil {
			return nil, breeze.NewPurchaseError(breeze.ErrCodeInvalidResponse,
				fmt.Sprintf("entitlement %s: %v", e.PaymentPageID, err), nil)
		}
		list = append(list, breeze.Entitlement{
			PaymentPageID: e.PaymentPageID,
			ProductID:     e.ProductID,
			ProductType:   breeze.ParseProductType(e.ProductType),
			PurchaseDate:  purchased,
			Quantity:      e.Quantity,
			Status:        breeze.TransactionStatus(strings.ToLower(e.Status)),
		})
	}
	return list, nil
}

// Products lists the catalog
func (c *BackendClient) Products(ctx context.Context, productIDs ...string) ([]breeze.Product, error) {
	var out envelope[productsResponse]
	err := c.do(ctx, http.MethodGet, ProductsPath, func(r *resty.Request) {
		if len(productIDs) > 0 {
			r.SetQueryParam("productIds", strings.Join(productIDs, ","))
		}
	}, &out)
	if err != nil {
		return nil, err
	}

	products := make([]breeze.Product, 0, len(out.Data.Products))
	for _, p := range out.Data.Products {
		products = append(products, breeze.Product{
			ID:           p.ID,
			Type:         breeze.ParseProductType(p.Type),
			DisplayName:  p.DisplayName,
			Description:  p.Description,
			Price:        p.Price,
			Currency:     p.CurrencyCode,
			DisplayPrice: p.DisplayPrice,
		})
	}
	return products, nil
}

// do sends a request and decodes a 2xx body into out
func (c *BackendClient) do(ctx context.Context, method, path string, build func(*resty.Request), out interface{}) error {
	req := c.client.R().SetContext(ctx)
	if build != nil {
		build(req)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return &breeze.PurchaseError{
			Code:    breeze.ErrCodeNetwork,
			Message: fmt.Sprintf("%s %s failed", method, path),
			Err:     err,
		}
	}
	if resp.IsError() {
		return &breeze.PurchaseError{
			Code:    breeze.ErrCodeNetwork,
			Message: fmt.Sprintf("%s %s failed (%d): %s", method, path, resp.StatusCode(), truncate(resp.String(), 256)),
			Details: map[string]interface{}{"status": resp.StatusCode()},
		}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &breeze.PurchaseError{
			Code:    breeze.ErrCodeInvalidResponse,
			Message: fmt.Sprintf("failed to decode %s response", path),
			Err:     err,
		}
	}
	return nil
}

func (t transactionResponse) toTransaction() (*breeze.Transaction, error) {
	tx := &breeze.Transaction{
		ID:          t.ID,
		ProductID:   t.ProductID,
		ProductType: breeze.ParseProductType(t.ProductType),
		Quantity:    t.Quantity,
		Status:      breeze.TransactionStatus(strings.ToLower(t.Status)),
	}
	var err error
	if t.PurchaseDate != "" {
		if tx.PurchaseDate, err = parseTime(t.PurchaseDate); err != nil {
			return nil, err
		}
	}
	if t.OriginalPurchaseDate != "" {
		if tx.OriginalPurchaseDate, err = parseTime(t.OriginalPurchaseDate); err != nil {
			return nil, err
		}
	}
	if t.ExpirationDate != nil && *t.ExpirationDate != "" {
		exp, err := parseTime(*t.ExpirationDate)
		if err != nil {
			return nil, err
		}
		tx.ExpirationDate = &exp
	}
	return tx, nil
}

func parseTime(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return ts, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Ensure BackendClient implements the engine collaborators
var (
	_ breeze.PurchaseInitiator = (*BackendClient)(nil)
	_ breeze.BackendPoller     = (*BackendClient)(nil)
	_ breeze.EntitlementSource = (*BackendClient)(nil)
	_ breeze.CatalogSource     = (*BackendClient)(nil)
)
