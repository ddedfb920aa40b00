package breeze

import "context"

// PurchaseInitiator creates a hosted payment page for a product
type PurchaseInitiator interface {
	CreatePaymentPage(ctx context.Context, req InitiateRequest) (*PaymentPage, error)
}

// BackendPoller asks the backend for the current status of a payment page.
// Implementations must respect ctx cancellation.
type BackendPoller interface {
	Poll(ctx context.Context, id string) (*PollResult, error)
}

// BrowserOpener presents the payment page to the user
type BrowserOpener interface {
	OpenURL(ctx context.Context, url string) error
}

// BrowserOpenerFunc adapts a function to BrowserOpener
type BrowserOpenerFunc func(ctx context.Context, url string) error

func (f BrowserOpenerFunc) OpenURL(ctx context.Context, url string) error {
	return f(ctx, url)
}

// EntitlementSource lists what the user currently owns.
// With no product ids it returns the current entitlements.
type EntitlementSource interface {
	Entitlements(ctx context.Context, productIDs ...string) ([]Entitlement, error)
}

// CatalogSource lists products available for sale
type CatalogSource interface {
	Products(ctx context.Context, productIDs ...string) ([]Product, error)
}

// DeliveryLedger records delivered transactions outside the engine so the same
// transaction is not delivered twice across paths or process restarts.
// MarkDelivered returns true when tx.ID was not recorded before.
type DeliveryLedger interface {
	MarkDelivered(ctx context.Context, tx CompletedTransaction) (bool, error)
}

// PurchaseHandler receives confirmed purchases
type PurchaseHandler func(tx CompletedTransaction)
