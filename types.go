package breeze

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductType classifies a sellable product
type ProductType string

const (
	ProductTypeConsumable    ProductType = "consumable"
	ProductTypeNonConsumable ProductType = "non_consumable"
	ProductTypeAutoRenewable ProductType = "auto_renewable"
	ProductTypeNonRenewable  ProductType = "non_renewable"
)

// Valid reports whether t is one of the known product types
func (t ProductType) Valid() bool {
	switch t {
	case ProductTypeConsumable, ProductTypeNonConsumable, ProductTypeAutoRenewable, ProductTypeNonRenewable:
		return true
	}
	return false
}

// IntentStatus is the reconciliation state of a purchase intent
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentConfirmed IntentStatus = "confirmed"
	IntentFailed    IntentStatus = "failed"
	IntentExpired   IntentStatus = "expired"
)

// TransactionStatus is the status the backend reports for a transaction
type TransactionStatus string

const (
	TransactionPurchased TransactionStatus = "purchased"
	TransactionPending   TransactionStatus = "pending"
	TransactionFailed    TransactionStatus = "failed"
	TransactionExpired   TransactionStatus = "expired"
	TransactionRefunded  TransactionStatus = "refunded"
)

// Final reports whether the status ends reconciliation for an intent
func (s TransactionStatus) Final() bool {
	return s != TransactionPending && s != ""
}

// Source identifies which path confirmed a transaction
type Source string

const (
	SourceNotification    Source = "notification"
	SourcePoll            Source = "poll"
	SourceNative          Source = "native"
	SourceEntitlementSync Source = "entitlement_sync"
)

// PurchaseIntent is a purchase the application has started but whose outcome
// is not known yet. ID is the backend payment page id.
type PurchaseIntent struct {
	ID          string       `json:"id"`
	ProductID   string       `json:"productId"`
	ProductType ProductType  `json:"productType"`
	PaymentURL  string       `json:"paymentUrl"`
	CreatedAt   time.Time    `json:"createdAt"`
	Status      IntentStatus `json:"status"`
	Delivered   bool         `json:"delivered"`
	ConfirmedAt time.Time    `json:"confirmedAt,omitempty"`
}

// confirm marks the intent paid. The first confirmation time is kept.
func (p *PurchaseIntent) confirm(at time.Time) {
	p.Status = IntentConfirmed
	if p.ConfirmedAt.IsZero() {
		p.ConfirmedAt = at
	}
}

// retainedSince is the time delivered-intent retention is measured from
func (p *PurchaseIntent) retainedSince() time.Time {
	if p.ConfirmedAt.IsZero() {
		return p.CreatedAt
	}
	return p.ConfirmedAt
}

// SignedNotification is the verified payload of a deep-link token.
// Values of this type are only produced by TokenVerifier.
type SignedNotification struct {
	SuccessPaymentID string          `json:"successPaymentId,omitempty"`
	PaymentPageID    string          `json:"paymentPageId"`
	ProductID        string          `json:"productId"`
	ProductType      ProductType     `json:"productType,omitempty"`
	PaymentAmount    decimal.Decimal `json:"paymentAmount"`
	Status           string          `json:"status"`
}

// Transaction is a purchase record as reported by the backend or the native store
type Transaction struct {
	ID                   string            `json:"id"`
	ProductID            string            `json:"productId"`
	ProductType          ProductType       `json:"productType"`
	PurchaseDate         time.Time         `json:"purchaseDate"`
	OriginalPurchaseDate time.Time         `json:"originalPurchaseDate,omitempty"`
	ExpirationDate       *time.Time        `json:"expirationDate,omitempty"`
	Quantity             int               `json:"quantity"`
	Status               TransactionStatus `json:"status"`
}

// PollResult is the answer of a BackendPoller for one intent
type PollResult struct {
	ID          string            `json:"id"`
	Status      TransactionStatus `json:"status"`
	Transaction *Transaction      `json:"transaction,omitempty"`
}

// CompletedTransaction is what the application receives when a purchase is
// confirmed. It is delivered at most once per ID.
type CompletedTransaction struct {
	ID               string            `json:"id"`
	ProductID        string            `json:"productId"`
	ProductType      ProductType       `json:"productType"`
	Status           TransactionStatus `json:"status"`
	Source           Source            `json:"source"`
	ConfirmedAt      time.Time         `json:"confirmedAt"`
	Amount           *decimal.Decimal  `json:"amount,omitempty"`
	SuccessPaymentID string            `json:"successPaymentId,omitempty"`
	Transaction      *Transaction      `json:"transaction,omitempty"`
}

// PaymentPage is returned by a PurchaseInitiator
type PaymentPage struct {
	ID  string `json:"paymentPageId"`
	URL string `json:"paymentPageUrl"`
}

// InitiateRequest describes the payment page to create
type InitiateRequest struct {
	ProductID         string      `json:"productId"`
	ProductType       ProductType `json:"productType"`
	Quantity          int         `json:"quantity"`
	RedirectURL       string      `json:"redirectUrl"`
	ClientReferenceID string      `json:"clientReferenceId"`
}

// Entitlement is an active purchase the user owns
type Entitlement struct {
	PaymentPageID string            `json:"paymentPageId"`
	ProductID     string            `json:"productId"`
	ProductType   ProductType       `json:"productType"`
	PurchaseDate  time.Time         `json:"purchaseDate"`
	Quantity      int               `json:"quantity"`
	Status        TransactionStatus `json:"status"`
}

// Product is a catalog entry
type Product struct {
	ID           string          `json:"id"`
	Type         ProductType     `json:"type"`
	DisplayName  string          `json:"displayName"`
	Description  string          `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	DisplayPrice string          `json:"displayPrice,omitempty"`
}
