package breeze

import (
	"errors"
	"fmt"
)

// Sentinel errors, checkable with errors.Is
var (
	ErrNotConfigured   = errors.New("breeze: not configured")
	ErrInvalidConfig   = errors.New("breeze: invalid config")
	ErrNetwork         = errors.New("breeze: network error")
	ErrBackendDenied   = errors.New("breeze: backend denied transaction")
	ErrInvalidResponse = errors.New("breeze: invalid backend response")
	ErrEngineClosed    = errors.New("breeze: engine closed")

	ErrMalformedToken       = errors.New("malformed token")
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrBadSignature         = errors.New("bad signature")
	ErrBadPayload           = errors.New("bad payload")
)

// Error codes carried by PurchaseError
const (
	ErrCodeNotConfigured   = "not_configured"
	ErrCodeNetwork         = "network_error"
	ErrCodeInvalidResponse = "invalid_response"
	ErrCodeBackendDenied   = "backend_denied"
	ErrCodeBrowser         = "browser_error"
	ErrCodeDuplicateIntent = "duplicate_intent"
	ErrCodeInvalidProduct  = "invalid_product"
)

var codeSentinels = map[string]error{
	ErrCodeNotConfigured:   ErrNotConfigured,
	ErrCodeNetwork:         ErrNetwork,
	ErrCodeInvalidResponse: ErrInvalidResponse,
	ErrCodeBackendDenied:   ErrBackendDenied,
}

// PurchaseError represents a purchase-specific error
type PurchaseError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *PurchaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PurchaseError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel associated with the error code
func (e *PurchaseError) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]
	return ok && sentinel == target
}

// NewPurchaseError creates a new purchase error
func NewPurchaseError(code, message string, details map[string]interface{}) *PurchaseError {
	return &PurchaseError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// VerificationError is returned by TokenVerifier. Reason is one of
// ErrMalformedToken, ErrUnsupportedAlgorithm, ErrBadSignature or ErrBadPayload.
type VerificationError struct {
	Reason error
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token verification failed: %v: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("token verification failed: %v", e.Reason)
}

func (e *VerificationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

func verificationError(reason, err error) *VerificationError {
	return &VerificationError{Reason: reason, Err: err}
}
