package breeze

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/xeipuuv/gojsonschema"
)

const supportedAlgorithm = "ES256"

// notificationSchema describes the claim set carried by a notification token
const notificationSchema = `{
	"type": "object",
	"required": ["paymentPageId", "productId", "paymentAmount", "status"],
	"properties": {
		"successPaymentId": {"type": "string"},
		"paymentPageId": {"type": "string", "minLength": 1},
		"productId": {"type": "string", "minLength": 1},
		"paymentAmount": {"type": "string", "minLength": 1},
		"status": {"type": "string", "minLength": 1},
		"productType": {"type": "string"}
	}
}`

var notificationSchemaLoader = gojsonschema.NewStringLoader(notificationSchema)

// TokenVerifier checks compact ES256 notification tokens against a fixed
// public key. It holds no mutable state and is safe for concurrent use.
type TokenVerifier struct {
	key    *ecdsa.PublicKey
	parser *jwt.Parser
}

// NewTokenVerifier creates a verifier for a P-256 public key
func NewTokenVerifier(key *ecdsa.PublicKey) (*TokenVerifier, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: trust anchor is required", ErrInvalidConfig)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: trust anchor must be a P-256 key", ErrInvalidConfig)
	}
	return &TokenVerifier{
		key:    key,
		parser: jwt.NewParser(jwt.WithPaddingAllowed()),
	}, nil
}

// NewTokenVerifierForEnvironment creates a verifier using the embedded trust
// anchor of env
func NewTokenVerifierForEnvironment(env Environment) (*TokenVerifier, error) {
	key, err := TrustAnchor(env)
	if err != nil {
		return nil, err
	}
	return NewTokenVerifier(key)
}

type tokenHeader struct {
	Alg string `json:"alg"`
}

type tokenClaims struct {
	SuccessPaymentID string `json:"successPaymentId"`
	PaymentPageID    string `json:"paymentPageId"`
	ProductID        string `json:"productId"`
	ProductType      string `json:"productType"`
	PaymentAmount    string `json:"paymentAmount"`
	Status           string `json:"status"`
}

// Verify checks token and returns its claims. Any failure is a
// *VerificationError; nothing from an unverified token is returned.
func (v *TokenVerifier) Verify(token string) (*SignedNotification, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, verificationError(ErrMalformedToken, fmt.Errorf("expected 3 segments, got %d", len(parts)))
	}
	for _, part := range parts {
		if part == "" {
			return nil, verificationError(ErrMalformedToken, errors.New("empty segment"))
		}
	}

	headerBytes, err := v.parser.DecodeSegment(parts[0])
	if err != nil {
		return nil, verificationError(ErrUnsupportedAlgorithm, fmt.Errorf("header: %w", err))
	}
	var header tokenHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, verificationError(ErrUnsupportedAlgorithm, fmt.Errorf("header: %w", err))
	}
	if header.Alg != supportedAlgorithm {
		return nil, verificationError(ErrUnsupportedAlgorithm, fmt.Errorf("alg %q", header.Alg))
	}

	signature, err := v.parser.DecodeSegment(parts[2])
	if err != nil {
		return nil, verificationError(ErrBadSignature, err)
	}
	if len(signature) != 64 {
		return nil, verificationError(ErrBadSignature, fmt.Errorf("signature is %d bytes, want 64", len(signature)))
	}

	// Signing input is verified exactly as transmitted.
	signingInput := parts[0] + "." + parts[1]
	if err := jwt.SigningMethodES256.Verify(signingInput, signature, v.key); err != nil {
		return nil, verificationError(ErrBadSignature, err)
	}

	return v.decodeClaims(parts[1])
}

func (v *TokenVerifier) decodeClaims(segment string) (*SignedNotification, error) {
	payload, err := v.parser.DecodeSegment(segment)
	if err != nil {
		return nil, verificationError(ErrBadPayload, err)
	}

	result, err := gojsonschema.Validate(notificationSchemaLoader, gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return nil, verificationError(ErrBadPayload, err)
	}
	if !result.Valid() {
		descs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descs = append(descs, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
		}
		return nil, verificationError(ErrBadPayload, errors.New(strings.Join(descs, "; ")))
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, verificationError(ErrBadPayload, err)
	}
	amount, err := decimal.NewFromString(claims.PaymentAmount)
	if err != nil {
		return nil, verificationError(ErrBadPayload, fmt.Errorf("paymentAmount: %w", err))
	}

	return &SignedNotification{
		SuccessPaymentID: claims.SuccessPaymentID,
		PaymentPageID:    claims.PaymentPageID,
		ProductID:        claims.ProductID,
		ProductType:      ParseProductType(claims.ProductType),
		PaymentAmount:    amount,
		Status:           claims.Status,
	}, nil
}
