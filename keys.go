package breeze

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Trust anchors for notification tokens, one per environment
const (
	productionPublicKeyPEM = `-----BEGIN PUBLIC KEY-----
MFkwEwYHKoZIzj0CAQYIKoZIzj0DAQcDQgAEWTpKi/3N5MB8rSgDh4cXRZaSwJjl
LyP0bdmoqOjab39Be0pCryBm85wa8b9ys5RfUPA+mQKYwg1e1PjRVmVczw==
-----END PUBLIC KEY-----`

	// Sandbox tokens are currently signed with the production key.
	sandboxPublicKeyPEM = productionPublicKeyPEM
)

// TrustAnchor returns the embedded public key for env
func TrustAnchor(env Environment) (*ecdsa.PublicKey, error) {
	var pemData string
	switch env {
	case EnvironmentProduction:
		pemData = productionPublicKeyPEM
	case EnvironmentSandbox:
		pemData = sandboxPublicKeyPEM
	default:
		return nil, fmt.Errorf("%w: unknown environment %q", ErrInvalidConfig, env)
	}

	key, err := jwt.ParseECPublicKeyFromPEM([]byte(pemData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse trust anchor for %s: %w", env, err)
	}
	return key, nil
}
