// Package identity verifies bearer tokens issued by the external identity provider.
// The provider's subject becomes the user's external id; nothing else is trusted.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/francozeta/musicbox/internal/config"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// Principal is the verified caller.
type Principal struct {
	ID    string
	Email string
}

// Verifier turns a raw bearer token into a Principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// NewVerifier builds the verifier selected by AUTH_PROVIDER.
func NewVerifier(ctx context.Context, cfg *config.Config) (Verifier, error) {
	switch cfg.AuthProvider {
	case config.AuthProviderFirebase:
		return NewFirebaseVerifier(ctx, cfg.FirebaseCredentialsFile)
	case config.AuthProviderJWT, "":
		return NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience), nil
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.AuthProvider)
	}
}
