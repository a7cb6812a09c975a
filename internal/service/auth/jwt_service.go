// Package auth issues and validates the bearer tokens that protect the
// batch API when authentication is enabled.
package auth

import (
	"context"
	"time"
)

// ScopeAPI is the scope carried by tokens that may call the batch API.
const ScopeAPI = "api"

// JWTService defines operations for managing API tokens.
type JWTService interface {
	// GenerateToken creates a signed token for subject, valid for the
	// configured lifetime.
	GenerateToken(ctx context.Context, subject string) (string, error)

	// ValidateToken validates the provided token string and extracts the claims.
	// Returns an error if validation fails (expired, invalid signature, wrong scope).
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims are the validated contents of an API token.
type Claims struct {
	// Subject names the operator or tool the token was issued to.
	Subject string `json:"sub,omitempty"`

	// Scope restricts what the token may be used for.
	Scope string `json:"scope,omitempty"`

	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
