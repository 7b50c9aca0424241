package core

import (
	"context"

	"clientdesk/internal/types"
)

// Authenticator decouples the HTTP layer from the session store so the
// middleware can be tested without a database. Implemented by
// db.SessionAuthenticator.
type Authenticator interface {
	// ResolveToken returns the Actor a bearer token was issued to.
	//
	// Distinct error codes:
	// - ErrCodeAuthTokenInvalid if the token is unknown or revoked.
	// - ErrCodeAuthTokenExpired if the token exists but has expired.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// HealthProbe is a subsystem check run by GET /health.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}
