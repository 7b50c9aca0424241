package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"clientdesk/internal/types"
)

// SessionAuthenticator resolves bearer tokens issued by the login service.
// Only the SHA-256 of a token is stored, so a leaked sessions table cannot
// be replayed.
type SessionAuthenticator struct {
	db     DBTX
	now    func() time.Time
	logger *slog.Logger
}

// NewSessionAuthenticator creates a SessionAuthenticator. A nil clock
// defaults to time.Now.
func NewSessionAuthenticator(db DBTX, clock func() time.Time, logger *slog.Logger) *SessionAuthenticator {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionAuthenticator{db: db, now: clock, logger: logger}
}

// HashToken produces the hex-encoded SHA-256 of a raw token, the form the
// sessions table is keyed by.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// ResolveToken maps a raw bearer token to the user Actor it was issued to.
// Unknown, revoked and deleted-user tokens are invalid; a known token past
// its expiry is reported as expired so clients can re-authenticate.
func (a *SessionAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	var (
		userID    string
		expiresAt time.Time
		revokedAt *time.Time
	)
	err := a.db.QueryRow(ctx,
		`SELECT s.user_id, s.expires_at, s.revoked_at
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.token_hash = $1 AND u.deleted_at IS NULL`,
		HashToken(token),
	).Scan(&userID, &expiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "unknown session token", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to resolve session", err)
	}

	if revokedAt != nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session revoked", nil)
	}
	if !a.now().Before(expiresAt) {
		a.logger.InfoContext(ctx, "session expired",
			"user_id", userID,
			"expired_at", expiresAt,
		)
		return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "session has expired", nil)
	}

	return &types.Actor{ID: userID, Type: types.ActorTypeUser}, nil
}
