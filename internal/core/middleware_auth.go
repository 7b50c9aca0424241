package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"clientdesk/internal/types"
)

// AuthMiddleware resolves the bearer token to an Actor and injects it via
// types.WithActor. Failures return 401 with a distinct code:
//
//   - auth_token_missing: no Authorization header or empty Bearer token.
//   - auth_token_invalid: unknown or revoked token, or a non-user Actor.
//   - auth_token_expired: the token exists but has expired.
//
// A nil Authenticator fails closed with auth_token_invalid.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authorization header is required")
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		if s.Authenticator == nil {
			s.Logger.ErrorContext(r.Context(), "no authenticator configured")
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}

		// Billing operations act on the caller's own record, so only user
		// actors are accepted here.
		if actor == nil || actor.Type != types.ActorTypeUser || actor.ID == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), *actor)))
	})
}

// extractBearerToken returns the token of a "Bearer <token>" header, matching
// the scheme case-insensitively per RFC 7235, or "" when malformed.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthTokenExpired:
			s.Logger.WarnContext(r.Context(), "authentication failed: token expired",
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenExpired, "Authentication token has expired")
			return
		case types.ErrCodeAuthTokenInvalid:
			s.Logger.WarnContext(r.Context(), "authentication failed: token invalid",
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}
	}

	// Store failures must not leak; the client just retries.
	s.Logger.ErrorContext(r.Context(), "authentication failed: unexpected error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	JSON(w, r, http.StatusUnauthorized, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	})
}
