package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/royletron/scimit/internal/repository"
	"github.com/royletron/scimit/internal/scim"
)

// touchTimeout bounds the async last-used update so a stuck write cannot
// leak goroutines.
const touchTimeout = 5 * time.Second

// BearerAuthConfig holds configuration for the bearer auth middleware.
type BearerAuthConfig struct {
	Logger     *slog.Logger
	Repository *repository.Repository
}

// BearerAuth returns a middleware that authenticates SCIM requests against
// the active bearer token. Only the "Authorization: Bearer <token>" scheme
// is accepted; all failures get the same SCIM 401 envelope so a caller
// cannot distinguish a missing token from a revoked one.
func BearerAuth(cfg BearerAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "missing_token"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			stored, err := cfg.Repository.ValidateToken(r.Context(), token)
			if err != nil {
				reason := "invalid_token"
				if !errors.Is(err, repository.ErrTokenInvalid) {
					reason = "store_error"
					cfg.Logger.Error("token lookup failed",
						slog.String("error", err.Error()),
						slog.String("request_id", GetRequestID(r.Context())),
					)
				}
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			// Update last_used_at asynchronously; the request does not wait.
			go func(id int64) {
				ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
				defer cancel()
				_ = cfg.Repository.TouchToken(ctx, id)
			}(stored.ID)

			next.ServeHTTP(w, r)
		})
	}
}

// extractBearerToken extracts the token from the Authorization header.
// Schemes other than Bearer are rejected.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// writeAuthError writes a 401 Unauthorized SCIM error envelope.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/scim+json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(scim.NewError(http.StatusUnauthorized, "Authentication failed: invalid or missing bearer token", ""))
}
