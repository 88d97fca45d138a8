// Package middleware provides HTTP middleware for the Quietwire API.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/quietwire/quietwire/internal/api/auth"
	"github.com/quietwire/quietwire/internal/logger"
	"github.com/quietwire/quietwire/pkg/relay/store"
)

// Context key type for storing the authenticated identity
type contextKey string

const identityContextKey contextKey = "identity"

// Identity is the verified (user, device) pair attached to authenticated
// requests.
type Identity struct {
	UserID   string
	DeviceID string
}

// GetIdentity retrieves the authenticated identity from the request
// context. Returns nil on routes without the BearerAuth middleware.
func GetIdentity(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return id
}

// extractBearerToken extracts the token from a Bearer Authorization header.
// Any other header shape is treated identically to a missing header.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return parts[1], true
}

// writeAuthFailed renders the generic authentication failure body. Every
// failure path through this package produces this exact response so callers
// cannot distinguish missing tokens from revoked devices.
func writeAuthFailed(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}{Success: false, Error: "Authentication failed"})
}

// BearerAuth validates Bearer session tokens and re-checks that the token's
// device row still exists. A device deleted by a newer login invalidates
// all tokens minted for it, which is how remote logout works without a
// token blacklist.
func BearerAuth(tokens *auth.TokenService, devices store.DeviceStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				writeAuthFailed(w)
				return
			}

			claims, err := tokens.ValidateToken(tokenString)
			if err != nil {
				writeAuthFailed(w)
				return
			}

			if _, err := devices.GetDevice(r.Context(), claims.UserID, claims.DeviceID); err != nil {
				writeAuthFailed(w)
				return
			}

			// Opportunistic last-seen update; never blocks the request.
			go func(userID, deviceID string) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := devices.TouchDevice(ctx, userID, deviceID, time.Now()); err != nil {
					logger.Debug("failed to update device last seen", "error", err)
				}
			}(claims.UserID, claims.DeviceID)

			identity := &Identity{UserID: claims.UserID, DeviceID: claims.DeviceID}
			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			ctx = logger.WithContext(ctx, &logger.LogContext{
				UserID:   identity.UserID,
				DeviceID: identity.DeviceID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
