package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKeyType string

const (
	steamIDKey     contextKeyType = "steam_id"
	storeTokenKey  contextKeyType = "store_token"
	bearerTokenKey contextKeyType = "bearer_token"
)

// UserClaims are the session token claims issued by the auth gateway. The
// store token is the opaque credential forwarded to the payment provider.
type UserClaims struct {
	SteamID    string `json:"steam_id"`
	StoreToken string `json:"store_token"`
	jwt.RegisteredClaims
}

// Auth validates the bearer session token and injects the steam id and
// store token into the request context. Token issuance happens elsewhere;
// this middleware only consumes.
func Auth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeAuthError(w, "invalid authorization header format")
				return
			}

			claims := &UserClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				writeAuthError(w, "invalid or expired token")
				return
			}
			if claims.SteamID == "" {
				writeAuthError(w, "token has no steam id")
				return
			}

			ctx := context.WithValue(r.Context(), steamIDKey, claims.SteamID)
			ctx = context.WithValue(ctx, storeTokenKey, claims.StoreToken)
			ctx = context.WithValue(ctx, bearerTokenKey, parts[1])
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SteamIDFromContext extracts the authenticated steam id from the context.
func SteamIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(steamIDKey).(string); ok {
		return id
	}
	return ""
}

// StoreTokenFromContext extracts the payment provider store token.
func StoreTokenFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(storeTokenKey).(string); ok {
		return t
	}
	return ""
}

// BearerTokenFromContext extracts the raw session token, forwarded to
// internal APIs that validate it themselves.
func BearerTokenFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(bearerTokenKey).(string); ok {
		return t
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    "UNAUTHORIZED",
		"message": message,
	})
}
