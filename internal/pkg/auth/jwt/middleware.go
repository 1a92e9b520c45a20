package jwt

import (
	"context"
	"net/http"
	"strings"

	"vcall/internal/pkg/logx"
)

type contextKey string

const (
	// ContextAuthPayloadKey is the key used to store the parsed Payload in the request Context.
	ContextAuthPayloadKey contextKey = "auth_payload"

	// QueryTokenKey is the query parameter carrying the token on WebSocket upgrades,
	// where browsers cannot set an Authorization header.
	QueryTokenKey = "token"
)

// IdentityExtractorMiddleware extracts and validates a Bearer token and injects its Payload into
// the Context. A missing or invalid token does not interrupt the request; the caller is anonymous.
func IdentityExtractorMiddleware(secretKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}

			payload, err := ParseToken(tokenString, secretKey)
			if err != nil {
				logx.Warn("Invalid or expired JWT provided, treating as anonymous", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextAuthPayloadKey, payload)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromQuery validates the token passed in the QueryTokenKey query parameter.
func FromQuery(r *http.Request, secretKey string) (*Payload, error) {
	return ParseToken(r.URL.Query().Get(QueryTokenKey), secretKey)
}

// GetPayloadFromContext extracts the Payload stored by IdentityExtractorMiddleware.
// A nil return means the caller is anonymous.
func GetPayloadFromContext(r *http.Request) *Payload {
	payload, ok := r.Context().Value(ContextAuthPayloadKey).(*Payload)
	if !ok {
		return nil
	}

	return payload
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
