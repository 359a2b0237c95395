package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/tjfontaine/rag-chat-proxy/internal/auth"
	"github.com/tjfontaine/rag-chat-proxy/internal/codec"
	"github.com/tjfontaine/rag-chat-proxy/internal/domain"
)

type apiKeyContextKey struct{}

// AuthMiddleware requires a bearer key matching one of keys. Failures answer
// 401 in the OpenAI error shape. Preflight requests pass through untouched.
func AuthMiddleware(keys *auth.KeySet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			apiKey, err := auth.ExtractAPIKey(r)
			if err == nil {
				var key *auth.Key
				key, err = keys.Validate(apiKey)
				if err == nil {
					AddLogField(r.Context(), "api_key", key.Name)
					ctx := context.WithValue(r.Context(), apiKeyContextKey{}, key)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			msg := "Invalid API key"
			if errors.Is(err, auth.ErrMissingKey) {
				msg = "Missing Authorization header"
			}
			apiErr := domain.ErrAuthentication(msg)
			AddError(r.Context(), apiErr)
			codec.WriteError(w, apiErr)
		})
	}
}

// GetAPIKey returns the key that authenticated the request, or nil.
func GetAPIKey(ctx context.Context) *auth.Key {
	if k, ok := ctx.Value(apiKeyContextKey{}).(*auth.Key); ok {
		return k
	}
	return nil
}
