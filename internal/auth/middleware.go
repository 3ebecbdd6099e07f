package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/proeftuin/agrigate/internal/authz"
	"github.com/proeftuin/agrigate/internal/platform/httpx"
	"github.com/proeftuin/agrigate/internal/shared"
)

// TokenVerifier turns a bearer token into an identity.
type TokenVerifier interface {
	ParseAccess(token string) (authz.Identity, error)
}

// RefreshVerifier turns a bearer refresh token into an identity.
type RefreshVerifier interface {
	RefreshIdentity(ctx context.Context, token string) (authz.Identity, error)
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// Verify authenticates every request with an access token and stores the
// resulting identity in the request context.
func Verify(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			identity, err := verifier.ParseAccess(token)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			ctx := authz.ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// VerifyRefresh authenticates a request with a refresh token instead of an
// access token. The per-user role listing is guarded this way.
func VerifyRefresh(verifier RefreshVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			identity, err := verifier.RefreshIdentity(r.Context(), token)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			ctx := authz.ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
