package auth

import (
	"context"
	"net/http"

	"github.com/clerk/clerk-sdk-go/v2"
	clerkhttp "github.com/clerk/clerk-sdk-go/v2/http"
	"github.com/rs/zerolog"
)

type ctxKey struct{}

// WithUserID returns a context carrying an already-authenticated Clerk user id.
// Used by trusted internal callers and tests.
func WithUserID(ctx context.Context, clerkID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, clerkID)
}

// UserID returns the Clerk user id of the caller, or "" when the request is
// anonymous.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	if claims, ok := clerk.SessionClaimsFromContext(ctx); ok && claims != nil {
		return claims.Subject
	}
	return ""
}

// Middleware verifies Clerk session tokens sent as "Authorization: Bearer <jwt>".
// Requests without a token pass through anonymously; handlers that need a user
// answer 401 themselves. With an empty secret key no verification is set up
// and every request is anonymous.
func Middleware(secretKey string, log zerolog.Logger) func(http.Handler) http.Handler {
	if secretKey == "" {
		log.Warn().Msg("CLERK_SECRET_KEY not set, all requests are anonymous")
		return func(next http.Handler) http.Handler { return next }
	}
	clerk.SetKey(secretKey)
	return clerkhttp.WithHeaderAuthorization(
		clerkhttp.AuthorizationFailureHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Unauthorized"}`))
		})),
	)
}
