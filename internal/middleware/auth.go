package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const ctxCreatorKey contextKey = "creator"

// TokenValidator resolves a bearer token to a creator identity.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

// CreatorAuth validates the Bearer token and puts the creator ID into the
// request context.
func CreatorAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			creatorID, err := v.ValidateToken(r.Context(), raw)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCreator(r.Context(), creatorID)))
		})
	}
}

// CreatorFromCtx returns the authenticated creator.
func CreatorFromCtx(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ctxCreatorKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// WithCreator returns a context carrying the given creator.
func WithCreator(ctx context.Context, creatorID uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxCreatorKey, creatorID)
}

// WebhookAuth guards service-to-service callbacks with a shared secret sent
// in X-Webhook-Secret.
func WebhookAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Webhook-Secret")
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				http.Error(w, `{"error":"invalid webhook secret"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
