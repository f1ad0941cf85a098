package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/David-Byun/wemake/internal/auth"
)

type contextKey string

const UserIDContextKey contextKey = "user_id"

// LoginPath is where unauthenticated requests are sent.
const LoginPath = "/auth/login"

// AuthMiddleware resolves the session token on a request to a profile id.
type AuthMiddleware struct {
	tokens *auth.TokenManager
	logger zerolog.Logger
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(tokens *auth.TokenManager, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, logger: logger}
}

// Identify puts the user id in the request context when a valid token is
// present and lets every request through.
func (m *AuthMiddleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := m.verify(r); ok {
			r = r.WithContext(WithUserID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth redirects requests without a valid session to the login page.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := m.verify(r)
		if !ok {
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
	})
}

func (m *AuthMiddleware) verify(r *http.Request) (uuid.UUID, bool) {
	if id, ok := GetUserIDFromContext(r.Context()); ok {
		return id, true
	}

	token := auth.TokenFromRequest(r)
	if token == "" {
		return uuid.Nil, false
	}

	id, err := m.tokens.Verify(token)
	if err != nil {
		m.logger.Debug().
			Str("type", "security").
			Str("event", "invalid_session").
			Str("ip", RealIP(r)).
			Err(err).
			Msg("rejected session token")
		return uuid.Nil, false
	}
	return id, true
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

type userSlotKey struct{}

// withUserSlot lets the request logger see the user id resolved further down the chain.
func withUserSlot(ctx context.Context, slot *string) context.Context {
	return context.WithValue(ctx, userSlotKey{}, slot)
}

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	if slot, ok := ctx.Value(userSlotKey{}).(*string); ok {
		*slot = id.String()
	}
	return context.WithValue(ctx, UserIDContextKey, id)
}

// GetUserIDFromContext retrieves the authenticated user id from the request context.
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
