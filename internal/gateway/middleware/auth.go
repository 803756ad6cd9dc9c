package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/saransh1220/blueprint-notify/internal/shared/utils"
)

type contextKey string

const (
	ContextKeyUserId contextKey = "user_id"
	ContextKeyRole   contextKey = "role"
)

const RoleAdmin = "admin"

type AuthMiddleWare struct {
	jwtSecret string
}

// NewAuthMiddleware creates and returns a new instance of AuthMiddleWare.
// It initializes the middleware with the provided JWT secret key used for token validation.
func NewAuthMiddleware(jwtSecret string) *AuthMiddleWare {
	return &AuthMiddleWare{jwtSecret: jwtSecret}
}

// RequireAuth is a middleware function that enforces authentication on HTTP requests.
// It reads a Bearer token from the Authorization header, falling back to the
// "token" query parameter for WebSocket handshakes where browsers cannot set headers.
// The token's signature and expiry are verified with the stored JWT secret, and the
// authenticated user's ID and role are injected into the request context for
// downstream handlers. Any failure returns a 401 with a JSON error body.
func (m *AuthMiddleWare) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r)
		if tokenStr == "" {
			tokenStr = r.URL.Query().Get("token")
		}

		if tokenStr == "" {
			utils.WriteError(w, http.StatusUnauthorized, "missing or invalid authorization", nil)
			return
		}

		claims, err := utils.ValidateToken(tokenStr, m.jwtSecret)
		if err != nil {
			utils.WriteError(w, http.StatusUnauthorized, "invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyUserId, claims.UserID)
		ctx = context.WithValue(ctx, ContextKeyRole, claims.Role)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects authenticated requests whose role does not match.
// It must run after RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got, _ := RoleFromContext(r.Context()); got != role {
				utils.WriteError(w, http.StatusForbidden, "insufficient role", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextKeyUserId).(string)
	return id, ok && id != ""
}

func RoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(ContextKeyRole).(string)
	return role, ok
}

// WithUser attaches an identity to ctx the same way RequireAuth does.
func WithUser(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyUserId, userID)
	return context.WithValue(ctx, ContextKeyRole, role)
}
