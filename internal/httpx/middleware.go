package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/cravier/sweetshop/internal/auth"
	"github.com/cravier/sweetshop/internal/users"
)

type ctxKey int

const userKey ctxKey = 0

// UserFrom returns the authenticated user, or nil outside protected routes.
func UserFrom(ctx context.Context) *users.User {
	u, _ := ctx.Value(userKey).(*users.User)
	return u
}

// Authenticator resolves the bearer token to a user and stores it on the
// request context. Requests without a valid token are rejected.
func Authenticator(tokens *auth.Tokens, repo users.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "missing token")
				return
			}
			userID, err := tokens.Verify(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			u, err := repo.GetByID(r.Context(), userID)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unknown user")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
		})
	}
}

// RequireAdmin gates catalog mutation and global order visibility.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFrom(r.Context())
		if u == nil || !u.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
