package middleware

import (
	"context"
	"net/http"

	"seafood-storefront/internal/model"
)

type identity interface {
	User(ctx context.Context) (model.User, bool)
}

type contextKey string

const userContextKey contextKey = "session_user"

// RequireSession rejects requests while the agent's session is anonymous.
func RequireSession(id identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := id.User(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UserFromContext(ctx context.Context) (model.User, bool) {
	user, ok := ctx.Value(userContextKey).(model.User)
	return user, ok
}
