package middleware

import (
	"context"
	"net/http"
	"strings"

	"dmchat/internal/user"
)

type contextKey string

const userKey contextKey = "current_user"

// UserResolver is what the middleware needs from the user service.
type UserResolver interface {
	VerifyToken(tokenString string) (int64, error)
	ByID(ctx context.Context, id int64) (*user.User, error)
}

type Auth struct {
	resolver UserResolver
}

func NewAuth(resolver UserResolver) *Auth {
	return &Auth{resolver: resolver}
}

// Resolve looks the current user up once per request and stashes it in the
// context. No token means a nil current user, not a rejection; handlers
// decide what an anonymous caller may do. A token that is present but
// invalid is rejected outright.
func (a *Auth) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := a.resolver.VerifyToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		u, err := a.resolver.ByID(r.Context(), id)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

// RequireUser guards routes that are meaningless without a caller identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r.Context()) == nil {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CurrentUser returns the authenticated user for this request, or nil.
func CurrentUser(ctx context.Context) *user.User {
	u, _ := ctx.Value(userKey).(*user.User)
	return u
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if parts := strings.SplitN(h, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	// Websocket clients cannot set headers; they pass the token in the URL.
	return r.URL.Query().Get("token")
}
