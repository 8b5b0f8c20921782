package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/match-gateway/internal/api"
	"github.com/phrazzld/match-gateway/internal/api/shared"
	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/service/auth"
)

// Authenticator validates a token for the addressed role.
type Authenticator interface {
	Authenticate(ctx context.Context, role domain.Role, roleID, token string) (*auth.Claims, error)
}

// AuthMiddleware guards the /api/{role}/{role_id} routes.
type AuthMiddleware struct {
	accounts Authenticator
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(accounts Authenticator) *AuthMiddleware {
	return &AuthMiddleware{accounts: accounts}
}

// Authenticate checks the bearer token against the {role} and {role_id}
// path parameters and the cached session, then stores the claims in the
// request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := shared.BearerToken(r)
		if err != nil {
			api.HandleAPIError(w, r, domain.UnauthorizedError("token missing"))
			return
		}
		role, err := domain.ParseRole(chi.URLParam(r, "role"))
		if err != nil {
			api.HandleAPIError(w, r, err)
			return
		}
		roleID := chi.URLParam(r, "role_id")
		if roleID == "" {
			api.HandleAPIError(w, r, domain.ClientError("missing role_id"))
			return
		}

		claims, err := m.accounts.Authenticate(r.Context(), role, roleID, token)
		if err != nil {
			api.HandleAPIError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(shared.WithClaims(r.Context(), claims)))
	})
}

// GetClaims extracts the claims from the request context.
func GetClaims(r *http.Request) (*auth.Claims, bool) {
	return shared.ClaimsFrom(r.Context())
}
