package api

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/match-gateway/internal/api/shared"
	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/service/startracker"
)

// pathRole parses the {role} and {role_id} path parameters.
func pathRole(r *http.Request) (domain.Role, string, error) {
	role, err := domain.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		return "", "", err
	}
	roleID := strings.TrimSpace(chi.URLParam(r, "role_id"))
	if roleID == "" {
		return "", "", domain.ClientError("missing role_id")
	}
	return role, roleID, nil
}

// actorFromRequest returns the authenticated actor. The auth middleware
// has already checked that the claims match the path.
func actorFromRequest(r *http.Request) (startracker.Actor, error) {
	claims, ok := shared.ClaimsFrom(r.Context())
	if !ok {
		return startracker.Actor{}, domain.UnauthorizedError("token missing")
	}
	return startracker.Actor{Role: claims.Role, RoleID: claims.RoleID, Region: claims.Region}, nil
}

// requestRegion returns the region named by the body, falling back to the
// current_region header.
func requestRegion(r *http.Request, fromBody string) (string, error) {
	if region := strings.TrimSpace(fromBody); region != "" {
		return region, nil
	}
	if region := shared.CurrentRegion(r.Context()); region != "" {
		return region, nil
	}
	return "", domain.ClientError("missing " + shared.CurrentRegionHeader)
}

func bearerToken(r *http.Request) (string, error) {
	token, err := shared.BearerToken(r)
	if err != nil {
		return "", domain.UnauthorizedError("token missing")
	}
	return token, nil
}

// isJSONObject reports whether body, already known to be valid JSON, is an
// object.
func isJSONObject(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
