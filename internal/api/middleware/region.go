package middleware

import (
	"net/http"
	"strings"

	"github.com/phrazzld/match-gateway/internal/api/shared"
)

// CurrentRegion copies the current_region header into the request context.
func CurrentRegion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		region := strings.TrimSpace(r.Header.Get(shared.CurrentRegionHeader))
		if region == "" {
			region = strings.TrimSpace(r.Header.Get("Current-Region"))
		}
		if region != "" {
			r = r.WithContext(shared.WithCurrentRegion(r.Context(), strings.ToLower(region)))
		}
		next.ServeHTTP(w, r)
	})
}
