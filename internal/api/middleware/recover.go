package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/phrazzld/match-gateway/internal/api/shared"
	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/platform/logger"
)

// Recoverer turns a handler panic into a server error envelope and logs
// the stack. http.ErrAbortHandler is re-raised for net/http to handle.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(p)
			}
			logger.FromContext(r.Context()).Error("handler panicked",
				slog.String("panic", fmt.Sprint(p)),
				slog.String("stack", string(debug.Stack())))
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, domain.CodeServer,
				"internal error", nil, fmt.Errorf("panic: %v", p))
		}()
		next.ServeHTTP(w, r)
	})
}
