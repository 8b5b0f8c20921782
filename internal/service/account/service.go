// Package account implements the signup, confirmation, login, logout,
// refresh and public key flows on top of the session cache and the
// regional auth and match backends.
package account

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/phrazzld/match-gateway/internal/backend"
	"github.com/phrazzld/match-gateway/internal/metrics"
	"github.com/phrazzld/match-gateway/internal/region"
	"github.com/phrazzld/match-gateway/internal/service/auth"
	"github.com/phrazzld/match-gateway/internal/session"
)

// Backend is the subset of the backend client the flows need.
type Backend interface {
	Get(ctx context.Context, target string, query url.Values) (*backend.Result, error)
	Post(ctx context.Context, target string, body any) (*backend.Result, error)
}

// Options tunes the flows.
type Options struct {
	// PrefetchSize is how many match records login prefetches. Zero skips
	// the prefetch.
	PrefetchSize int
	// ExposeConfirmCode returns the confirm code from Signup. Test
	// deployments only.
	ExposeConfirmCode bool
}

// Service runs the account flows.
type Service struct {
	cache   *session.Cache
	backend Backend
	regions *region.Directory
	tokens  auth.TokenService
	metrics *metrics.Metrics
	opts    Options
	logger  *slog.Logger

	now func() time.Time
}

// NewService wires the flows. m may be nil.
func NewService(
	cache *session.Cache,
	b Backend,
	regions *region.Directory,
	tokens auth.TokenService,
	m *metrics.Metrics,
	opts Options,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cache:   cache,
		backend: b,
		regions: regions,
		tokens:  tokens,
		metrics: m,
		opts:    opts,
		logger:  logger.With("component", "account_service"),
		now:     time.Now,
	}
}

// confirmCode derives a six-digit code from the clock, in [100000, 999999).
func confirmCode(now time.Time) string {
	n := now.UnixNano() % 899999
	if n < 0 {
		n = -n
	}
	return strconv.FormatInt(n+100000, 10)
}
