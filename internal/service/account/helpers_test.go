package account

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phrazzld/match-gateway/internal/backend"
	"github.com/phrazzld/match-gateway/internal/cache"
	"github.com/phrazzld/match-gateway/internal/config"
	"github.com/phrazzld/match-gateway/internal/metrics"
	"github.com/phrazzld/match-gateway/internal/mocks"
	"github.com/phrazzld/match-gateway/internal/platform/logger"
	"github.com/phrazzld/match-gateway/internal/pool"
	"github.com/phrazzld/match-gateway/internal/region"
	"github.com/phrazzld/match-gateway/internal/service/auth"
	"github.com/phrazzld/match-gateway/internal/session"
)

// fixture is a service wired to fake auth and match backends in two
// regions, jp and us.
type fixture struct {
	svc     *Service
	store   *mocks.MockCacheStore
	cache   *session.Cache
	tokens  auth.TokenService
	metrics *metrics.Metrics

	authJP, authUS   *mocks.FakeBackend
	matchJP, matchUS *mocks.FakeBackend
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	f := &fixture{
		authJP:  mocks.NewFakeBackend(t),
		authUS:  mocks.NewFakeBackend(t),
		matchJP: mocks.NewFakeBackend(t),
		matchUS: mocks.NewFakeBackend(t),
		store:   mocks.NewMockCacheStore(),
		metrics: metrics.New(),
	}

	dir, err := region.New(map[string]map[string]string{
		"auth":  {"jp": f.authJP.URL, "us": f.authUS.URL},
		"match": {"jp": f.matchJP.URL, "us": f.matchUS.URL},
	})
	require.NoError(t, err)

	mgr := pool.NewManager(pool.DefaultConfig(), logger.Discard(), f.metrics)
	t.Cleanup(func() { _ = mgr.CloseAll() })
	client := backend.New(mgr, f.metrics, backend.Options{MaxRetries: 0})

	f.tokens, err = auth.NewTokenService(config.AuthConfig{
		TokenSecret:   "account-test-secret-at-least-32-bytes",
		TokenLifetime: time.Hour,
		RefreshGrace:  time.Hour,
	})
	require.NoError(t, err)

	f.cache = session.New(f.store, session.DefaultTTLs())
	f.svc = NewService(f.cache, client, dir, f.tokens, f.metrics, opts, logger.Discard())
	return f
}

var _ cache.Store = (*mocks.MockCacheStore)(nil)
