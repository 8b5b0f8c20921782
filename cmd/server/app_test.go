package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/match-gateway/internal/api/shared"
	"github.com/phrazzld/match-gateway/internal/cache"
	"github.com/phrazzld/match-gateway/internal/config"
	"github.com/phrazzld/match-gateway/internal/mocks"
	"github.com/phrazzld/match-gateway/internal/platform/logger"
)

type backends struct {
	auth, match, pay *mocks.FakeBackend
}

func testConfig(b backends) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            8080,
			LogLevel:        "debug",
			ShutdownTimeout: time.Second,
		},
		Auth: config.AuthConfig{
			TokenSecret:       "gateway-test-secret-that-is-long-enough",
			TokenLifetime:     time.Hour,
			RefreshGrace:      time.Minute,
			ExposeConfirmCode: true,
		},
		Cache: config.CacheConfig{
			Backend:        cache.BackendMemory,
			SessionTTL:     time.Hour,
			SignupTTL:      time.Minute,
			PlaceholderTTL: time.Second * 30,
			PubkeyTTL:      time.Hour,
			TrackerTTL:     time.Hour,
			PaymentTTL:     time.Minute,
			HandlingTTL:    time.Hour,
		},
		Pool: config.PoolConfig{
			ProbeInterval:   time.Hour,
			ProbeTimeout:    time.Second,
			HTTPIdleTimeout: time.Minute,
			ConnectTimeout:  time.Second,
			ReadTimeout:     5 * time.Second,
			MaxRetries:      1,
		},
		Login:   config.LoginConfig{PrefetchSize: 2},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Regions: map[string]map[string]string{
			"auth":    {"jp": b.auth.URL},
			"match":   {"jp": b.match.URL},
			"payment": {"jp": b.pay.URL},
		},
	}
}

func newTestApp(t *testing.T) (*application, backends, http.Handler) {
	t.Helper()
	b := backends{auth: mocks.NewFakeBackend(t), match: mocks.NewFakeBackend(t), pay: mocks.NewFakeBackend(t)}
	app, err := newApplication(context.Background(), testConfig(b), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(app.cleanup)
	return app, b, app.setupRouter()
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func call(t *testing.T, h http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(shared.CurrentRegionHeader, "jp")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestNewApplicationRegistersBackendDomains(t *testing.T) {
	t.Parallel()

	app, b, _ := newTestApp(t)
	names := make([]string, 0)
	for _, h := range app.pool.Handles() {
		names = append(names, h.Name())
	}
	assert.Contains(t, names, cache.ResourceName)
	assert.Contains(t, names, strings.ToLower(b.auth.URL))
	assert.Contains(t, names, strings.ToLower(b.match.URL))
}

func TestNewApplicationRejectsBadConfig(t *testing.T) {
	t.Parallel()

	b := backends{auth: mocks.NewFakeBackend(t), match: mocks.NewFakeBackend(t), pay: mocks.NewFakeBackend(t)}
	cfg := testConfig(b)
	cfg.Auth.TokenSecret = ""
	_, err := newApplication(context.Background(), cfg, logger.Discard())
	assert.Error(t, err)

	cfg = testConfig(b)
	cfg.Regions["auth"]["us"] = ""
	_, err = newApplication(context.Background(), cfg, logger.Discard())
	assert.Error(t, err)
}

func TestSignupToLogoutThroughRouter(t *testing.T) {
	t.Parallel()

	_, b, h := newTestApp(t)
	b.auth.OK(http.MethodPost, "/signup/email", nil)
	b.auth.OK(http.MethodGet, "/pubkey", map[string]string{"pubkey": "PK"})
	b.auth.OK(http.MethodPost, "/signup", map[string]string{"role": "teacher", "role_id": "t-1"})
	b.match.OK(http.MethodGet, "/teacher/t-1/matches", []map[string]string{{"job_id": "j-1"}, {"job_id": "j-2"}})
	b.match.OK(http.MethodGet, "/teacher/t-1/follow", []string{"j-2"})
	b.match.OK(http.MethodGet, "/teacher/t-1/contact", []string{})

	w, env := call(t, h, http.MethodPost, "/api/auth/signup", "", `{"email":"A@x.com","meta":{"role":"teacher"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var signup struct {
		Code string `json:"testing_confirm_code"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &signup))
	require.Len(t, signup.Code, 6)

	w, env = call(t, h, http.MethodPost, "/api/auth/signup", "", `{"email":"a@x.com","meta":{}}`)
	assert.Equal(t, http.StatusNotAcceptable, w.Code)
	assert.Equal(t, "40600", env.Code)

	w, env = call(t, h, http.MethodPost, "/api/auth/signup/confirm", "",
		`{"email":"a@x.com","confirm_code":"`+signup.Code+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "jp", w.Header().Get(shared.RegisterRegionHeader))
	var auth struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &auth))
	require.NotEmpty(t, auth.Token)

	w, _ = call(t, h, http.MethodGet, "/api/teacher/t-1/session", auth.Token, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = call(t, h, http.MethodGet, "/api/teacher/t-2/session", auth.Token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "a token only opens its own role id")

	w, env = call(t, h, http.MethodGet, "/api/teacher/t-1/matches", auth.Token, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t,
		`[{"job_id":"j-1","followed":false,"contacted":false},{"job_id":"j-2","followed":true,"contacted":false}]`,
		string(env.Data))

	w, _ = call(t, h, http.MethodPost, "/api/teacher/t-1/logout", auth.Token, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = call(t, h, http.MethodGet, "/api/teacher/t-1/session", auth.Token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	_, _, h := newTestApp(t)

	w, env := call(t, h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"cache":"ok"`)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gateway_pool_handles_created_total")
}

func TestServeListenerShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	app, _, h := newTestApp(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.serveListener(ctx, ln, h) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestMigrateRequiresPostgres(t *testing.T) {
	t.Parallel()

	err := runMigrations(context.Background(), config.CacheConfig{Backend: cache.BackendMemory}, cache.MigrateUp, logger.Discard())
	assert.ErrorContains(t, err, "postgres")
}

func TestRootCommandTree(t *testing.T) {
	t.Parallel()

	root := buildRootCommand()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())

	migrate, _, err := root.Find([]string{"migrate", "up"})
	require.NoError(t, err)
	assert.Equal(t, "migrate", migrate.Name())
	assert.Error(t, migrate.Args(migrate, nil))
}
