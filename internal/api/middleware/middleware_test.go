package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/match-gateway/internal/api/shared"
	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/platform/logger"
	"github.com/phrazzld/match-gateway/internal/service/auth"
)

type fakeAuthenticator struct {
	claims *auth.Claims
	err    error

	gotRole   domain.Role
	gotRoleID string
	gotToken  string
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, role domain.Role, roleID, token string) (*auth.Claims, error) {
	f.gotRole, f.gotRoleID, f.gotToken = role, roleID, token
	return f.claims, f.err
}

func guarded(a Authenticator) http.Handler {
	r := chi.NewRouter()
	r.With(NewAuthMiddleware(a).Authenticate).Get("/api/{role}/{role_id}/session", func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaims(r)
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(claims.RoleID))
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		header     string
		authErr    error
		wantStatus int
		wantCode   string
	}{
		{name: "valid", path: "/api/teacher/t-1/session", header: "Bearer tok", wantStatus: http.StatusOK},
		{name: "missing header", path: "/api/teacher/t-1/session", wantStatus: http.StatusUnauthorized, wantCode: "40100"},
		{name: "wrong scheme", path: "/api/teacher/t-1/session", header: "Basic tok", wantStatus: http.StatusUnauthorized, wantCode: "40100"},
		{name: "unknown role", path: "/api/admin/t-1/session", header: "Bearer tok", wantStatus: http.StatusBadRequest, wantCode: "40000"},
		{
			name: "rejected", path: "/api/teacher/t-1/session", header: "Bearer tok",
			authErr: domain.UnauthorizedError("invalid token"), wantStatus: http.StatusUnauthorized, wantCode: "40100",
		},
		{
			name: "cache down", path: "/api/teacher/t-1/session", header: "Bearer tok",
			authErr: domain.ServerError("failed to read session", nil), wantStatus: http.StatusInternalServerError, wantCode: "50000",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a := &fakeAuthenticator{claims: &auth.Claims{RoleID: "t-1", Role: domain.RoleTeacher}, err: tc.authErr}
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			guarded(a).ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.wantStatus == http.StatusOK {
				assert.Equal(t, "t-1", w.Body.String())
				assert.Equal(t, domain.RoleTeacher, a.gotRole)
				assert.Equal(t, "tok", a.gotToken)
				return
			}
			var env shared.Envelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.Equal(t, tc.wantCode, env.Code)
			assert.NotContains(t, w.Body.String(), "failed to read session")
		})
	}
}

func TestTraceMiddleware(t *testing.T) {
	t.Parallel()

	log, buf := logger.NewTestLogger()
	var seen string
	h := NewTraceMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(TraceIDHeader))
	for _, entry := range buf.Entries() {
		assert.Equal(t, seen, entry["trace_id"])
	}
}

func TestTraceMiddlewareReusesRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	h := chimw.RequestID(NewTraceMiddleware(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.GetTraceID(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(chimw.RequestIDHeader, "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "req-42", seen)
}

func TestCurrentRegion(t *testing.T) {
	t.Parallel()

	var seen string
	h := CurrentRegion(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.CurrentRegion(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(shared.CurrentRegionHeader, " JP ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "jp", seen)

	seen = "unset"
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, seen)
}

func TestRecovererWritesEnvelope(t *testing.T) {
	t.Parallel()

	log, buf := logger.NewTestLogger()
	h := NewTraceMiddleware(log)(Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/teacher/t-1/session", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var env shared.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, domain.CodeServer, env.Code)
	assert.Equal(t, "internal error", env.Msg)
	assert.NotEmpty(t, env.TraceID)
	assert.NotContains(t, w.Body.String(), "nil map write")

	var logged bool
	for _, entry := range buf.Entries() {
		if entry["msg"] == "handler panicked" {
			logged = true
			assert.Equal(t, "nil map write", entry["panic"])
		}
	}
	assert.True(t, logged)
}

func TestRecovererRepanicsOnAbort(t *testing.T) {
	t.Parallel()

	h := Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
