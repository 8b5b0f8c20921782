package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	t.Parallel()

	m := New()
	m.PoolProbes.WithLabelValues("cache", "ok").Inc()
	m.LoginRedirects.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PoolProbes.WithLabelValues("cache", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginRedirects))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestHandlerServesExposition(t *testing.T) {
	t.Parallel()

	m := New()
	m.BackendRequests.WithLabelValues("GET", "ok").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gateway_backend_requests_total")
}

func TestInstancesAreIsolated(t *testing.T) {
	t.Parallel()

	a, b := New(), New()
	a.LoginRedirects.Inc()

	assert.Equal(t, 0.0, testutil.ToFloat64(b.LoginRedirects))
}
