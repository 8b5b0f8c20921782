package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/metrics"
	"github.com/phrazzld/match-gateway/internal/mocks"
	"github.com/phrazzld/match-gateway/internal/platform/logger"
	"github.com/phrazzld/match-gateway/internal/pool"
)

func newTestClient(t *testing.T) (*Client, *metrics.Metrics) {
	t.Helper()
	met := metrics.New()
	cfg := pool.DefaultConfig()
	cfg.BreakerMaxFailures = 100
	mgr := pool.NewManager(cfg, logger.Discard(), met)
	t.Cleanup(func() { _ = mgr.CloseAll() })
	return New(mgr, met, Options{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}), met
}

func TestDoDecodesSuccessEnvelope(t *testing.T) {
	t.Parallel()

	fake := mocks.NewFakeBackend(t)
	fake.OK(http.MethodGet, "/teacher/t1/follow", []string{"j1", "j2"})
	c, met := newTestClient(t)

	res, err := c.Get(context.Background(), fake.URL+"/teacher/t1/follow", url.Values{"size": {"3"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)

	var ids []string
	require.NoError(t, res.Decode(&ids))
	assert.Equal(t, []string{"j1", "j2"}, ids)

	calls := fake.Calls(http.MethodGet, "/teacher/t1/follow")
	require.Len(t, calls, 1)
	assert.Equal(t, "3", calls[0].Query.Get("size"))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.BackendRequests.WithLabelValues("GET", "ok")))
}

func TestDoSendsJSONBody(t *testing.T) {
	t.Parallel()

	fake := mocks.NewFakeBackend(t)
	fake.OK(http.MethodPost, "/signup", map[string]string{"role_id": "t1"})
	c, _ := newTestClient(t)

	_, err := c.Post(context.Background(), fake.URL+"/signup", map[string]string{"email": "a@b.c"})
	require.NoError(t, err)

	calls := fake.Calls(http.MethodPost, "/signup")
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"email":"a@b.c"}`, string(calls[0].Body))
	assert.Equal(t, "application/json", calls[0].Header.Get("Content-Type"))
}

func TestDoMapsStatusToKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		code   string
		kind   domain.Kind
	}{
		{http.StatusBadRequest, "40002", domain.KindClient},
		{http.StatusUnauthorized, "40100", domain.KindUnauthorized},
		{http.StatusForbidden, "40300", domain.KindForbidden},
		{http.StatusNotFound, "40401", domain.KindNotFound},
		{http.StatusNotAcceptable, "40600", domain.KindDuplicate},
		{http.StatusInternalServerError, "50000", domain.KindServer},
		{http.StatusTeapot, "", domain.KindServer},
	}

	fake := mocks.NewFakeBackend(t)
	c, _ := newTestClient(t)
	for _, tt := range tests {
		path := "/status/" + strconv.Itoa(tt.status)
		fake.Reply(http.MethodGet, path, tt.status, tt.code, "backend says no", map[string]any{"region": "jp"})

		_, err := c.Get(context.Background(), fake.URL+path, nil)
		require.Error(t, err)

		derr := domain.AsError(err)
		assert.Equal(t, tt.kind, derr.Kind, "status %d", tt.status)
		if tt.code != "" {
			assert.Equal(t, tt.code, derr.Code, "backend code is preserved")
		} else {
			assert.Equal(t, tt.kind.DefaultCode(), derr.Code)
		}
		assert.Equal(t, "backend says no", derr.Msg)
		assert.Equal(t, "jp", derr.Data["region"])
	}
}

func TestDoNonZeroCodeOn200IsError(t *testing.T) {
	t.Parallel()

	fake := mocks.NewFakeBackend(t)
	fake.Reply(http.MethodPost, "/login", http.StatusOK, "40401", "wrong region", map[string]any{"region": "us"})
	c, _ := newTestClient(t)

	_, err := c.Post(context.Background(), fake.URL+"/login", nil)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	region, ok := WrongRegion(err)
	assert.True(t, ok)
	assert.Equal(t, "us", region)
}

func TestDoRetriesUnavailableThenSucceeds(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	fake := mocks.NewFakeBackend(t)
	fake.Handle(http.MethodGet, "/flaky", func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		mocks.WriteEnvelope(w, http.StatusOK, "0", "ok", "done")
	})
	c, met := newTestClient(t)

	res, err := c.Get(context.Background(), fake.URL+"/flaky", nil)
	require.NoError(t, err)
	var out string
	require.NoError(t, res.Decode(&out))
	assert.Equal(t, "done", out)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(met.BackendRetries.WithLabelValues("GET")))
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	fake := mocks.NewFakeBackend(t)
	fake.Handle(http.MethodGet, "/down", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	c, _ := newTestClient(t)

	_, err := c.Get(context.Background(), fake.URL+"/down", nil)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindServer))
	assert.Equal(t, int32(3), hits.Load(), "first attempt plus two retries")
}

func TestDoNeverRetriesBusinessFailures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	fake := mocks.NewFakeBackend(t)
	fake.Handle(http.MethodGet, "/dup", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		mocks.WriteEnvelope(w, http.StatusInternalServerError, "50000", "boom", nil)
	})
	c, _ := newTestClient(t)

	_, err := c.Get(context.Background(), fake.URL+"/dup", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDoTransportFailureIsServerError(t *testing.T) {
	t.Parallel()

	c, met := newTestClient(t)
	_, err := c.Get(context.Background(), "http://127.0.0.1:1/unreachable", nil)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindServer))
	assert.Equal(t, 1.0, testutil.ToFloat64(met.BackendRequests.WithLabelValues("GET", "server")))
}

func TestDoRejectsInvalidJSONOnSuccess(t *testing.T) {
	t.Parallel()

	fake := mocks.NewFakeBackend(t)
	fake.Handle(http.MethodGet, "/html", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	})
	c, _ := newTestClient(t)

	_, err := c.Get(context.Background(), fake.URL+"/html", nil)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindServer))
}

func TestResultDecodeEmptyData(t *testing.T) {
	t.Parallel()

	var v map[string]any
	err := (&Result{Data: json.RawMessage("null")}).Decode(&v)
	assert.True(t, domain.IsKind(err, domain.KindServer))
}

func TestWrongRegionIgnoresOtherErrors(t *testing.T) {
	t.Parallel()

	_, ok := WrongRegion(domain.NotFoundError("user not found"))
	assert.False(t, ok)

	e := &domain.Error{Kind: domain.KindNotFound, Code: domain.CodeWrongRegion}
	_, ok = WrongRegion(e)
	assert.False(t, ok, "a wrong-region code without a region is not a redirect")
}

func TestKindFromCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, domain.KindDuplicate, kindFromCode("40601"))
	assert.Equal(t, domain.KindServer, kindFromCode("x"))
	assert.Equal(t, domain.KindServer, kindFromCode("abc12"))
}
