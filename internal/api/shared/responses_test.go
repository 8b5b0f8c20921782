package shared

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/match-gateway/internal/platform/logger"
)

func TestRespondOK(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	RespondOK(w, httptest.NewRequest(http.MethodGet, "/", nil), map[string]int{"n": 1})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"code":"0","msg":"ok","data":{"n":1}}`, w.Body.String())
}

func TestRespondWithErrorCarriesTraceID(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(WithTraceID(r.Context(), "trace-1"))
	w := httptest.NewRecorder()
	RespondWithError(w, r, http.StatusNotFound, "40400", "not found", nil)

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "40400", env.Code)
	assert.Equal(t, "trace-1", env.TraceID)
}

func TestRespondWithErrorAndLogRedacts(t *testing.T) {
	t.Parallel()

	log, buf := logger.NewTestLogger()
	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	r = r.WithContext(logger.WithContext(r.Context(), log))
	w := httptest.NewRecorder()

	cause := errors.New("backend rejected a@x.com with Bearer abc.def.ghi")
	RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "50000", "internal server error", nil, cause)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "a@x.com")
	assert.NotContains(t, buf.String(), "a@x.com")
	assert.NotContains(t, buf.String(), "abc.def.ghi")
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}

func TestErrorLogLevels(t *testing.T) {
	t.Parallel()

	log, buf := logger.NewTestLogger()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(logger.WithContext(r.Context(), log))

	RespondWithErrorAndLog(httptest.NewRecorder(), r, http.StatusUnauthorized, "40100", "invalid token", nil, nil)
	RespondWithErrorAndLog(httptest.NewRecorder(), r, http.StatusUnauthorized, "40100", "invalid token", nil, nil,
		WithElevatedLogLevel())

	entries := buf.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "DEBUG", entries[0]["level"])
	assert.Equal(t, "WARN", entries[1]["level"])
}
