package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/match-gateway/internal/domain"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ClientError("bad"), http.StatusBadRequest, "40000"},
		{domain.UnauthorizedError("no"), http.StatusUnauthorized, "40100"},
		{domain.ForbiddenError("no"), http.StatusForbidden, "40300"},
		{domain.NotFoundError("gone"), http.StatusNotFound, "40400"},
		{domain.DuplicateError("dup"), http.StatusNotAcceptable, "40600"},
		{domain.ServerError("boom", nil), http.StatusInternalServerError, "50000"},
		{errors.New("foreign"), http.StatusInternalServerError, "50000"},
		{fmt.Errorf("wrapped: %w", domain.NotFoundError("gone")), http.StatusNotFound, "40400"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.status, MapErrorToStatusCode(tc.err), tc.err.Error())
		assert.Equal(t, tc.code, ErrorCode(tc.err), tc.err.Error())
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "wrong confirm_code", GetSafeErrorMessage(domain.ClientError("wrong confirm_code")))
	assert.Equal(t, "internal server error", GetSafeErrorMessage(domain.ServerError("dial tcp 10.0.0.1", nil)))
	assert.Equal(t, "internal server error", GetSafeErrorMessage(errors.New("secret detail")))
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
}

func TestSafeErrorDataHidesServerData(t *testing.T) {
	t.Parallel()

	assert.Nil(t, safeErrorData(domain.ServerError("x", nil)))
	assert.Equal(t, map[string]any{"region": "us"}, safeErrorData(domain.DuplicateError("dup").WithData("region", "us")))
}

func TestSanitizeValidationErrorFallback(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("odd")))
}
