package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/match-gateway/internal/api/shared"
	"github.com/phrazzld/match-gateway/internal/domain"
)

// MapErrorToStatusCode maps an error to its HTTP status by kind. Foreign
// errors are server errors.
func MapErrorToStatusCode(err error) int {
	switch domain.KindOf(err) {
	case domain.KindClient:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindDuplicate:
		return http.StatusNotAcceptable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode returns the envelope code for err. Backend codes such as the
// wrong-region code pass through unchanged.
func ErrorCode(err error) string {
	e := domain.AsError(err)
	if e == nil {
		return domain.CodeOK
	}
	if e.Kind == domain.KindServer {
		return domain.CodeServer
	}
	if e.Code == "" {
		return e.Kind.DefaultCode()
	}
	return e.Code
}

// GetSafeErrorMessage returns the message shown to clients. Server errors
// never expose their message or cause.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}
	e := domain.AsError(err)
	if e.Kind == domain.KindServer || e.Msg == "" {
		return "internal server error"
	}
	return e.Msg
}

// safeErrorData returns the data shown to clients alongside the message.
func safeErrorData(err error) any {
	e := domain.AsError(err)
	if e == nil || e.Kind == domain.KindServer || len(e.Data) == 0 {
		return nil
	}
	return e.Data
}

// SanitizeValidationError turns validator output into a short message
// naming the first failing field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	return fmt.Sprintf("Invalid %s: %s", strings.ToLower(fe.Field()), getValidationTagMessage(fe.Tag()))
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "email":
		return "invalid email format"
	case "len":
		return "wrong length"
	case "numeric":
		return "must be numeric"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes err as an error envelope and logs it once.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	status := MapErrorToStatusCode(err)
	var opts []shared.ResponseOption
	if status == http.StatusUnauthorized {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, ErrorCode(err), GetSafeErrorMessage(err), safeErrorData(err), err, opts...)
}

// decodeError reports an unreadable body.
func decodeError() error {
	return domain.ClientError("invalid request format")
}

// validationError wraps validator output as a client error.
func validationError(err error) error {
	return domain.ClientError(SanitizeValidationError(err))
}
