package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller. Each kind maps to one HTTP status
// family at the API boundary.
type Kind int

const (
	// KindServer covers cache outages, backend contract violations and anything unexpected.
	KindServer Kind = iota
	// KindClient is malformed or semantically invalid caller input.
	KindClient
	// KindUnauthorized is a missing, invalid or expired token, or claims that do not match the resource.
	KindUnauthorized
	// KindForbidden is an authenticated caller that is not permitted to act.
	KindForbidden
	// KindNotFound is an absent entity, region or session.
	KindNotFound
	// KindDuplicate is a signup or registration collision.
	KindDuplicate
)

// Envelope codes shared with the backend services.
const (
	CodeOK           = "0"
	CodeClient       = "40000"
	CodeUnauthorized = "40100"
	CodeForbidden    = "40300"
	CodeNotFound     = "40400"
	CodeWrongRegion  = "40401"
	CodeDuplicate    = "40600"
	CodeServer       = "50000"
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindDuplicate:
		return "duplicate"
	default:
		return "server"
	}
}

// DefaultCode returns the coarse envelope code for the kind.
func (k Kind) DefaultCode() string {
	switch k {
	case KindClient:
		return CodeClient
	case KindUnauthorized:
		return CodeUnauthorized
	case KindForbidden:
		return CodeForbidden
	case KindNotFound:
		return CodeNotFound
	case KindDuplicate:
		return CodeDuplicate
	default:
		return CodeServer
	}
}

// Error is the single error representation used across the gateway.
// It carries no logging side effects; the boundary that translates it
// into a response is responsible for logging.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Data map[string]any
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind and code, so sentinel-style
// comparisons work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithData returns a copy of e with key set in its data map.
func (e *Error) WithData(key string, value any) *Error {
	cp := *e
	cp.Data = make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		cp.Data[k] = v
	}
	cp.Data[key] = value
	return &cp
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Code: kind.DefaultCode(), Msg: msg, Err: err}
}

// ClientError reports invalid caller input.
func ClientError(msg string) *Error { return newError(KindClient, msg, nil) }

// UnauthorizedError reports a failed authentication.
func UnauthorizedError(msg string) *Error { return newError(KindUnauthorized, msg, nil) }

// ForbiddenError reports an authenticated but disallowed action.
func ForbiddenError(msg string) *Error { return newError(KindForbidden, msg, nil) }

// NotFoundError reports an absent entity.
func NotFoundError(msg string) *Error { return newError(KindNotFound, msg, nil) }

// DuplicateError reports a registration collision.
func DuplicateError(msg string) *Error { return newError(KindDuplicate, msg, nil) }

// ServerError wraps an internal failure. The cause is kept for logs only.
func ServerError(msg string, err error) *Error { return newError(KindServer, msg, err) }

// KindOf returns the kind of err, treating foreign errors as server errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServer
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// AsError converts any error into a *Error, wrapping foreign errors as server errors.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ServerError("internal error", err)
}
