package auth

import "errors"

// Token validation errors. The API boundary maps every one of them to 401.
var (
	// ErrInvalidToken indicates a malformed token, a bad signature, or a
	// token minted for another role ID.
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates the token has expired.
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrTokenNotYetValid indicates an iat or nbf claim in the future.
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")

	// ErrMissingToken indicates a token was expected but not provided.
	ErrMissingToken = errors.New("authentication token is missing")
)
