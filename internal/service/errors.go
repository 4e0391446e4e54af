package service

import "errors"

// Authentication and authorization failures. Token and identity errors all
// surface as 401 at the HTTP boundary; the distinction is kept for logging.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountDisabled      = errors.New("account disabled")
	ErrTokenMalformed       = errors.New("token malformed")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrUserNotFound         = errors.New("user not found")
	ErrResourceUnregistered = errors.New("resource unregistered")
	ErrPermissionDenied     = errors.New("permission denied")
)

// Administrative failures.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// IsAuthenticationError reports whether err means the caller's identity
// could not be established.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrTokenMalformed) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrUserNotFound)
}
