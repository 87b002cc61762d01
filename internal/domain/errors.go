package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
//
// ErrInvalidCredentials deliberately covers both "no such user" and "wrong
// password" so login responses cannot be used to enumerate accounts.
// ErrUserNotFound is only returned on paths where the caller has already
// proven knowledge of a secret (e.g. a valid reset token).
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("account not verified")
	ErrAlreadyVerified    = errors.New("account already verified")
	ErrTokenNotFound      = errors.New("token not found")
	ErrTokenMismatch      = errors.New("token mismatch")
	ErrStaleToken         = errors.New("stale token")
	ErrMissingToken       = errors.New("missing token")
	ErrUserNotFound       = errors.New("user not found")
	ErrStorage            = errors.New("storage failure")
	ErrMail               = errors.New("mail delivery failure")
)
