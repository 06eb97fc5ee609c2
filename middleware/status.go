package middleware

import (
	"errors"
	"net/http"

	authgate "github.com/arcweld/authgate"
)

// StatusForError maps engine errors onto HTTP status codes. Credential
// failures, expired or revoked tokens, and breach responses all read as
// 401 so callers cannot distinguish them; only an active lockout (403),
// a registration conflict (400), and throttling (429) say more.
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, authgate.ErrAccountLocked):
		return http.StatusForbidden
	case errors.Is(err, authgate.ErrCredentialConflict),
		errors.Is(err, authgate.ErrPasswordPolicy):
		return http.StatusBadRequest
	case errors.Is(err, authgate.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, authgate.ErrInvalidCredentials),
		errors.Is(err, authgate.ErrTokenExpired),
		errors.Is(err, authgate.ErrUnauthorized),
		errors.Is(err, authgate.ErrSecurityBreach),
		errors.Is(err, authgate.ErrMFARequired):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
