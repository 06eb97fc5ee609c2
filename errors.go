package authgate

import (
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials is returned when an identifier/password pair,
	// OTP code, or TOTP code does not verify. It deliberately carries no
	// detail about which half failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while an account is inside its lockout
	// window. Use errors.As with [*LockoutError] to read the deadline.
	ErrAccountLocked = errors.New("account locked")
	// ErrCredentialConflict is returned by registration when the
	// identifier is already taken.
	ErrCredentialConflict = errors.New("credential conflict")
	// ErrTokenExpired is returned for structurally valid but expired
	// access or refresh tokens.
	ErrTokenExpired = errors.New("token expired")
	// ErrUnauthorized is returned for tokens and challenges that are
	// malformed, unknown, revoked, or otherwise unacceptable.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSecurityBreach is returned when a rotated-out refresh token is
	// presented again. The engine has already revoked every session of
	// the affected user by the time callers see it.
	ErrSecurityBreach = errors.New("security breach detected")
	// ErrInternal wraps backend failures that are not the caller's fault.
	ErrInternal = errors.New("internal error")

	// ErrMFARequired is returned by Login when the account has TOTP
	// enabled; the result carries a challenge token instead of a pair.
	ErrMFARequired = errors.New("mfa required")
	// ErrTOTPNotEnabled is returned by TOTP operations on accounts
	// without an enrolled authenticator.
	ErrTOTPNotEnabled = errors.New("totp not enabled")
	// ErrRateLimited is returned when an optional throttle denies the
	// request before the flow runs.
	ErrRateLimited = errors.New("rate limited")
	// ErrPasswordPolicy is returned for passwords the engine refuses to
	// hash.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrUserNotFound is the sentinel a [UserStore] must return for
	// unknown identifiers and IDs. The engine never surfaces it to
	// callers of credential flows.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateIdentifier is the sentinel a [UserStore] must return
	// when CreateUser hits an existing identifier.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	// ErrEngineNotReady is returned when an Engine method is called on a
	// nil or incompletely built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockoutError reports an active lockout and when it ends. It matches
// [ErrAccountLocked] under errors.Is.
type LockoutError struct {
	Until time.Time
}

func (e *LockoutError) Error() string {
	return "account locked until " + e.Until.UTC().Format(time.RFC3339)
}

func (e *LockoutError) Is(target error) bool {
	return target == ErrAccountLocked
}
