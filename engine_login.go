package authgate

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/arcweld/authgate/jwt"
)

// Login authenticates an identifier/password pair and runs the lockout
// state machine around it. Unknown identifiers and wrong passwords are
// indistinguishable to the caller.
//
// A locked account refuses even the correct password until the lock
// expires; any successful authentication resets the failure counter. For
// accounts with TOTP enabled the result carries an intermediate challenge
// token instead of a session pair; [Engine.ConfirmLoginTOTP] completes
// the login.
func (e *Engine) Login(ctx context.Context, identifier, pw string) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil || e.userStore == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, identifier, ip); err != nil {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrRateLimited, func() map[string]string {
				return map[string]string{"identifier": identifier}
			})
			return nil, ErrRateLimited
		}
	}

	user, err := e.userStore.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		e.noteThrottledFailure(ctx, identifier, ip)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "unknown_identifier",
			}
		})
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	if lockErr := activeLockout(user, now); lockErr != nil {
		e.metricInc(MetricLoginLockout)
		e.emitAudit(ctx, auditEventLoginLockout, false, user.UserID, "", lockErr, nil)
		return nil, lockErr
	}

	ok, err := e.passwordHash.Verify(pw, user.PasswordHash)
	if err != nil || !ok {
		e.noteThrottledFailure(ctx, identifier, ip)
		return nil, e.registerFailedLogin(ctx, user, "password_mismatch")
	}

	if e.config.Password.UpgradeOnLogin {
		// Best-effort: a rehash failure must not fail the login.
		if stale, rhErr := e.passwordHash.NeedsRehash(user.PasswordHash); rhErr == nil && stale {
			if newHash, hErr := e.passwordHash.Hash(pw); hErr == nil {
				_ = e.userStore.UpdateUser(ctx, user.UserID, UserUpdate{PasswordHash: &newHash})
			}
		}
	}

	if user.TOTPEnabled {
		challenge, err := e.jwtManager.CreateMFAChallenge(user.UserID)
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricMFAChallengeIssued)
		e.emitAudit(ctx, auditEventMFAChallengeIssued, true, user.UserID, "", nil, nil)
		return &LoginResult{MFARequired: true, MFAChallenge: challenge}, nil
	}

	return e.completeLogin(ctx, user, identifier, ip)
}

// ConfirmLoginTOTP finishes a login that Login answered with an MFA
// challenge. A wrong code counts toward the same lockout counter as a
// wrong password.
func (e *Engine) ConfirmLoginTOTP(ctx context.Context, challengeToken, code string) (*LoginResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseMFAChallenge(challengeToken)
	if err != nil {
		if jwt.IsExpired(err) {
			return nil, ErrTokenExpired
		}
		return nil, ErrUnauthorized
	}

	user, err := e.userStore.GetUserByID(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	now := time.Now()
	if lockErr := activeLockout(user, now); lockErr != nil {
		e.metricInc(MetricLoginLockout)
		e.emitAudit(ctx, auditEventLoginLockout, false, user.UserID, "", lockErr, nil)
		return nil, lockErr
	}

	counter, err := e.verifyTOTPForUser(user, code, now)
	if err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, user.UserID, "", err, nil)
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, e.registerFailedLogin(ctx, user, "totp_mismatch")
		}
		return nil, err
	}

	if err := e.userStore.UpdateUser(ctx, user.UserID, UserUpdate{TOTPLastUsed: &counter}); err != nil {
		return nil, err
	}

	e.metricInc(MetricMFASuccess)
	e.emitAudit(ctx, auditEventMFASuccess, true, user.UserID, "", nil, nil)

	return e.completeLogin(ctx, user, user.Identifier, clientIPFromContext(ctx))
}

// completeLogin clears lockout state, stamps last-login metadata, and
// issues the session pair.
func (e *Engine) completeLogin(ctx context.Context, user UserRecord, identifier, ip string) (*LoginResult, error) {
	// Best-effort: a failure to stamp the user record must not undo an
	// already successful authentication.
	_ = e.recordSuccessfulLogin(ctx, user.UserID)

	pair, sessionID, err := e.issueSessionTokens(ctx, user.UserID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", err, func() map[string]string {
			return map[string]string{"reason": "session_issue_failed"}
		})
		return nil, err
	}

	if e.rateLimiter != nil {
		// Best-effort: a throttle reset failure must not fail the login.
		_ = e.rateLimiter.ResetLogin(ctx, identifier, ip)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, sessionID, nil, func() map[string]string {
		return map[string]string{"identifier": identifier}
	})

	return &LoginResult{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// registerFailedLogin advances the lockout counter and locks the account
// when the threshold is reached. The attempt that trips the threshold
// still answers with bad credentials, exactly like the ones before it;
// only attempts made while the lock is active report the lock.
func (e *Engine) registerFailedLogin(ctx context.Context, user UserRecord, reason string) error {
	failed := user.FailedLogins + 1
	update := UserUpdate{FailedLogins: &failed}

	locked := failed >= e.config.Lockout.Threshold
	if locked {
		until := time.Now().Add(e.config.Lockout.Duration)
		update.LockedUntil = &until
	}

	if err := e.userStore.UpdateUser(ctx, user.UserID, update); err != nil {
		return err
	}

	if locked {
		e.metricInc(MetricLoginLockout)
		e.emitAudit(ctx, auditEventLoginLockout, false, user.UserID, "", ErrAccountLocked, func() map[string]string {
			return map[string]string{
				"reason":          reason,
				"failed_attempts": strconv.Itoa(failed),
			}
		})
	} else {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason":          reason,
				"failed_attempts": strconv.Itoa(failed),
			}
		})
	}

	return ErrInvalidCredentials
}

func (e *Engine) noteThrottledFailure(ctx context.Context, identifier, ip string) {
	if e.rateLimiter == nil {
		return
	}
	_ = e.rateLimiter.IncrementLogin(ctx, identifier, ip)
}

// activeLockout reports whether the account is inside its lockout window.
func activeLockout(user UserRecord, now time.Time) error {
	if !user.LockedUntil.IsZero() && now.Before(user.LockedUntil) {
		return &LockoutError{Until: user.LockedUntil}
	}
	return nil
}
