package authgate

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/arcweld/authgate/internal"
	"github.com/arcweld/authgate/internal/stores"
)

// RequestPasswordReset starts a reset for the identifier. The response is
// identical whether or not the account exists; for unknown identifiers a
// small random delay stands in for the work a real request does and
// nothing is stored or sent.
//
// When no [Notifier] is configured and production mode is off, the raw
// reset token is returned to the caller for test harnesses and embedding
// transports that deliver it themselves. It is never returned otherwise.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) (string, error) {
	if e == nil || e.resetStore == nil || e.userStore == nil {
		return "", ErrEngineNotReady
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckResetRequest(ctx, identifier); err != nil {
			e.metricInc(MetricPasswordResetFailure)
			return "", ErrRateLimited
		}
	}

	user, err := e.userStore.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = sleepEnumerationDelay(ctx)
			e.metricInc(MetricPasswordResetRequest)
			e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "", nil, func() map[string]string {
				return map[string]string{"known_identifier": "false"}
			})
			return "", nil
		}
		return "", err
	}

	resetID, err := internal.NewSessionID()
	if err != nil {
		return "", errors.Join(ErrInternal, err)
	}
	secret, err := internal.NewSecret()
	if err != nil {
		return "", errors.Join(ErrInternal, err)
	}
	token, err := internal.EncodeOpaqueToken(resetID.String(), secret)
	if err != nil {
		return "", errors.Join(ErrInternal, err)
	}

	record := &stores.ChallengeRecord{
		UserID:     user.UserID,
		SecretHash: internal.HashSecret(secret),
		ExpiresAt:  time.Now().Add(e.config.PasswordReset.ResetTTL).Unix(),
	}
	if err := e.resetStore.Save(ctx, resetID.String(), record, e.config.PasswordReset.ResetTTL); err != nil {
		return "", errors.Join(ErrInternal, err)
	}

	if e.notifier != nil {
		body := fmt.Sprintf("Use this token to reset your password: %s\nIt expires in %d minutes.",
			token, int(e.config.PasswordReset.ResetTTL.Minutes()))
		// Delivery failure is deliberately non-fatal: the token is stored
		// and the request can be repeated.
		if err := e.notifier.SendEmail(ctx, identifier, "Password reset", body); err != nil {
			e.metricInc(MetricPasswordResetFailure)
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, user.UserID, "", err, func() map[string]string {
				return map[string]string{"reason": "delivery_failed"}
			})
		}
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.UserID, "", nil, nil)

	if e.notifier == nil && !e.config.Security.ProductionMode {
		return token, nil
	}
	return "", nil
}

// CompletePasswordReset consumes a reset token and installs the new
// password. Completing a reset clears any lockout and revokes every
// session the user had; the credential change is the proof of account
// ownership that ends both.
func (e *Engine) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	if e == nil || e.resetStore == nil || e.userStore == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	if len(newPassword) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}

	resetID, secret, err := internal.DecodeOpaqueToken(token)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		return ErrUnauthorized
	}

	record, err := e.resetStore.Consume(ctx, resetID, internal.HashSecret(secret), e.config.PasswordReset.MaxAttempts)
	if err != nil {
		mapped := mapResetError(err)
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", "", mapped, nil)
		return mapped
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return errors.Join(ErrInternal, err)
	}

	var zeroFailed int
	var zeroTime time.Time
	update := UserUpdate{
		PasswordHash: &hash,
		FailedLogins: &zeroFailed,
		LockedUntil:  &zeroTime,
	}
	if err := e.userStore.UpdateUser(ctx, record.UserID, update); err != nil {
		return err
	}

	if err := e.sessionStore.InvalidateAllForUser(ctx, record.UserID); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, record.UserID, "", nil, nil)
	return nil
}

// mapResetError folds reset-store failures into the public error surface.
// A tampered, absent, or burned token is indistinguishable from an
// expired one.
func mapResetError(err error) error {
	switch {
	case errors.Is(err, stores.ErrSecretMismatch),
		errors.Is(err, stores.ErrRecordNotFound),
		errors.Is(err, stores.ErrAttemptsExceeded):
		return ErrTokenExpired
	default:
		return errors.Join(ErrInternal, err)
	}
}

// sleepEnumerationDelay blocks for a small random interval so the
// unknown-identifier path takes about as long as issuing a real token.
func sleepEnumerationDelay(ctx context.Context) error {
	minMs := int64(20)
	maxMs := int64(40)
	span := maxMs - minMs + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return err
	}

	delay := time.Duration(minMs+n.Int64()) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
