package authgate

import (
	"context"
	"errors"
)

// ChangePassword replaces the user's password after verifying the current
// one. Every session the user had is revoked; the caller is expected to
// log in again with the new credential.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if e == nil || e.userStore == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	user, err := e.userStore.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := e.passwordHash.Verify(currentPassword, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChange, false, user.UserID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if len(newPassword) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return errors.Join(ErrInternal, err)
	}

	if err := e.userStore.UpdateUser(ctx, user.UserID, UserUpdate{PasswordHash: &hash}); err != nil {
		return err
	}

	if err := e.sessionStore.InvalidateAllForUser(ctx, user.UserID); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChange, true, user.UserID, "", nil, nil)
	return nil
}
