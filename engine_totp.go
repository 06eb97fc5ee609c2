package authgate

import (
	"context"
	"encoding/base32"
	"errors"
	"time"
)

// ProvisionTOTP generates a fresh TOTP secret for the user and stores it
// in a pending state. The enrollment only becomes active after the first
// successful [Engine.ConfirmTOTPSetup]; calling ProvisionTOTP again before
// that replaces the pending secret.
func (e *Engine) ProvisionTOTP(ctx context.Context, userID string) (*TOTPProvision, error) {
	if e == nil || e.totp == nil || e.userStore == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrUserNotFound
	}

	user, err := e.userStore.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	raw, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, errors.Join(ErrInternal, err)
	}

	disabled := false
	update := UserUpdate{
		TOTPSecret:  &raw,
		TOTPEnabled: &disabled,
	}
	if err := e.userStore.UpdateUser(ctx, user.UserID, update); err != nil {
		return nil, err
	}

	account := user.Identifier
	if account == "" {
		account = user.UserID
	}
	key, err := e.totp.ProvisionKey(raw, account)
	if err != nil {
		return nil, errors.Join(ErrInternal, err)
	}
	qr, err := enrollmentQR(key, totpQRSize)
	if err != nil {
		return nil, errors.Join(ErrInternal, err)
	}

	e.emitAudit(ctx, auditEventTOTPSetupRequested, true, user.UserID, "", nil, nil)

	return &TOTPProvision{SecretBase32: secretBase32, URI: key.URL(), QRCodePNG: qr}, nil
}

// ConfirmTOTPSetup verifies the first code from the authenticator app and
// activates the pending enrollment. Until this succeeds the account keeps
// logging in without a second factor.
func (e *Engine) ConfirmTOTPSetup(ctx context.Context, userID, code string) error {
	if e == nil || e.totp == nil || e.userStore == nil {
		return ErrEngineNotReady
	}

	user, err := e.userStore.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if len(user.TOTPSecret) == 0 {
		return ErrTOTPNotEnabled
	}

	now := time.Now()
	ok, counter, err := e.totp.VerifyCode(totpSecretBase32(user.TOTPSecret), code, now)
	if err != nil {
		return errors.Join(ErrInternal, err)
	}
	if !ok {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, user.UserID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "totp_setup_mismatch"}
		})
		return ErrInvalidCredentials
	}

	enabled := true
	update := UserUpdate{
		TOTPEnabled:  &enabled,
		TOTPLastUsed: &counter,
	}
	if err := e.userStore.UpdateUser(ctx, user.UserID, update); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventTOTPEnabled, true, user.UserID, "", nil, nil)
	return nil
}

// DisableTOTP removes the second factor from the account. The current code
// is required so a stolen session alone cannot downgrade the account.
func (e *Engine) DisableTOTP(ctx context.Context, userID, code string) error {
	if e == nil || e.totp == nil || e.userStore == nil {
		return ErrEngineNotReady
	}

	user, err := e.userStore.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TOTPEnabled {
		return ErrTOTPNotEnabled
	}

	if _, err := e.verifyTOTPForUser(user, code, time.Now()); err != nil {
		e.metricInc(MetricMFAFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, user.UserID, "", err, func() map[string]string {
			return map[string]string{"reason": "totp_disable_mismatch"}
		})
		return err
	}

	disabled := false
	var empty []byte
	var zero int64
	update := UserUpdate{
		TOTPEnabled:  &disabled,
		TOTPSecret:   &empty,
		TOTPLastUsed: &zero,
	}
	if err := e.userStore.UpdateUser(ctx, user.UserID, update); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventTOTPDisabled, true, user.UserID, "", nil, nil)
	return nil
}

// verifyTOTPForUser checks a code against the user's enrolled secret and
// returns the matched time-step counter. A counter at or below the last
// accepted one is a replay and is rejected even though the code itself is
// still inside its validity window.
func (e *Engine) verifyTOTPForUser(user UserRecord, code string, now time.Time) (int64, error) {
	if !user.TOTPEnabled || len(user.TOTPSecret) == 0 {
		return 0, ErrTOTPNotEnabled
	}

	ok, counter, err := e.totp.VerifyCode(totpSecretBase32(user.TOTPSecret), code, now)
	if err != nil {
		return 0, errors.Join(ErrInternal, err)
	}
	if !ok {
		return 0, ErrInvalidCredentials
	}
	if counter <= user.TOTPLastUsed {
		return 0, ErrInvalidCredentials
	}
	return counter, nil
}

func totpSecretBase32(secret []byte) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret)
}
