package authgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arcweld/authgate/internal"
	"github.com/arcweld/authgate/internal/stores"
)

// OTPChannel selects how a one-time code is delivered.
type OTPChannel string

const (
	OTPChannelEmail OTPChannel = "email"
	OTPChannelSMS   OTPChannel = "sms"
)

// SendOTP issues a short-lived numeric code to the identifier over the
// given channel. Issuing a new code replaces any outstanding one. Unknown
// identifiers are answered exactly like known ones so the call cannot be
// used to probe for accounts; in that case nothing is stored or sent.
//
// When no [Notifier] is configured and production mode is off, the code is
// returned to the caller for test harnesses. It is never returned
// otherwise.
func (e *Engine) SendOTP(ctx context.Context, identifier string, channel OTPChannel) (string, error) {
	if e == nil || e.otpStore == nil || e.userStore == nil {
		return "", ErrEngineNotReady
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckOTPIssue(ctx, identifier); err != nil {
			e.metricInc(MetricOTPRateLimited)
			e.emitAudit(ctx, auditEventOTPIssue, false, "", "", ErrRateLimited, func() map[string]string {
				return map[string]string{"identifier": identifier}
			})
			return "", ErrRateLimited
		}
	}

	user, err := e.userStore.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}

	code, err := internal.NewNumericCode(e.config.OTP.Digits)
	if err != nil {
		return "", errors.Join(ErrInternal, err)
	}

	record := &stores.ChallengeRecord{
		UserID:     user.UserID,
		SecretHash: internal.HashBytes([]byte(code)),
		ExpiresAt:  time.Now().Add(e.config.OTP.TTL).Unix(),
	}
	if err := e.otpStore.Save(ctx, identifier, record, e.config.OTP.TTL); err != nil {
		return "", errors.Join(ErrInternal, err)
	}

	if e.notifier != nil {
		// Delivery failure is deliberately non-fatal: the code is stored
		// and the caller can request another one.
		if err := e.deliverOTP(ctx, identifier, code, channel); err != nil {
			e.metricInc(MetricOTPFailure)
			e.emitAudit(ctx, auditEventOTPIssue, false, user.UserID, "", err, func() map[string]string {
				return map[string]string{
					"channel": string(channel),
					"reason":  "delivery_failed",
				}
			})
		}
	}

	e.metricInc(MetricOTPIssued)
	e.emitAudit(ctx, auditEventOTPIssue, true, user.UserID, "", nil, func() map[string]string {
		return map[string]string{"channel": string(channel)}
	})

	if e.notifier == nil && !e.config.Security.ProductionMode {
		return code, nil
	}
	return "", nil
}

// VerifyOTP consumes the outstanding code for the identifier and returns
// the user ID it authenticated. The code is single-use: a correct code is
// deleted atomically with the check, and a wrong one counts an attempt but
// leaves the stored code in place for retries.
func (e *Engine) VerifyOTP(ctx context.Context, identifier, code string) (string, error) {
	if e == nil || e.otpStore == nil {
		return "", ErrEngineNotReady
	}

	record, err := e.otpStore.Consume(ctx, identifier, internal.HashBytes([]byte(code)), e.config.OTP.MaxAttempts)
	if err != nil {
		mapped := mapOTPError(err)
		e.metricInc(MetricOTPFailure)
		e.emitAudit(ctx, auditEventOTPConfirm, false, "", "", mapped, func() map[string]string {
			return map[string]string{"identifier": identifier}
		})
		return "", mapped
	}

	e.metricInc(MetricOTPSuccess)
	e.emitAudit(ctx, auditEventOTPConfirm, true, record.UserID, "", nil, nil)
	return record.UserID, nil
}

func (e *Engine) deliverOTP(ctx context.Context, identifier, code string, channel OTPChannel) error {
	switch channel {
	case OTPChannelSMS:
		return e.notifier.SendSMS(ctx, identifier, fmt.Sprintf("Your verification code is %s", code))
	case OTPChannelEmail, "":
		return e.notifier.SendEmail(ctx, identifier, "Your verification code",
			fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
				code, int(e.config.OTP.TTL.Minutes())))
	default:
		return fmt.Errorf("unknown otp channel %q", channel)
	}
}

// mapOTPError folds OTP-store failures into the public error surface. A
// wrong, absent, expired, or burned code all read as bad credentials so
// the response cannot be used to learn the state of the outstanding code.
func mapOTPError(err error) error {
	switch {
	case errors.Is(err, stores.ErrSecretMismatch),
		errors.Is(err, stores.ErrRecordNotFound),
		errors.Is(err, stores.ErrAttemptsExceeded):
		return ErrInvalidCredentials
	default:
		return errors.Join(ErrInternal, err)
	}
}
