package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/arcweld/authgate/internal"
	"github.com/arcweld/authgate/internal/stores"
	"github.com/google/uuid"
)

// Register creates an account for the identifier/password pair. A taken
// identifier returns [ErrCredentialConflict]; the conflict check is the
// store's, so two concurrent registrations cannot both win.
//
// When Registration.RequireVerification is set, a single-use verification
// token is issued and delivered through the Notifier. Without a Notifier
// outside production mode the raw token is returned in the result so
// integration code can deliver it.
func (e *Engine) Register(ctx context.Context, identifier, pw string) (*RegisterResult, error) {
	if e == nil || e.passwordHash == nil || e.userStore == nil {
		return nil, ErrEngineNotReady
	}
	if identifier == "" {
		return nil, ErrInvalidCredentials
	}
	if len(pw) < e.config.Password.MinLength {
		return nil, ErrPasswordPolicy
	}

	hash, err := e.passwordHash.Hash(pw)
	if err != nil {
		return nil, ErrPasswordPolicy
	}

	user, err := e.userStore.CreateUser(ctx, CreateUserInput{
		Identifier:   identifier,
		PasswordHash: hash,
		Verified:     !e.config.Registration.RequireVerification,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateIdentifier) {
			e.metricInc(MetricRegisterConflict)
			e.emitAudit(ctx, auditEventRegisterConflict, false, "", "", ErrCredentialConflict, func() map[string]string {
				return map[string]string{
					e.config.Registration.IdentityField: identifier,
				}
			})
			return nil, ErrCredentialConflict
		}
		return nil, err
	}

	result := &RegisterResult{UserID: user.UserID}

	if e.config.Registration.RequireVerification {
		token, err := e.issueVerificationToken(ctx, user)
		if err != nil {
			return nil, err
		}
		if e.notifier == nil && !e.config.Security.ProductionMode {
			result.VerificationToken = token
		}
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, user.UserID, "", nil, func() map[string]string {
		return map[string]string{
			e.config.Registration.IdentityField: identifier,
		}
	})

	return result, nil
}

// RequestEmailVerification re-issues a verification token for an
// unverified account. Unknown identifiers and already verified accounts
// succeed silently so the endpoint cannot be used to probe for accounts.
func (e *Engine) RequestEmailVerification(ctx context.Context, identifier string) (string, error) {
	if e == nil || e.verificationStore == nil {
		return "", ErrEngineNotReady
	}

	user, err := e.userStore.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}
	if user.Verified {
		return "", nil
	}

	token, err := e.issueVerificationToken(ctx, user)
	if err != nil {
		return "", err
	}
	if e.notifier == nil && !e.config.Security.ProductionMode {
		return token, nil
	}
	return "", nil
}

// VerifyEmail consumes a verification token and flips the account's
// verified flag. Tokens are single-use; unknown, expired, and already
// consumed tokens all return [ErrUnauthorized].
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if e == nil || e.verificationStore == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrUnauthorized
	}

	record, err := e.verificationStore.Consume(ctx, token, internal.HashBytes([]byte(token)), 1)
	if err != nil {
		e.metricInc(MetricVerificationFailure)
		switch {
		case errors.Is(err, stores.ErrRecordNotFound),
			errors.Is(err, stores.ErrSecretMismatch),
			errors.Is(err, stores.ErrAttemptsExceeded):
			e.emitAudit(ctx, auditEventVerificationConfirm, false, "", "", ErrUnauthorized, nil)
			return ErrUnauthorized
		default:
			return err
		}
	}

	verified := true
	if err := e.userStore.UpdateUser(ctx, record.UserID, UserUpdate{Verified: &verified}); err != nil {
		e.metricInc(MetricVerificationFailure)
		return err
	}

	e.metricInc(MetricVerificationSuccess)
	e.emitAudit(ctx, auditEventVerificationConfirm, true, record.UserID, "", nil, nil)
	return nil
}

// issueVerificationToken stores a new verification challenge and delivers
// it when a Notifier is configured. The token is a v4 UUID keyed and
// hash-checked by its own value; the record carries only the user ID.
func (e *Engine) issueVerificationToken(ctx context.Context, user UserRecord) (string, error) {
	token := uuid.New().String()

	record := &stores.ChallengeRecord{
		UserID:     user.UserID,
		SecretHash: internal.HashBytes([]byte(token)),
		ExpiresAt:  time.Now().Add(e.config.Registration.VerificationTTL).Unix(),
	}
	if err := e.verificationStore.Save(ctx, token, record, e.config.Registration.VerificationTTL); err != nil {
		return "", err
	}

	e.metricInc(MetricVerificationRequest)
	e.emitAudit(ctx, auditEventVerificationRequest, true, user.UserID, "", nil, nil)

	if e.notifier != nil {
		// Delivery failure is deliberately non-fatal: the account exists
		// and the token can be re-requested.
		_ = e.notifier.SendEmail(ctx, user.Identifier, "Verify your account", token)
	}

	return token, nil
}
