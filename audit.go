package authgate

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventLoginLockout           = "login_lockout"
	auditEventLoginRateLimited       = "login_rate_limited"
	auditEventMFAChallengeIssued     = "mfa_challenge_issued"
	auditEventMFASuccess             = "mfa_success"
	auditEventMFAFailure             = "mfa_failure"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshInvalid         = "refresh_invalid"
	auditEventRefreshReplay          = "refresh_replay"
	auditEventDeviceChange           = "device_change"
	auditEventRegisterSuccess        = "register_success"
	auditEventRegisterConflict       = "register_conflict"
	auditEventVerificationRequest    = "verification_request"
	auditEventVerificationConfirm    = "verification_confirm"
	auditEventOTPIssue               = "otp_issue"
	auditEventOTPConfirm             = "otp_confirm"
	auditEventPasswordResetRequest   = "password_reset_request"
	auditEventPasswordResetConfirm   = "password_reset_confirm"
	auditEventPasswordChange         = "password_change"
	auditEventTOTPSetupRequested     = "totp_setup_requested"
	auditEventTOTPEnabled            = "totp_enabled"
	auditEventTOTPDisabled           = "totp_disabled"
	auditEventLogoutSession          = "logout_session"
	auditEventLogoutAll              = "logout_all"
	auditEventSessionRevoked         = "session_revoked"
	auditEventAllUserSessionsRevoked = "all_user_sessions_revoked"
	auditEventSecurityBreach         = "security_breach"
)

// AuditErrorCode is the stable error vocabulary carried in audit events,
// decoupled from Go error strings.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrConflict           AuditErrorCode = "credential_conflict"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrSecurityBreach     AuditErrorCode = "security_breach"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrMFARequired        AuditErrorCode = "mfa_required"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrSecurityBreach):
		return auditErrSecurityBreach
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrTOTPNotEnabled):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrCredentialConflict),
		errors.Is(err, ErrDuplicateIdentifier):
		return auditErrConflict
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrMFARequired):
		return auditErrMFARequired
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	default:
		return auditErrInternal
	}
}
