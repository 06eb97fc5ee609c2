package internaldefs

import (
	authgate "github.com/arcweld/authgate"
)

// CounterDef binds a metric slot to its exported name and help text.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram slot to its exported name and help text.
type HistogramDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// CounterDefs is the single source of truth for counter naming across
// exporters. Prometheus and OTel render the same IDs under the same names.
var CounterDefs = []CounterDef{
	{ID: authgate.MetricLoginSuccess, Name: "authgate_login_success_total", Help: "Successful login attempts."},
	{ID: authgate.MetricLoginFailure, Name: "authgate_login_failure_total", Help: "Failed login attempts."},
	{ID: authgate.MetricLoginLockout, Name: "authgate_login_lockout_total", Help: "Login attempts refused by an active lockout or tripping one."},
	{ID: authgate.MetricLoginRateLimited, Name: "authgate_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authgate.MetricMFAChallengeIssued, Name: "authgate_mfa_challenge_issued_total", Help: "Login flows answered with an MFA challenge."},
	{ID: authgate.MetricMFASuccess, Name: "authgate_mfa_success_total", Help: "Successful TOTP verifications."},
	{ID: authgate.MetricMFAFailure, Name: "authgate_mfa_failure_total", Help: "Failed TOTP verifications."},
	{ID: authgate.MetricRefreshSuccess, Name: "authgate_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authgate.MetricRefreshFailure, Name: "authgate_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: authgate.MetricRefreshReplayDetected, Name: "authgate_refresh_replay_detected_total", Help: "Refresh tokens presented after rotation."},
	{ID: authgate.MetricRefreshExpired, Name: "authgate_refresh_expired_total", Help: "Refresh attempts on expired sessions."},
	{ID: authgate.MetricDeviceChangeObserved, Name: "authgate_device_change_observed_total", Help: "Rotations with changed device metadata."},
	{ID: authgate.MetricDeviceChangeRejected, Name: "authgate_device_change_rejected_total", Help: "Rotations rejected by strict device matching."},
	{ID: authgate.MetricRegisterSuccess, Name: "authgate_register_success_total", Help: "Successful registrations."},
	{ID: authgate.MetricRegisterConflict, Name: "authgate_register_conflict_total", Help: "Registrations rejected as duplicate."},
	{ID: authgate.MetricVerificationRequest, Name: "authgate_verification_request_total", Help: "Email verification requests."},
	{ID: authgate.MetricVerificationSuccess, Name: "authgate_verification_success_total", Help: "Successful email verifications."},
	{ID: authgate.MetricVerificationFailure, Name: "authgate_verification_failure_total", Help: "Failed email verifications."},
	{ID: authgate.MetricOTPIssued, Name: "authgate_otp_issued_total", Help: "One-time codes issued."},
	{ID: authgate.MetricOTPSuccess, Name: "authgate_otp_success_total", Help: "Successful one-time code verifications."},
	{ID: authgate.MetricOTPFailure, Name: "authgate_otp_failure_total", Help: "Failed one-time code verifications."},
	{ID: authgate.MetricOTPRateLimited, Name: "authgate_otp_rate_limited_total", Help: "Rate-limited one-time code issues."},
	{ID: authgate.MetricPasswordResetRequest, Name: "authgate_password_reset_request_total", Help: "Password reset requests."},
	{ID: authgate.MetricPasswordResetSuccess, Name: "authgate_password_reset_success_total", Help: "Completed password resets."},
	{ID: authgate.MetricPasswordResetFailure, Name: "authgate_password_reset_failure_total", Help: "Failed password reset completions."},
	{ID: authgate.MetricPasswordChangeSuccess, Name: "authgate_password_change_success_total", Help: "Successful password changes."},
	{ID: authgate.MetricPasswordChangeFailure, Name: "authgate_password_change_failure_total", Help: "Password changes with a wrong current password."},
	{ID: authgate.MetricSessionCreated, Name: "authgate_session_created_total", Help: "Created sessions."},
	{ID: authgate.MetricSessionRevoked, Name: "authgate_session_revoked_total", Help: "Session revocation operations."},
	{ID: authgate.MetricLogout, Name: "authgate_logout_total", Help: "Single-session logout operations."},
	{ID: authgate.MetricLogoutAll, Name: "authgate_logout_all_total", Help: "Logout-all operations."},
	{ID: authgate.MetricTokenRevoked, Name: "authgate_token_revoked_total", Help: "Access tokens placed on the revocation list."},
	{ID: authgate.MetricValidateSuccess, Name: "authgate_validate_success_total", Help: "Accepted access token validations."},
	{ID: authgate.MetricValidateRejected, Name: "authgate_validate_rejected_total", Help: "Rejected access token validations."},
}

// HistogramDefs lists the latency histograms the engine records.
var HistogramDefs = []HistogramDef{
	{ID: authgate.MetricValidateLatency, Name: "authgate_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the
// engine's fixed 8-bucket layout.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are metric-name-safe renderings of HistogramBounds
// for exporters that encode the bound into the series name.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the engine's
// fixed 8-bucket layout.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var sum uint64
	for i, v := range raw {
		sum += v
		out[i] = sum
	}
	return out
}
