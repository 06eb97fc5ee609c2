package authgate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

/*
====================================
CONFIG LINT
====================================
*/

// LintSeverity grades a lint warning. Lint never blocks Build; AsError
// lets deployments promote a severity threshold to a startup failure.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is one advisory finding about a configuration.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintWarnings is the result of [Config.Lint].
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the warnings at or above the given severity.
func (ws LintWarnings) BySeverity(min LintSeverity) LintWarnings {
	var out LintWarnings
	for _, w := range ws {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError collapses warnings at or above the given severity into a single
// error, or nil when there are none.
func (ws LintWarnings) AsError(min LintSeverity) error {
	matched := ws.BySeverity(min)
	if len(matched) == 0 {
		return nil
	}
	parts := make([]string, 0, len(matched))
	for _, w := range matched {
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message))
	}
	return errors.New(strings.Join(parts, "; "))
}

// Lint reports advisory findings that Validate deliberately allows:
// settings that are legal but weaken the security posture. Intended for
// startup logs and deployment checks.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code string, severity LintSeverity, format string, args ...any) {
		ws = append(ws, LintWarning{Code: code, Severity: severity, Message: fmt.Sprintf(format, args...)})
	}

	if c.Token.Leeway > time.Minute {
		add("leeway_large", LintWarn, "Token.Leeway %s widens every token's acceptance window", c.Token.Leeway)
	}
	if c.Token.AccessTTL > 30*time.Minute {
		add("access_ttl_long", LintWarn, "Token.AccessTTL %s delays revocation taking effect", c.Token.AccessTTL)
	}
	if c.Token.RefreshTTL > 30*24*time.Hour {
		add("refresh_ttl_long", LintWarn, "Token.RefreshTTL %s keeps stolen refresh tokens usable for a long time", c.Token.RefreshTTL)
	}
	if c.Token.SigningMethod == "hs256" {
		add("signing_hs256", LintInfo, "hs256 shares one secret between signer and verifier; prefer ed25519")
	}

	if c.Password.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn, "Password.Memory %d KB is below the 64 MB argon2id recommendation", c.Password.Memory)
	}

	if !c.Rate.EnableLoginThrottle && !c.Rate.EnableOTPThrottle && !c.Rate.EnableResetThrottle {
		add("throttles_disabled", LintInfo, "no Redis throttles enabled; only the lockout state machine limits guessing")
	}

	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit pipeline is off; security events leave no trail")
	}

	if !c.Security.SessionCheckOnValidate {
		add("session_check_disabled", LintWarn, "Validate trusts signatures alone; revoked sessions pass until the access token expires")
	}
	if !c.Security.RequireSecureCookies {
		add("insecure_cookies", LintHigh, "cookies without the Secure attribute can leak tokens over plaintext HTTP")
	}
	if c.Security.ProductionMode && !c.Security.SessionCheckOnValidate {
		add("production_session_check_off", LintHigh, "ProductionMode with SessionCheckOnValidate off contradicts the hardened posture")
	}

	return ws
}
