package authgate

import (
	"net/http"
	"time"
)

// CookiePolicy carries the configuration-derived attributes transport
// integrations should apply to the refresh token cookie.
type CookiePolicy struct {
	Secure     bool
	SameSite   http.SameSite
	RefreshTTL time.Duration
}

// CookiePolicy returns the cookie attributes implied by the security and
// token configuration.
func (e *Engine) CookiePolicy() CookiePolicy {
	if e == nil {
		return CookiePolicy{}
	}
	return CookiePolicy{
		Secure:     e.config.Security.RequireSecureCookies,
		SameSite:   e.config.Security.SameSitePolicy,
		RefreshTTL: e.config.Token.RefreshTTL,
	}
}

// PasswordConfigReport summarizes the Argon2id cost parameters in effect.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// SecurityReport is a point-in-time snapshot of the engine's security
// posture, derived entirely from configuration. It is safe to log or expose
// on an internal admin endpoint: it carries no key material.
type SecurityReport struct {
	ProductionMode         bool
	SigningMethod          string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	SessionCheckOnValidate bool
	StrictDeviceMatch      bool

	LockoutThreshold int
	LockoutDuration  time.Duration

	Password PasswordConfigReport

	LoginThrottleActive bool
	OTPThrottleActive   bool
	ResetThrottleActive bool

	AuditActive   bool
	MetricsActive bool
}

// SecurityReport describes the running configuration's security posture.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config
	return SecurityReport{
		ProductionMode:         c.Security.ProductionMode,
		SigningMethod:          c.Token.SigningMethod,
		AccessTTL:              c.Token.AccessTTL,
		RefreshTTL:             c.Token.RefreshTTL,
		SessionCheckOnValidate: c.Security.SessionCheckOnValidate,
		StrictDeviceMatch:      c.Security.StrictDeviceMatch,

		LockoutThreshold: c.Lockout.Threshold,
		LockoutDuration:  c.Lockout.Duration,

		Password: PasswordConfigReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
			MinLength:   c.Password.MinLength,
		},

		LoginThrottleActive: c.Rate.EnableLoginThrottle || c.Rate.EnableIPThrottle,
		OTPThrottleActive:   c.Rate.EnableOTPThrottle,
		ResetThrottleActive: c.Rate.EnableResetThrottle,

		AuditActive:   c.Audit.Enabled,
		MetricsActive: c.Metrics.Enabled,
	}
}
