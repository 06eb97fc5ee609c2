package authgate

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"math"
	"net/http"
	"time"
)

// Config is the complete engine configuration. Zero values are filled from
// [defaultConfig] by the Builder; a Config is treated as immutable after
// Build.
type Config struct {
	Token         TokenConfig
	Session       SessionConfig
	Password      PasswordConfig
	Lockout       LockoutConfig
	TOTP          TOTPConfig
	OTP           OTPConfig
	PasswordReset PasswordResetConfig
	Registration  RegistrationConfig
	Rate          RateConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Security      SecurityConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls the signed bearer tokens and the opaque refresh
// token lifetime.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ChallengeTTL  time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	RedisPrefix       string
	SlidingExpiration bool
	JitterEnabled     bool
	JitterRange       time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters plus the minimum length
// the engine enforces before hashing.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	UpgradeOnLogin bool
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig drives the failed-login state machine. After Threshold
// consecutive failures the account locks for Duration; any success resets
// the counter.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

/*
====================================
TOTP CONFIG
====================================
*/

type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	Skew      int
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls out-of-band one-time codes sent by email or SMS.
type OTPConfig struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
}

// PasswordResetConfig controls the reset challenge lifecycle.
type PasswordResetConfig struct {
	ResetTTL    time.Duration
	MaxAttempts int
}

// RegistrationConfig controls account creation. IdentityField names the
// credential used for lookups; it is informational for integrators and
// surfaces in audit metadata. Verification is on by default: new accounts
// start unverified and receive a verification token. Turning it off is an
// explicit opt-out for deployments that verify out of band.
type RegistrationConfig struct {
	IdentityField       string
	RequireVerification bool
	VerificationTTL     time.Duration
}

/*
====================================
RATE CONFIG
====================================
*/

// RateConfig enables the optional Redis fixed-window throttles that sit in
// front of the lockout state machine. All disabled by default; the lockout
// machine alone satisfies the baseline brute-force posture.
type RateConfig struct {
	EnableLoginThrottle bool
	EnableIPThrottle    bool
	MaxLoginAttempts    int
	LoginWindow         time.Duration

	EnableOTPThrottle bool
	MaxOTPIssues      int
	OTPWindow         time.Duration

	EnableResetThrottle bool
	MaxResetRequests    int
	ResetWindow         time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds cross-cutting hardening switches. ProductionMode
// tightens Validate and disables development conveniences such as raw
// verification tokens in results.
type SecurityConfig struct {
	ProductionMode bool

	// StrictDeviceMatch upgrades rotation-time IP/fingerprint changes
	// from audit-only to hard rejection.
	StrictDeviceMatch bool

	// SessionCheckOnValidate makes Validate consult the session row in
	// addition to the JWT signature, so revoked sessions fail closed.
	SessionCheckOnValidate bool

	RequireSecureCookies bool
	SameSitePolicy       http.SameSite
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration [New] starts from. Signing keys
// are not included; set Token.PrivateKey and Token.PublicKey (or switch to
// hs256 with a shared key) before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

// GenerateEd25519Keys returns a fresh signing key pair in the raw form
// Token.PrivateKey and Token.PublicKey expect. Meant for tests and demos;
// production deployments load persisted keys so tokens survive restarts.
func GenerateEd25519Keys() (private, public []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return priv, pub, nil
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			ChallengeTTL:  5 * time.Minute,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:       "ag",
			SlidingExpiration: false,
			JitterEnabled:     true,
			JitterRange:       30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:    "authgate",
			Digits:    6,
			Period:    30,
			Algorithm: "SHA1",
			Skew:      1,
		},
		OTP: OTPConfig{
			Digits:      6,
			TTL:         5 * time.Minute,
			MaxAttempts: 5,
		},
		PasswordReset: PasswordResetConfig{
			ResetTTL:    60 * time.Minute,
			MaxAttempts: 5,
		},
		Registration: RegistrationConfig{
			IdentityField:       "email",
			RequireVerification: true,
			VerificationTTL:     24 * time.Hour,
		},
		Rate: RateConfig{
			EnableLoginThrottle: false,
			EnableIPThrottle:    false,
			MaxLoginAttempts:    20,
			LoginWindow:         time.Minute,
			EnableOTPThrottle:   false,
			MaxOTPIssues:        5,
			OTPWindow:           15 * time.Minute,
			EnableResetThrottle: false,
			MaxResetRequests:    5,
			ResetWindow:         time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode:         false,
			StrictDeviceMatch:      false,
			SessionCheckOnValidate: true,
			RequireSecureCookies:   true,
			SameSitePolicy:         http.SameSiteStrictMode,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks internal consistency. The Builder calls it before
// constructing an Engine; callers mutating a Config by hand can call it
// directly.
func (c *Config) Validate() error {
	// Token
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.ChallengeTTL <= 0 {
		return errors.New("Token ChallengeTTL must be > 0")
	}
	if c.Token.SigningMethod != "ed25519" && c.Token.SigningMethod != "hs256" {
		return errors.New("unsupported Token signing method")
	}
	if c.Token.SigningMethod == "ed25519" && len(c.Token.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.Token.SigningMethod == "ed25519" && len(c.Token.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.Token.SigningMethod == "hs256" && len(c.Token.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.Token.Leeway < 0 {
		return errors.New("Token Leeway must be >= 0")
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.JitterRange < 0 {
		return errors.New("Session JitterRange must be >= 0")
	}
	if c.Session.JitterRange > time.Duration((math.MaxInt64-1)/2) {
		return errors.New("Session JitterRange is too large")
	}
	if c.Session.JitterEnabled && c.Session.JitterRange <= 0 {
		return errors.New("Session JitterRange must be > 0 when JitterEnabled is true")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	// TOTP
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 10 {
		return errors.New("TOTP Digits must be in [6, 10]")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must be >= 0")
	}

	// OTP
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be in [4, 10]")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}

	// Password reset
	if c.PasswordReset.ResetTTL <= 0 {
		return errors.New("PasswordReset ResetTTL must be > 0")
	}
	if c.PasswordReset.MaxAttempts <= 0 {
		return errors.New("PasswordReset MaxAttempts must be > 0")
	}

	// Registration
	if c.Registration.IdentityField == "" {
		return errors.New("Registration IdentityField must not be empty")
	}
	if c.Registration.RequireVerification && c.Registration.VerificationTTL <= 0 {
		return errors.New("Registration VerificationTTL must be > 0 when verification is required")
	}

	// Rate
	if c.Rate.EnableLoginThrottle || c.Rate.EnableIPThrottle {
		if c.Rate.MaxLoginAttempts <= 0 || c.Rate.LoginWindow <= 0 {
			return errors.New("Rate login throttle requires MaxLoginAttempts and LoginWindow > 0")
		}
	}
	if c.Rate.EnableOTPThrottle && (c.Rate.MaxOTPIssues <= 0 || c.Rate.OTPWindow <= 0) {
		return errors.New("Rate OTP throttle requires MaxOTPIssues and OTPWindow > 0")
	}
	if c.Rate.EnableResetThrottle && (c.Rate.MaxResetRequests <= 0 || c.Rate.ResetWindow <= 0) {
		return errors.New("Rate reset throttle requires MaxResetRequests and ResetWindow > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.Security.ProductionMode {
		if c.Token.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires Token AccessTTL <= 15m")
		}
		if c.Token.RefreshTTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires Token RefreshTTL <= 30d")
		}
		if c.Token.SigningMethod == "hs256" && len(c.Token.PrivateKey) < 32 {
			return errors.New("ProductionMode requires hs256 key length >= 256 bits")
		}
		if c.Password.Memory < 65536 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if c.Password.Time < 2 {
			return errors.New("ProductionMode requires Password Time >= 2")
		}
		if c.Password.KeyLength < 32 {
			return errors.New("ProductionMode requires Password KeyLength >= 32")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("ProductionMode requires Password SaltLength >= 16")
		}
		if c.TOTP.Skew > 2 {
			return errors.New("ProductionMode requires TOTP Skew <= 2")
		}
		if c.OTP.TTL > 15*time.Minute {
			return errors.New("ProductionMode requires OTP TTL <= 15m")
		}
		if !c.Security.RequireSecureCookies {
			return errors.New("ProductionMode requires RequireSecureCookies")
		}
	}

	return nil
}
