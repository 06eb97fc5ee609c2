package authgate

import (
	"errors"

	"github.com/arcweld/authgate/internal/audit"
	"github.com/arcweld/authgate/internal/rate"
	"github.com/arcweld/authgate/internal/stores"
	"github.com/arcweld/authgate/jwt"
	"github.com/arcweld/authgate/password"
	"github.com/arcweld/authgate/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use: Build succeeds
// at most once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userStore UserStore
	notifier  Notifier
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with [defaultConfig] values.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Key material is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client used for sessions, challenges, and
// throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the durable account backend. Required.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.userStore = store
	return b
}

// WithNotifier sets the out-of-band delivery channel for OTPs,
// verification links, and reset links. Optional; without it, flows that
// must deliver a secret return it to the caller in development mode.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the audit event consumer. Audit emission still
// requires Config.Audit.Enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process metrics system.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate-latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userStore == nil {
		return nil, errors.New("user store required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		userStore: b.userStore,
		notifier:  b.notifier,
	}

	engine.sessionStore = session.NewStore(
		b.redis,
		cfg.Session.RedisPrefix,
		cfg.Session.SlidingExpiration,
		cfg.Session.JitterEnabled,
		cfg.Session.JitterRange,
	)

	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableLoginThrottle: cfg.Rate.EnableLoginThrottle,
		EnableIPThrottle:    cfg.Rate.EnableIPThrottle,
		MaxLoginAttempts:    cfg.Rate.MaxLoginAttempts,
		LoginWindow:         cfg.Rate.LoginWindow,
		EnableOTPThrottle:   cfg.Rate.EnableOTPThrottle,
		MaxOTPIssues:        cfg.Rate.MaxOTPIssues,
		OTPWindow:           cfg.Rate.OTPWindow,
		EnableResetThrottle: cfg.Rate.EnableResetThrottle,
		MaxResetRequests:    cfg.Rate.MaxResetRequests,
		ResetWindow:         cfg.Rate.ResetWindow,
	})

	engine.resetStore = stores.NewPasswordResetStore(b.redis, cfg.Session.RedisPrefix+":pr")
	engine.otpStore = stores.NewOTPStore(b.redis, cfg.Session.RedisPrefix+":otp")
	engine.verificationStore = stores.NewVerificationStore(b.redis, cfg.Session.RedisPrefix+":vf")
	engine.revocationStore = stores.NewRevocationStore(b.redis, cfg.Session.RedisPrefix+":rv")

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	engine.metrics = NewMetrics(cfg.Metrics)
	engine.totp = newTOTPManager(cfg.TOTP)

	ph, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		ChallengeTTL:  cfg.Token.ChallengeTTL,
		SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}
