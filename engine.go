package authgate

import (
	"context"
	"time"

	"github.com/arcweld/authgate/internal"
	"github.com/arcweld/authgate/internal/audit"
	"github.com/arcweld/authgate/internal/rate"
	"github.com/arcweld/authgate/internal/stores"
	"github.com/arcweld/authgate/jwt"
	"github.com/arcweld/authgate/password"
	"github.com/arcweld/authgate/session"
)

// Engine is the credential and session security core. It owns every
// authentication flow; callers bring a [UserStore] for durable accounts
// and a Redis client for everything ephemeral. Immutable after Build and
// safe for concurrent use.
type Engine struct {
	config            Config
	sessionStore      *session.Store
	rateLimiter       *rate.Limiter
	resetStore        *stores.PasswordResetStore
	otpStore          *stores.OTPStore
	verificationStore *stores.VerificationStore
	revocationStore   *stores.RevocationStore
	audit             *audit.Dispatcher
	metrics           *Metrics
	passwordHash      *password.Hasher
	totp              *totpManager
	jwtManager        *jwt.Manager
	userStore         UserStore
	notifier          Notifier
}

// Close drains and stops the audit dispatcher. Safe to call on a nil
// engine and safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded under
// backpressure since the engine was built.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// issueSessionTokens creates a session row for the user, binds the device
// metadata from ctx, and returns the access/refresh pair. The refresh
// token is base64url(sessionID || secret); only the secret's SHA-256 is
// stored.
func (e *Engine) issueSessionTokens(ctx context.Context, userID string) (*TokenPair, string, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, "", err
	}
	sessionID := sid.String()

	secret, err := internal.NewSecret()
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	lifetime := e.config.Token.RefreshTTL
	sess := &session.Session{
		SessionID:    sessionID,
		UserID:       userID,
		RefreshHash:  internal.HashSecret(secret),
		Valid:        true,
		CreatedAt:    now.Unix(),
		ExpiresAt:    now.Add(lifetime).Unix(),
		LastActiveAt: now.Unix(),
		IP:           clientIPFromContext(ctx),
		UserAgent:    userAgentFromContext(ctx),
		Fingerprint:  fingerprintFromContext(ctx),
	}

	if err := e.sessionStore.Save(ctx, sess, lifetime); err != nil {
		return nil, "", err
	}

	access, err := e.jwtManager.CreateAccess(userID, sessionID)
	if err != nil {
		return nil, "", err
	}

	refresh, err := internal.EncodeOpaqueToken(sessionID, secret)
	if err != nil {
		return nil, "", err
	}

	e.metricInc(MetricSessionCreated)

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, sessionID, nil
}

// recordSuccessfulLogin clears the lockout counters and stamps last-login
// metadata on the user record. Best-effort: a store failure here must not
// undo an already successful authentication.
func (e *Engine) recordSuccessfulLogin(ctx context.Context, userID string) error {
	now := time.Now()
	zero := 0
	var unlocked time.Time
	ip := clientIPFromContext(ctx)
	device := userAgentFromContext(ctx)

	return e.userStore.UpdateUser(ctx, userID, UserUpdate{
		FailedLogins:    &zero,
		LockedUntil:     &unlocked,
		LastLoginAt:     &now,
		LastLoginIP:     &ip,
		LastLoginDevice: &device,
	})
}
