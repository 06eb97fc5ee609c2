package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/arcweld/authgate/jwt"
	"github.com/arcweld/authgate/session"
)

// Validate authenticates an access token and returns who it belongs to.
// This is the hot path; with the session check disabled it touches nothing
// but the signature, and even with it enabled it does a single read-only
// Redis GET.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	result, err := e.validate(ctx, accessToken)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	if err != nil {
		e.metricInc(MetricValidateRejected)
		return nil, err
	}
	e.metricInc(MetricValidateSuccess)
	return result, nil
}

func (e *Engine) validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		if jwt.IsExpired(err) {
			return nil, ErrTokenExpired
		}
		return nil, ErrUnauthorized
	}

	if e.revocationStore != nil {
		revoked, err := e.revocationStore.IsRevoked(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrUnauthorized
		}
	}

	if e.config.Security.SessionCheckOnValidate && e.sessionStore != nil {
		sess, err := e.sessionStore.GetReadOnly(ctx, claims.SID)
		if err != nil {
			if errors.Is(err, session.ErrRedisUnavailable) {
				return nil, errors.Join(ErrInternal, err)
			}
			return nil, ErrUnauthorized
		}
		if !sess.Valid || time.Now().Unix() > sess.ExpiresAt {
			return nil, ErrUnauthorized
		}
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return &AuthResult{
		UserID:    claims.UID,
		SessionID: claims.SID,
		ExpiresAt: expiresAt,
	}, nil
}
