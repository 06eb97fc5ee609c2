package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/arcweld/authgate/jwt"
)

// Logout ends the session behind the given access token. The access token
// itself goes on the revocation list for the remainder of its lifetime so
// it cannot be replayed through [Engine.Validate] before it expires.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	if e == nil || e.jwtManager == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		if jwt.IsExpired(err) {
			return ErrTokenExpired
		}
		return ErrUnauthorized
	}

	if e.revocationStore != nil && claims.ExpiresAt != nil {
		// When the per-call session check is off, this list is the only
		// thing keeping the token out of Validate for the rest of its
		// lifetime. A failed write must surface, not leave the token live.
		if err := e.revocationStore.Revoke(ctx, accessToken, claims.ExpiresAt.Time); err != nil {
			e.emitAudit(ctx, auditEventLogoutSession, false, claims.UID, claims.SID, err, nil)
			return errors.Join(ErrInternal, err)
		}
		e.metricInc(MetricTokenRevoked)
	}

	if err := e.sessionStore.Invalidate(ctx, claims.SID); err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, claims.UID, claims.SID, nil, nil)
	return nil
}

// LogoutAll revokes every session the user has, including the one the
// caller is on.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if err := e.RevokeAllUserSessions(ctx, userID); err != nil {
		return err
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, nil)
	return nil
}

// RevokeSession invalidates one session by ID. Revoking a session that is
// already invalid or gone is not an error.
func (e *Engine) RevokeSession(ctx context.Context, sessionID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	if err := e.sessionStore.Invalidate(ctx, sessionID); err != nil {
		return err
	}
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoked, true, "", sessionID, nil, nil)
	return nil
}

// RevokeAllUserSessions marks every session of the user invalid.
// Idempotent: a user with no sessions revokes to the same state.
func (e *Engine) RevokeAllUserSessions(ctx context.Context, userID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrUserNotFound
	}
	if err := e.sessionStore.InvalidateAllForUser(ctx, userID); err != nil {
		return err
	}
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventAllUserSessionsRevoked, true, userID, "", nil, nil)
	return nil
}

// CleanupRevocations sweeps the token revocation list and drops entries
// that lost their expiry. Redis already evicts entries lazily; this exists
// for operators who want a periodic sweep. Returns the number removed.
func (e *Engine) CleanupRevocations(ctx context.Context) (int, error) {
	if e == nil || e.revocationStore == nil {
		return 0, ErrEngineNotReady
	}
	return e.revocationStore.Cleanup(ctx)
}

// Sessions lists the user's sessions, including invalidated rows that
// have not yet expired out of Redis. The order is unspecified.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	rows, err := e.sessionStore.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]SessionInfo, 0, len(rows))
	for _, sess := range rows {
		out = append(out, SessionInfo{
			SessionID:    sess.SessionID,
			CreatedAt:    time.Unix(sess.CreatedAt, 0),
			ExpiresAt:    time.Unix(sess.ExpiresAt, 0),
			LastActiveAt: time.Unix(sess.LastActiveAt, 0),
			Valid:        sess.Valid,
			IP:           sess.IP,
			UserAgent:    sess.UserAgent,
			Fingerprint:  sess.Fingerprint,
		})
	}
	return out, nil
}
