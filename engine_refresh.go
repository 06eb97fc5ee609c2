package authgate

import (
	"context"
	"errors"

	"github.com/arcweld/authgate/internal"
	"github.com/arcweld/authgate/session"
)

// Refresh exchanges a refresh token for a new access/refresh pair. The
// rotation is destructive: the presented token is dead after this call
// whether or not the call succeeds past the compare-and-swap.
//
// A token that was already rotated is treated as evidence of theft. Every
// session belonging to the affected user is revoked and the caller gets
// [ErrSecurityBreach]; whichever side still holds the live token loses it
// too and has to authenticate again.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.sessionStore == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	sessionID, providedSecret, err := internal.DecodeOpaqueToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrUnauthorized
	}

	nextSecret, err := internal.NewSecret()
	if err != nil {
		return nil, errors.Join(ErrInternal, err)
	}

	sess, err := e.sessionStore.RotateRefreshHash(
		ctx,
		sessionID,
		internal.HashSecret(providedSecret),
		internal.HashSecret(nextSecret),
	)
	if err != nil {
		return nil, e.mapRotateFailure(ctx, sessionID, err)
	}

	if rejected := e.observeDeviceChange(ctx, sess); rejected {
		return nil, ErrUnauthorized
	}

	// Rotation succeeded, so the stored hash already points at the new
	// secret. Rebind the device metadata through the same compare-and-swap
	// guard: a revocation landing between the rotation and this write must
	// win, so an unguarded overwrite of the row is off the table. A guard
	// miss is fine; the caller's tokens stop working at the next check.
	err = e.sessionStore.UpdateDeviceMetadata(
		ctx,
		sessionID,
		internal.HashSecret(nextSecret),
		clientIPFromContext(ctx),
		userAgentFromContext(ctx),
		fingerprintFromContext(ctx),
	)
	if err != nil {
		return nil, errors.Join(ErrInternal, err)
	}

	access, err := e.jwtManager.CreateAccess(sess.UserID, sessionID)
	if err != nil {
		return nil, errors.Join(ErrInternal, err)
	}
	refresh, err := internal.EncodeOpaqueToken(sessionID, nextSecret)
	if err != nil {
		return nil, errors.Join(ErrInternal, err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, sess.UserID, sessionID, nil, nil)

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// mapRotateFailure translates a compare-and-swap failure into the public
// error surface and carries out the replay response.
func (e *Engine) mapRotateFailure(ctx context.Context, sessionID string, err error) error {
	var replay *session.ReplayError

	switch {
	case errors.As(err, &replay):
		e.metricInc(MetricRefreshReplayDetected)
		if replay.UserID != "" {
			// Revoke everything the user has. Best-effort failures here
			// must not soften the breach signal to the caller.
			if revokeErr := e.sessionStore.InvalidateAllForUser(ctx, replay.UserID); revokeErr == nil {
				e.metricInc(MetricSessionRevoked)
			}
			e.emitAudit(ctx, auditEventAllUserSessionsRevoked, true, replay.UserID, sessionID, nil, func() map[string]string {
				return map[string]string{"reason": "refresh_replay"}
			})
		}
		e.emitAudit(ctx, auditEventRefreshReplay, false, replay.UserID, sessionID, ErrSecurityBreach, nil)
		return ErrSecurityBreach

	case errors.Is(err, session.ErrRotateExpired):
		e.metricInc(MetricRefreshExpired)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, ErrTokenExpired, nil)
		return ErrTokenExpired

	case errors.Is(err, session.ErrRotateNotFound):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, ErrUnauthorized, nil)
		return ErrUnauthorized

	case errors.Is(err, session.ErrSessionCorrupt):
		e.metricInc(MetricRefreshFailure)
		return errors.Join(ErrInternal, err)

	default:
		e.metricInc(MetricRefreshFailure)
		return errors.Join(ErrInternal, err)
	}
}

// observeDeviceChange compares the caller's device metadata against what
// the session was bound to. Mismatches are recorded; they only reject the
// rotation when strict device matching is configured.
func (e *Engine) observeDeviceChange(ctx context.Context, sess *session.Session) bool {
	ip := clientIPFromContext(ctx)
	fingerprint := fingerprintFromContext(ctx)

	ipChanged := ip != "" && sess.IP != "" && ip != sess.IP
	fpChanged := fingerprint != "" && sess.Fingerprint != "" && fingerprint != sess.Fingerprint
	if !ipChanged && !fpChanged {
		return false
	}

	e.metricInc(MetricDeviceChangeObserved)
	e.emitAudit(ctx, auditEventDeviceChange, !e.config.Security.StrictDeviceMatch, sess.UserID, sess.SessionID, nil, func() map[string]string {
		md := map[string]string{}
		if ipChanged {
			md["previous_ip"] = sess.IP
		}
		if fpChanged {
			md["fingerprint_changed"] = "true"
		}
		return md
	})

	if !e.config.Security.StrictDeviceMatch {
		return false
	}

	e.metricInc(MetricDeviceChangeRejected)
	_ = e.sessionStore.Invalidate(ctx, sess.SessionID)
	return true
}
