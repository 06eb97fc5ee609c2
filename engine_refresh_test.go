package authgate

import (
	"context"
	"errors"
	"testing"
)

func TestRefreshRotatesTokens(t *testing.T) {
	h := newTestEngine(t)
	h.seedUser(t)
	res := h.login(t)

	pair, err := h.engine.Refresh(context.Background(), res.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected fresh token pair")
	}
	if pair.RefreshToken == res.RefreshToken {
		t.Fatal("expected refresh token to rotate")
	}
}

func TestRefreshReplayRevokesAllSessions(t *testing.T) {
	h := newTestEngine(t)
	userID := h.seedUser(t)

	ctx := context.Background()
	first := h.login(t)
	second := h.login(t)

	// Rotate R1 into R2, then present R1 again.
	rotated, err := h.engine.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}

	_, err = h.engine.Refresh(ctx, first.RefreshToken)
	if !errors.Is(err, ErrSecurityBreach) {
		t.Fatalf("expected ErrSecurityBreach on replay, got %v", err)
	}

	// The breach response kills every session the user had, including the
	// freshly rotated one and the unrelated second session.
	if _, err := h.engine.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, ErrSecurityBreach) && !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected rotated token dead after breach, got %v", err)
	}
	if _, err := h.engine.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrSecurityBreach) && !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected second session dead after breach, got %v", err)
	}

	sessions, err := h.engine.Sessions(ctx, userID)
	if err != nil {
		t.Fatalf("sessions list failed: %v", err)
	}
	for _, s := range sessions {
		if s.Valid {
			t.Fatalf("expected all sessions invalid after breach, %s still valid", s.SessionID)
		}
	}
}

func TestRefreshGarbageTokenRejected(t *testing.T) {
	h := newTestEngine(t)
	h.seedUser(t)
	h.login(t)

	for _, token := range []string{"", "not-a-token", "AAAA.BBBB"} {
		if _, err := h.engine.Refresh(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("token %q: expected ErrUnauthorized, got %v", token, err)
		}
	}
}

func TestRefreshUnknownSessionRejected(t *testing.T) {
	h := newTestEngine(t)
	h.seedUser(t)
	res := h.login(t)

	// Forget the session server-side; the well-formed token now points at
	// nothing.
	h.redis.FlushAll()

	_, err := h.engine.Refresh(context.Background(), res.RefreshToken)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for missing session, got %v", err)
	}
}

func TestRefreshExpiredSessionRejected(t *testing.T) {
	h := newTestEngine(t)
	h.seedUser(t)
	res := h.login(t)

	// Jump past the absolute refresh lifetime.
	h.redis.FastForward(h.engine.config.Token.RefreshTTL * 2)

	_, err := h.engine.Refresh(context.Background(), res.RefreshToken)
	if !errors.Is(err, ErrTokenExpired) && !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected expiry rejection, got %v", err)
	}
}

func TestRefreshStrictDeviceMatchRejectsChangedFingerprint(t *testing.T) {
	h := newTestEngine(t, func(cfg *Config) {
		cfg.Security.StrictDeviceMatch = true
	})
	h.seedUser(t)

	loginCtx := WithDeviceFingerprint(context.Background(), "fp-original")
	res, err := h.engine.Login(loginCtx, testIdentifier, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	refreshCtx := WithDeviceFingerprint(context.Background(), "fp-changed")
	if _, err := h.engine.Refresh(refreshCtx, res.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected strict device mismatch rejection, got %v", err)
	}
}

func TestRefreshDeviceChangeObservedByDefault(t *testing.T) {
	h := newTestEngine(t, func(cfg *Config) {
		cfg.Metrics.Enabled = true
	})
	h.seedUser(t)

	loginCtx := WithDeviceFingerprint(context.Background(), "fp-original")
	res, err := h.engine.Login(loginCtx, testIdentifier, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// Default posture logs the change and lets the rotation through.
	refreshCtx := WithDeviceFingerprint(context.Background(), "fp-changed")
	if _, err := h.engine.Refresh(refreshCtx, res.RefreshToken); err != nil {
		t.Fatalf("expected rotation to succeed with log-only posture, got %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricDeviceChangeObserved] == 0 {
		t.Fatal("expected device change observation recorded")
	}
}
