package authgate

import (
	"context"
	"errors"
	"testing"
)

func TestHealthReportsRedis(t *testing.T) {
	h := newTestEngine(t)

	status := h.engine.Health(context.Background())
	if !status.RedisAvailable {
		t.Fatal("expected redis to be reported available")
	}
	if status.RedisLatency < 0 {
		t.Fatalf("negative latency %v", status.RedisLatency)
	}
}

func TestHealthSurvivesRedisOutage(t *testing.T) {
	h := newTestEngine(t)

	h.redis.Close()

	status := h.engine.Health(context.Background())
	if status.RedisAvailable {
		t.Fatal("expected redis to be reported unavailable after close")
	}
}

func TestActiveSessionCount(t *testing.T) {
	h := newTestEngine(t)
	userID := h.seedUser(t)
	ctx := context.Background()

	n, err := h.engine.ActiveSessionCount(ctx, userID)
	if err != nil {
		t.Fatalf("ActiveSessionCount: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 sessions before login, got %d", n)
	}

	h.login(t)
	h.login(t)

	n, err = h.engine.ActiveSessionCount(ctx, userID)
	if err != nil {
		t.Fatalf("ActiveSessionCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 sessions, got %d", n)
	}

	if _, err := h.engine.ActiveSessionCount(ctx, ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for empty user, got %v", err)
	}
}

func TestSecurityReportMirrorsConfig(t *testing.T) {
	h := newTestEngine(t, func(c *Config) {
		c.Audit.Enabled = false
		c.Metrics.Enabled = true
		c.Rate.EnableOTPThrottle = true
		c.Rate.MaxOTPIssues = 3
		c.Rate.OTPWindow = c.OTP.TTL
	})

	report := h.engine.SecurityReport()

	cfg := h.engine.config
	if report.SigningMethod != cfg.Token.SigningMethod {
		t.Fatalf("signing method %q != %q", report.SigningMethod, cfg.Token.SigningMethod)
	}
	if report.AccessTTL != cfg.Token.AccessTTL || report.RefreshTTL != cfg.Token.RefreshTTL {
		t.Fatal("token lifetimes do not match configuration")
	}
	if report.LockoutThreshold != cfg.Lockout.Threshold {
		t.Fatalf("lockout threshold %d != %d", report.LockoutThreshold, cfg.Lockout.Threshold)
	}
	if report.Password.Memory != cfg.Password.Memory || report.Password.KeyLength != cfg.Password.KeyLength {
		t.Fatal("argon2 parameters do not match configuration")
	}
	if !report.OTPThrottleActive {
		t.Fatal("expected OTP throttle to be reported active")
	}
	if report.LoginThrottleActive || report.ResetThrottleActive {
		t.Fatal("expected login and reset throttles to be reported inactive")
	}
	if report.AuditActive {
		t.Fatal("expected audit to be reported inactive")
	}
	if !report.MetricsActive {
		t.Fatal("expected metrics to be reported active")
	}
}

func TestSecurityReportNilEngine(t *testing.T) {
	var e *Engine
	report := e.SecurityReport()
	if report.ProductionMode || report.SigningMethod != "" {
		t.Fatal("expected zero report from nil engine")
	}
}
