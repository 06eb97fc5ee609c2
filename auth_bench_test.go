package authgate

import (
	"context"
	"testing"
)

func BenchmarkValidate(b *testing.B) {
	h := newTestEngine(b)
	h.seedUser(b)
	res := h.login(b)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := h.engine.Validate(ctx, res.AccessToken); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkValidateSignatureOnly(b *testing.B) {
	h := newTestEngine(b, func(cfg *Config) {
		cfg.Security.SessionCheckOnValidate = false
	})
	h.seedUser(b)
	res := h.login(b)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := h.engine.Validate(ctx, res.AccessToken); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkLogin(b *testing.B) {
	h := newTestEngine(b)
	h.seedUser(b)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := h.engine.Login(ctx, testIdentifier, testPassword); err != nil {
			b.Fatalf("login failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	h := newTestEngine(b)
	h.seedUser(b)
	res := h.login(b)
	ctx := context.Background()

	token := res.RefreshToken
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err := h.engine.Refresh(ctx, token)
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		token = pair.RefreshToken
	}
}
