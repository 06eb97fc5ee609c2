package authgate

import (
	"context"
	"errors"
	"testing"
)

func TestChangePassword(t *testing.T) {
	h := newTestEngine(t)
	userID := h.seedUser(t)
	ctx := context.Background()

	res := h.login(t)

	newPassword := "a-different-password"
	if err := h.engine.ChangePassword(ctx, userID, testPassword, newPassword); err != nil {
		t.Fatalf("change failed: %v", err)
	}

	if _, err := h.engine.Login(ctx, testIdentifier, testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := h.engine.Login(ctx, testIdentifier, newPassword); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}

	// The pre-change session is revoked.
	if _, err := h.engine.Refresh(ctx, res.RefreshToken); err == nil {
		t.Fatal("old session survived password change")
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	h := newTestEngine(t)
	userID := h.seedUser(t)

	err := h.engine.ChangePassword(context.Background(), userID, "wrong-password", "a-different-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	// Nothing changed.
	if _, err := h.engine.Login(context.Background(), testIdentifier, testPassword); err != nil {
		t.Fatalf("original password no longer works: %v", err)
	}
}

func TestChangePasswordRejectsShortNew(t *testing.T) {
	h := newTestEngine(t)
	userID := h.seedUser(t)

	err := h.engine.ChangePassword(context.Background(), userID, testPassword, "short")
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
}

func TestChangePasswordUnknownUser(t *testing.T) {
	h := newTestEngine(t)
	h.seedUser(t)

	err := h.engine.ChangePassword(context.Background(), "u-missing", testPassword, "a-different-password")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
