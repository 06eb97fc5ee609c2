package authgate

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// codeFor computes the current TOTP code for a base32 secret using the
// engine's configured digits and period.
func codeFor(t *testing.T, secretBase32 string, cfg TOTPConfig, at time.Time) string {
	t.Helper()

	code, err := totp.GenerateCodeCustom(secretBase32, at, totp.ValidateOpts{
		Period:    uint(cfg.Period),
		Digits:    otp.Digits(cfg.Digits),
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("code generation failed: %v", err)
	}
	return code
}

func TestProvisionTOTPStoresPendingSecret(t *testing.T) {
	h := newTestEngine(t)
	userID := h.seedUser(t)

	prov, err := h.engine.ProvisionTOTP(context.Background(), userID)
	if err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	if prov.SecretBase32 == "" || prov.URI == "" {
		t.Fatal("expected secret and provisioning URI")
	}
	if !bytes.HasPrefix(prov.QRCodePNG, []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatal("expected scannable PNG rendering of the enrollment URI")
	}

	user := h.users.mustGet(t, userID)
	if user.TOTPEnabled {
		t.Fatal("enrollment must stay pending until first confirm")
	}
	if len(user.TOTPSecret) == 0 {
		t.Fatal("expected pending secret stored")
	}

	// Login must not demand a second factor while enrollment is pending.
	res := h.login(t)
	if res.MFARequired {
		t.Fatal("pending enrollment must not gate login")
	}
}

func TestConfirmTOTPSetupEnablesOnFirstVerify(t *testing.T) {
	h := newTestEngine(t)
	userID := h.seedUser(t)

	ctx := context.Background()
	prov, err := h.engine.ProvisionTOTP(ctx, userID)
	if err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	code := codeFor(t, prov.SecretBase32, h.engine.config.TOTP, time.Now())
	if err := h.engine.ConfirmTOTPSetup(ctx, userID, code); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	user := h.users.mustGet(t, userID)
	if !user.TOTPEnabled {
		t.Fatal("expected enrollment active after first verify")
	}
}

func TestConfirmTOTPSetupRejectsWrongCode(t *testing.T) {
	h := newTestEngine(t)
	userID := h.seedUser(t)

	ctx := context.Background()
	if _, err := h.engine.ProvisionTOTP(ctx, userID); err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	if err := h.engine.ConfirmTOTPSetup(ctx, userID, "000000"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if h.users.mustGet(t, userID).TOTPEnabled {
		t.Fatal("wrong code must not activate enrollment")
	}
}

func TestLoginWithTOTPRequiresChallenge(t *testing.T) {
	h := newTestEngine(t)
	userID := h.seedUser(t)

	ctx := context.Background()
	prov, err := h.engine.ProvisionTOTP(ctx, userID)
	if err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	code := codeFor(t, prov.SecretBase32, h.engine.config.TOTP, time.Now())
	if err := h.engine.ConfirmTOTPSetup(ctx, userID, code); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	res, err := h.engine.Login(ctx, testIdentifier, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !res.MFARequired || res.MFAChallenge == "" {
		t.Fatal("expected MFA challenge for enrolled account")
	}
	if res.AccessToken != "" || res.RefreshToken != "" {
		t.Fatal("challenge response must not carry session tokens")
	}

	// The setup confirmation consumed the current step; complete the login
	// with the next one.
	next := codeFor(t, prov.SecretBase32, h.engine.config.TOTP, time.Now().Add(time.Duration(h.engine.config.TOTP.Period)*time.Second))
	final, err := h.engine.ConfirmLoginTOTP(ctx, res.MFAChallenge, next)
	if err != nil {
		t.Fatalf("confirm login failed: %v", err)
	}
	if final.AccessToken == "" || final.RefreshToken == "" {
		t.Fatal("expected session tokens after MFA completion")
	}
}

func TestConfirmLoginTOTPRejectsReplayedCode(t *testing.T) {
	h := newTestEngine(t)
	userID := h.seedUser(t)

	ctx := context.Background()
	prov, err := h.engine.ProvisionTOTP(ctx, userID)
	if err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	code := codeFor(t, prov.SecretBase32, h.engine.config.TOTP, time.Now())
	if err := h.engine.ConfirmTOTPSetup(ctx, userID, code); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	// Confirming setup recorded the code's counter; presenting the same
	// code to the login challenge is a replay.
	res, err := h.engine.Login(ctx, testIdentifier, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := h.engine.ConfirmLoginTOTP(ctx, res.MFAChallenge, code); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected replay rejection, got %v", err)
	}
}

func TestConfirmLoginTOTPWrongCodeCountsTowardLockout(t *testing.T) {
	h := newTestEngine(t)
	userID := h.seedUser(t)

	ctx := context.Background()
	prov, err := h.engine.ProvisionTOTP(ctx, userID)
	if err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	code := codeFor(t, prov.SecretBase32, h.engine.config.TOTP, time.Now())
	if err := h.engine.ConfirmTOTPSetup(ctx, userID, code); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	res, err := h.engine.Login(ctx, testIdentifier, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// Every wrong code up to and including the one that trips the
	// threshold answers with bad credentials.
	threshold := h.engine.config.Lockout.Threshold
	for i := 0; i < threshold; i++ {
		if _, err := h.engine.ConfirmLoginTOTP(ctx, res.MFAChallenge, "000000"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	if _, err := h.engine.ConfirmLoginTOTP(ctx, res.MFAChallenge, "000000"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected lockout after %d wrong codes, got %v", threshold, err)
	}
}

func TestConfirmLoginTOTPRejectsBadChallenge(t *testing.T) {
	h := newTestEngine(t)
	h.seedUser(t)

	if _, err := h.engine.ConfirmLoginTOTP(context.Background(), "not-a-jwt", "123456"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for bad challenge, got %v", err)
	}
}

func TestDisableTOTPRequiresCurrentCode(t *testing.T) {
	h := newTestEngine(t)
	userID := h.seedUser(t)

	ctx := context.Background()
	prov, err := h.engine.ProvisionTOTP(ctx, userID)
	if err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	code := codeFor(t, prov.SecretBase32, h.engine.config.TOTP, time.Now())
	if err := h.engine.ConfirmTOTPSetup(ctx, userID, code); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	if err := h.engine.DisableTOTP(ctx, userID, "000000"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected wrong code rejected, got %v", err)
	}

	next := codeFor(t, prov.SecretBase32, h.engine.config.TOTP, time.Now().Add(time.Duration(h.engine.config.TOTP.Period)*time.Second))
	if err := h.engine.DisableTOTP(ctx, userID, next); err != nil {
		t.Fatalf("disable failed: %v", err)
	}

	user := h.users.mustGet(t, userID)
	if user.TOTPEnabled || len(user.TOTPSecret) != 0 {
		t.Fatal("expected enrollment cleared")
	}
}
