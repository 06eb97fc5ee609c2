package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, priv := newEdKeys(t)
	m := newTestManager(t, Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub})

	claims := Claims{UID: "u1", SID: "s1", Purpose: PurposeAccess, RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessIssuerAudienceAndLeeway(t *testing.T) {
	pub, priv := newEdKeys(t)
	m := newTestManager(t, Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "authgate",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})

	access, err := m.CreateAccess("u1", "s1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(access); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	signed := func(c Claims) string {
		t.Helper()
		tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c)
		s, err := tok.SignedString(priv)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return s
	}

	badIssuer := signed(Claims{UID: "u1", SID: "s1", Purpose: PurposeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}})
	if _, err := m.ParseAccess(badIssuer); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	badAudience := signed(Claims{UID: "u1", SID: "s1", Purpose: PurposeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "authgate",
		Audience:  gjwt.ClaimStrings{"other-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}})
	if _, err := m.ParseAccess(badAudience); err == nil {
		t.Fatal("expected wrong audience to fail")
	}

	withinLeeway := signed(Claims{UID: "u1", SID: "s1", Purpose: PurposeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "authgate",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-15 * time.Second)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	if _, err := m.ParseAccess(withinLeeway); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}

	expired := signed(Claims{UID: "u1", SID: "s1", Purpose: PurposeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "authgate",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-3 * time.Minute)),
	}})
	_, err = m.ParseAccess(expired)
	if err == nil {
		t.Fatal("expected expired token to fail")
	}
	if !IsExpired(err) {
		t.Fatalf("expected expiry classification, got: %v", err)
	}
}

func TestPurposeSeparation(t *testing.T) {
	pub, priv := newEdKeys(t)
	m := newTestManager(t, Config{AccessTTL: time.Minute, ChallengeTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub})

	challenge, err := m.CreateMFAChallenge("u1")
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	if _, err := m.ParseAccess(challenge); err == nil {
		t.Fatal("expected challenge token to be rejected as access token")
	}
	claims, err := m.ParseMFAChallenge(challenge)
	if err != nil {
		t.Fatalf("parse challenge: %v", err)
	}
	if claims.UID != "u1" || claims.SID != "" {
		t.Fatalf("unexpected challenge claims: %+v", claims)
	}

	access, err := m.CreateAccess("u1", "s1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseMFAChallenge(access); err == nil {
		t.Fatal("expected access token to be rejected as challenge token")
	}
}

func TestDecodeUnverified(t *testing.T) {
	pub, priv := newEdKeys(t)
	m := newTestManager(t, Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub})

	access, err := m.CreateAccess("u1", "s1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	claims, err := m.DecodeUnverified(access)
	if err != nil {
		t.Fatalf("decode unverified: %v", err)
	}
	if claims.UID != "u1" || claims.SID != "s1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(time.Now()) {
		t.Fatal("expected future expiry in decoded claims")
	}
}

func TestHS256RoundTrip(t *testing.T) {
	m := newTestManager(t, Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})

	access, err := m.CreateAccess("u2", "s2")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	claims, err := m.ParseAccess(access)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UID != "u2" || claims.SID != "s2" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}
