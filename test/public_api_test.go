// Package test exercises the module strictly through its exported surface,
// the way an integrating application would.
package test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/arcweld/authgate"
)

type memoryUserStore struct {
	mu    sync.Mutex
	byID  map[string]authgate.UserRecord
	byKey map[string]string
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{
		byID:  make(map[string]authgate.UserRecord),
		byKey: make(map[string]string),
	}
}

func (s *memoryUserStore) GetUserByIdentifier(_ context.Context, identifier string) (authgate.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[identifier]
	if !ok {
		return authgate.UserRecord{}, authgate.ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *memoryUserStore) GetUserByID(_ context.Context, userID string) (authgate.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return authgate.UserRecord{}, authgate.ErrUserNotFound
	}
	return u, nil
}

func (s *memoryUserStore) CreateUser(_ context.Context, input authgate.CreateUserInput) (authgate.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[input.Identifier]; exists {
		return authgate.UserRecord{}, authgate.ErrDuplicateIdentifier
	}
	u := authgate.UserRecord{
		UserID:       uuid.NewString(),
		Identifier:   input.Identifier,
		PasswordHash: input.PasswordHash,
		Verified:     input.Verified,
	}
	s.byID[u.UserID] = u
	s.byKey[u.Identifier] = u.UserID
	return u, nil
}

func (s *memoryUserStore) UpdateUser(_ context.Context, userID string, update authgate.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return authgate.ErrUserNotFound
	}
	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	if update.Verified != nil {
		u.Verified = *update.Verified
	}
	if update.FailedLogins != nil {
		u.FailedLogins = *update.FailedLogins
	}
	if update.LockedUntil != nil {
		u.LockedUntil = *update.LockedUntil
	}
	if update.TOTPEnabled != nil {
		u.TOTPEnabled = *update.TOTPEnabled
	}
	if update.TOTPSecret != nil {
		u.TOTPSecret = *update.TOTPSecret
	}
	if update.TOTPLastUsed != nil {
		u.TOTPLastUsed = *update.TOTPLastUsed
	}
	if update.LastLoginAt != nil {
		u.LastLoginAt = *update.LastLoginAt
	}
	if update.LastLoginIP != nil {
		u.LastLoginIP = *update.LastLoginIP
	}
	if update.LastLoginDevice != nil {
		u.LastLoginDevice = *update.LastLoginDevice
	}
	s.byID[userID] = u
	return nil
}

func newEngine(t *testing.T) *authgate.Engine {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := authgate.DefaultConfig()
	priv, pub, err := authgate.GenerateEd25519Keys()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	cfg.Token.PrivateKey = priv
	cfg.Token.PublicKey = pub
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(newMemoryUserStore()).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

// Register, login, validate, refresh, validate the rotated token, then log
// out and confirm every credential is dead. The whole consumer happy path.
func TestPublicLifecycle(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()

	res, err := engine.Register(ctx, "dana@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.UserID == "" {
		t.Fatal("expected a user ID from registration")
	}

	login, err := engine.Login(ctx, "dana@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.MFARequired {
		t.Fatal("unexpected MFA challenge without enrollment")
	}

	auth, err := engine.Validate(ctx, login.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if auth.UserID != res.UserID {
		t.Fatalf("validated user %q, registered %q", auth.UserID, res.UserID)
	}

	pair, err := engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := engine.Validate(ctx, pair.AccessToken); err != nil {
		t.Fatalf("Validate after refresh: %v", err)
	}

	if err := engine.Logout(ctx, pair.AccessToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := engine.Validate(ctx, pair.AccessToken); !errors.Is(err, authgate.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after logout, got %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Fatal("expected refresh to fail after logout")
	}
}

func TestPublicErrorContract(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()

	if _, err := engine.Register(ctx, "dana@example.com", "correct-horse-battery"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := engine.Register(ctx, "dana@example.com", "another-passphrase"); !errors.Is(err, authgate.ErrCredentialConflict) {
		t.Fatalf("expected ErrCredentialConflict, got %v", err)
	}

	if _, err := engine.Login(ctx, "dana@example.com", "wrong"); !errors.Is(err, authgate.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := engine.Login(ctx, "nobody@example.com", "wrong"); !errors.Is(err, authgate.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	if _, err := engine.Validate(ctx, "not-a-token"); !errors.Is(err, authgate.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for garbage token, got %v", err)
	}
}

// A replayed refresh token is a breach signal and takes every session for
// the user down with it.
func TestPublicRefreshReplayRevokesUser(t *testing.T) {
	engine := newEngine(t)
	ctx := context.Background()

	if _, err := engine.Register(ctx, "dana@example.com", "correct-horse-battery"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	login, err := engine.Login(ctx, "dana@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	pair, err := engine.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if _, err := engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, authgate.ErrSecurityBreach) {
		t.Fatalf("expected ErrSecurityBreach on replay, got %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Fatal("expected the rotated token to be revoked after replay")
	}
}
