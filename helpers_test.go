package authgate

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testIdentifier = "alice@example.com"
	testPassword   = "correct-horse-battery"
)

// testUserStore is an in-memory UserStore for engine tests.
type testUserStore struct {
	mu         sync.RWMutex
	nextID     int
	byID       map[string]UserRecord
	byIdent    map[string]string
	updates    int
	creates    int
	updateFail error
}

func newTestUserStore() *testUserStore {
	return &testUserStore{
		byID:    make(map[string]UserRecord),
		byIdent: make(map[string]string),
	}
}

func (s *testUserStore) GetUserByIdentifier(_ context.Context, identifier string) (UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdent[identifier]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *testUserStore) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (s *testUserStore) CreateUser(_ context.Context, input CreateUserInput) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byIdent[input.Identifier]; exists {
		return UserRecord{}, ErrDuplicateIdentifier
	}

	s.nextID++
	s.creates++
	u := UserRecord{
		UserID:       "u" + strconv.Itoa(s.nextID),
		Identifier:   input.Identifier,
		PasswordHash: input.PasswordHash,
		Verified:     input.Verified,
	}
	s.byID[u.UserID] = u
	s.byIdent[u.Identifier] = u.UserID
	return u, nil
}

func (s *testUserStore) UpdateUser(_ context.Context, userID string, update UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateFail != nil {
		return s.updateFail
	}

	u, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	s.updates++

	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	if update.Verified != nil {
		u.Verified = *update.Verified
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
	if update.FailedLogins != nil {
		u.FailedLogins = *update.FailedLogins
	}
	if update.LockedUntil != nil {
		u.LockedUntil = *update.LockedUntil
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

func (s *testUserStore) mustGet(t testing.TB, userID string) UserRecord {
	t.Helper()
	u, err := s.GetUserByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("user %s not found", userID)
	}
	return u
}

// failUpdates makes every subsequent UpdateUser call return err.
func (s *testUserStore) failUpdates(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateFail = err
}

func (s *testUserStore) updateCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}

// testNotifier records deliveries instead of sending anything. Setting
// fail makes every delivery attempt return that error.
type testNotifier struct {
	mu     sync.Mutex
	fail   error
	emails []notifierMessage
	sms    []notifierMessage
}

type notifierMessage struct {
	To      string
	Subject string
	Body    string
}

func (n *testNotifier) SendEmail(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.emails = append(n.emails, notifierMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (n *testNotifier) SendSMS(_ context.Context, to, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.sms = append(n.sms, notifierMessage{To: to, Body: body})
	return nil
}

// testConfig returns a config tuned for fast tests: cheap argon2
// parameters, no verification gate, throttles off.
func testConfig(t testing.TB) Config {
	t.Helper()

	cfg := defaultConfig()

	priv, pub, err := GenerateEd25519Keys()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	cfg.Token.PrivateKey = priv
	cfg.Token.PublicKey = pub

	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Registration.RequireVerification = false

	return cfg
}

type testHarness struct {
	engine *Engine
	users  *testUserStore
	redis  *miniredis.Miniredis
}

// newTestEngine builds an engine on miniredis with a seeded user. Mutators
// run against the config before Build.
func newTestEngine(t testing.TB, mutators ...func(*Config)) *testHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig(t)
	for _, m := range mutators {
		m(&cfg)
	}

	users := newTestUserStore()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testHarness{engine: engine, users: users, redis: mr}
}

// seedUser registers the default test account and returns its user ID.
func (h *testHarness) seedUser(t testing.TB) string {
	t.Helper()

	res, err := h.engine.Register(context.Background(), testIdentifier, testPassword)
	if err != nil {
		t.Fatalf("seed register failed: %v", err)
	}
	return res.UserID
}

// login performs a full password login and fails the test on error.
func (h *testHarness) login(t testing.TB) *LoginResult {
	t.Helper()

	res, err := h.engine.Login(context.Background(), testIdentifier, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return res
}

// advanceLock moves an account's lock expiry into the past so tests do not
// sleep through real lockout windows.
func (h *testHarness) expireLock(t testing.TB, userID string) {
	t.Helper()

	past := time.Now().Add(-time.Minute)
	if err := h.users.UpdateUser(context.Background(), userID, UserUpdate{LockedUntil: &past}); err != nil {
		t.Fatalf("expire lock failed: %v", err)
	}
}
