package stores

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/redis/go-redis/v9"
)

// OTPStore persists out-of-band one-time passcodes keyed by the destination
// identifier (email address or phone number). The identifier is hashed so
// contact details never appear in Redis keys. Issuing a new code for an
// identifier replaces any outstanding one.
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewOTPStore(redisClient redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "agotp"
	}
	return &OTPStore{redis: redisClient, prefix: prefix}
}

func (s *OTPStore) key(identifier string) string {
	digest := sha256.Sum256([]byte(identifier))
	return s.prefix + ":" + base64.RawURLEncoding.EncodeToString(digest[:16])
}

func (s *OTPStore) Save(ctx context.Context, identifier string, record *ChallengeRecord, ttl time.Duration) error {
	return saveChallengeRecord(ctx, s.redis, s.key(identifier), record, ttl)
}

// Consume verifies a presented code hash for an identifier. A match deletes
// the code (single use); a mismatch leaves it in place, counting one failed
// attempt toward maxAttempts; an expired code is deleted on sight.
func (s *OTPStore) Consume(ctx context.Context, identifier string, providedHash [32]byte, maxAttempts int) (*ChallengeRecord, error) {
	return consumeChallengeRecord(ctx, s.redis, s.key(identifier), providedHash, maxAttempts)
}

// Delete drops any outstanding code for an identifier.
func (s *OTPStore) Delete(ctx context.Context, identifier string) error {
	return s.redis.Del(ctx, s.key(identifier)).Err()
}
