package stores

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// PasswordResetStore persists pending password-reset challenges keyed by
// reset ID. Records are single-use and expire after the configured TTL.
type PasswordResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string) *PasswordResetStore {
	if prefix == "" {
		prefix = "agpr"
	}
	return &PasswordResetStore{redis: redisClient, prefix: prefix}
}

func (s *PasswordResetStore) key(resetID string) string {
	return s.prefix + ":" + resetID
}

func (s *PasswordResetStore) Save(ctx context.Context, resetID string, record *ChallengeRecord, ttl time.Duration) error {
	return saveChallengeRecord(ctx, s.redis, s.key(resetID), record, ttl)
}

func (s *PasswordResetStore) Get(ctx context.Context, resetID string) (*ChallengeRecord, error) {
	return getChallengeRecord(ctx, s.redis, s.key(resetID))
}

// Consume matches providedHash against the stored challenge and deletes it
// on success. See consumeChallengeRecord for the mismatch/expiry rules.
func (s *PasswordResetStore) Consume(ctx context.Context, resetID string, providedHash [32]byte, maxAttempts int) (*ChallengeRecord, error) {
	return consumeChallengeRecord(ctx, s.redis, s.key(resetID), providedHash, maxAttempts)
}

// Delete drops any pending reset for the given ID. Used when a reset
// completes through another path.
func (s *PasswordResetStore) Delete(ctx context.Context, resetID string) error {
	if err := s.redis.Del(ctx, s.key(resetID)).Err(); err != nil {
		return err
	}
	return nil
}
