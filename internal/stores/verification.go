package stores

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// VerificationStore persists pending email-verification challenges keyed by
// verification ID, created at registration and consumed exactly once when
// the user proves control of the address.
type VerificationStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewVerificationStore(redisClient redis.UniversalClient, prefix string) *VerificationStore {
	if prefix == "" {
		prefix = "agvf"
	}
	return &VerificationStore{redis: redisClient, prefix: prefix}
}

func (s *VerificationStore) key(verificationID string) string {
	return s.prefix + ":" + verificationID
}

func (s *VerificationStore) Save(ctx context.Context, verificationID string, record *ChallengeRecord, ttl time.Duration) error {
	return saveChallengeRecord(ctx, s.redis, s.key(verificationID), record, ttl)
}

func (s *VerificationStore) Consume(ctx context.Context, verificationID string, providedHash [32]byte, maxAttempts int) (*ChallengeRecord, error) {
	return consumeChallengeRecord(ctx, s.redis, s.key(verificationID), providedHash, maxAttempts)
}

func (s *VerificationStore) Delete(ctx context.Context, verificationID string) error {
	return s.redis.Del(ctx, s.key(verificationID)).Err()
}
