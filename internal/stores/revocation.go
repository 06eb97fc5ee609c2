package stores

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore is the access-token blacklist. Entries are keyed by a
// digest of the token and live exactly as long as the token's remaining
// natural lifetime, so Redis expiry does the eviction a list in durable
// storage would need a sweeper for.
type RevocationStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRevocationStore(redisClient redis.UniversalClient, prefix string) *RevocationStore {
	if prefix == "" {
		prefix = "agrv"
	}
	return &RevocationStore{redis: redisClient, prefix: prefix}
}

func (s *RevocationStore) key(token string) string {
	digest := sha256.Sum256([]byte(token))
	return s.prefix + ":" + base64.RawURLEncoding.EncodeToString(digest[:])
}

// Revoke blacklists a token until expiresAt. A token already past expiry is
// ignored; it cannot be presented successfully anyway.
func (s *RevocationStore) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.key(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether a token is on the blacklist. Expired entries
// have already been evicted by Redis, so a bare existence check suffices.
func (s *RevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(token)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// Cleanup sweeps the blacklist namespace and removes entries that carry no
// expiry, which can only appear if a revocation write was interrupted.
// Returns the number of entries removed. Advisory housekeeping; correctness
// never depends on it running.
func (s *RevocationStore) Cleanup(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, s.prefix+":*", 500).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		for _, key := range keys {
			ttl, err := s.redis.TTL(ctx, key).Result()
			if err != nil {
				return removed, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			// go-redis reports "no expiry" as -1s and "gone" as -2s.
			if ttl == -1*time.Second {
				if err := s.redis.Del(ctx, key).Err(); err != nil {
					return removed, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
				}
				removed++
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}
