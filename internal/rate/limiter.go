package rate

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters. The login throttle sits in
// front of the account lockout state machine as cheap protection for the
// store; the OTP and reset throttles bound how often one identifier can
// request a new secret.
type Config struct {
	EnableLoginThrottle bool
	EnableIPThrottle    bool
	MaxLoginAttempts    int
	LoginWindow         time.Duration

	EnableOTPThrottle bool
	MaxOTPIssues      int
	OTPWindow         time.Duration

	EnableResetThrottle bool
	MaxResetRequests    int
	ResetWindow         time.Duration
}

// Limiter enforces fixed-window rate limits using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func hashKey(prefix, raw string) string {
	digest := sha256.Sum256([]byte(raw))
	return prefix + base64.RawURLEncoding.EncodeToString(digest[:12])
}

func loginUserKey(identifier string) string { return hashKey("agrl:u:", identifier) }
func loginIPKey(ip string) string           { return hashKey("agrl:i:", ip) }
func otpIssueKey(identifier string) string  { return hashKey("agrl:o:", identifier) }
func resetReqKey(identifier string) string  { return hashKey("agrl:r:", identifier) }

// CheckLogin reports whether the identifier+IP pair is within the login
// attempt budget. Returns ErrRateLimited when over budget.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if !l.config.EnableLoginThrottle {
		return nil
	}
	if err := l.checkCounter(ctx, loginUserKey(identifier), l.config.MaxLoginAttempts); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, loginIPKey(ip), l.config.MaxLoginAttempts); err != nil {
			return err
		}
	}
	return nil
}

// IncrementLogin records a failed login attempt for the identifier+IP pair.
func (l *Limiter) IncrementLogin(ctx context.Context, identifier, ip string) error {
	if !l.config.EnableLoginThrottle {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, loginUserKey(identifier), l.config.LoginWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, loginIPKey(ip), l.config.LoginWindow)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// ResetLogin clears the failed-login counters for the identifier+IP pair.
// Called after successful login or password change.
func (l *Limiter) ResetLogin(ctx context.Context, identifier, ip string) error {
	if !l.config.EnableLoginThrottle {
		return nil
	}
	keys := []string{loginUserKey(identifier)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CheckOTPIssue counts one OTP issuance for an identifier and rejects it
// when over budget.
func (l *Limiter) CheckOTPIssue(ctx context.Context, identifier string) error {
	if !l.config.EnableOTPThrottle {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, otpIssueKey(identifier), l.config.OTPWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxOTPIssues) {
		return ErrRateLimited
	}
	return nil
}

// CheckResetRequest counts one password-reset request for an identifier and
// rejects it when over budget.
func (l *Limiter) CheckResetRequest(ctx context.Context, identifier string) error {
	if !l.config.EnableResetThrottle {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, resetReqKey(identifier), l.config.ResetWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxResetRequests) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count > int64(maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
