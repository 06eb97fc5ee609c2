package authgate

import (
	"context"
	"time"
)

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// Health pings the Redis backend and reports availability and round-trip
// latency. Meant for readiness probes; it never returns an error, the
// status carries the outcome.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessionStore == nil {
		return HealthStatus{}
	}

	latency, err := e.sessionStore.Ping(ctx)
	if err != nil {
		return HealthStatus{}
	}
	return HealthStatus{RedisAvailable: true, RedisLatency: latency}
}

// ActiveSessionCount returns how many sessions are indexed for the user,
// including invalidated rows that have not yet expired out of Redis.
func (e *Engine) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, ErrUserNotFound
	}

	ids, err := e.sessionStore.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
