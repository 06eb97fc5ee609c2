package audit

import (
	"context"
	"time"
)

// Event is the canonical audit record emitted for security-relevant
// operations: logins, lockouts, rotations, revocations, resets. EventType
// values and the Error vocabulary are defined by the root package so the
// wire format stays stable across sinks.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events. Implementations must be safe for
// concurrent use; the dispatcher calls Emit from a single goroutine but
// sinks are also usable directly.
type Sink interface {
	Emit(ctx context.Context, event Event)
}
