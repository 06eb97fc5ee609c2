// Package authgate provides a credential and session security engine with
// JWT access tokens, rotating opaque refresh tokens, Redis-backed session
// state, account lockout, TOTP second factors, and one-time-code flows.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (LoginResult, MetricsSnapshot, SessionInfo, etc.).
// Callers supply durable account storage through [UserStore] and optional
// delivery through [Notifier]; everything ephemeral — sessions, challenge
// records, throttles, the revocation list — lives in Redis behind
// sub-packages and is never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Store a recoverable credential: passwords are argon2id hashes,
//     refresh and reset secrets are stored as SHA-256 only.
//
// # Performance contract
//
// Validate is the hot path. With the session check disabled it completes
// on signature verification alone; with it enabled it is allowed a single
// read-only Redis round-trip. Login, Refresh, and the challenge flows are
// allowed one Redis round-trip per step.
package authgate
