// Package stores provides Redis-backed, short-lived record stores for
// security-sensitive authentication flows: password reset, email
// verification, out-of-band OTP codes, and the access-token revocation
// list.
//
// # Design
//
// Challenge stores persist a versioned, binary-encoded record in Redis with
// a TTL. Consume operations use WATCH/MULTI optimistic transactions with
// automatic retry on contention. Records are single-use: deleted on
// successful match, deleted on expiry, and deleted once the attempt limit
// is reached. Secret comparisons use constant-time compare.
//
// The revocation store is simpler: one key per blacklisted token whose TTL
// equals the token's remaining natural lifetime.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for transient
// security records. It does NOT generate tokens or codes, dispatch
// notifications, or make authentication decisions — those belong to the
// Engine.
//
// # What this package must NOT do
//
//   - Import authgate or any sibling internal package.
//   - Log or expose plaintext secrets.
//   - Use non-constant-time comparisons for secret matching.
package stores
