// Package session provides Redis-backed session persistence, compact binary
// session encoding, and the atomic refresh-token rotation primitive.
//
// # Binary encoding
//
// Sessions are stored as a compact binary blob with a fixed-offset header
// (validity flag, refresh hash, timestamps) followed by variable-length
// device metadata. The fixed header is what lets the rotation Lua script
// compare and rewrite the refresh hash without a full parse.
//
// # Rotation
//
// [Store.RotateRefreshHash] is a single Lua compare-and-swap: of two
// concurrent calls presenting the same refresh hash, exactly one rotates
// and the other observes a replay. Replay and revocation mark the row
// invalid but keep it, so stale tokens map to a known-but-invalid session
// rather than to nothing.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model.
// It does NOT interpret JWT tokens or enforce authentication policy — those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import authgate or jwt (no upward imports).
//   - Store raw refresh secrets in [Session] fields.
package session
