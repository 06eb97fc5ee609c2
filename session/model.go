package session

// Session is one refresh-token lineage for a user. Exactly one row exists
// per issued refresh token; rotation rewrites RefreshHash in place so any
// presentation of the previous token is detectable as a replay.
//
// Valid flips to false exactly once, on expiry, revocation, or breach
// detection, and never flips back. The row is kept (under its remaining
// TTL) so a stale token still maps to a known-but-invalid session,
// distinguishing replay from never-existed.
type Session struct {
	SessionID string
	UserID    string

	// RefreshHash is the SHA-256 of the refresh token's secret half.
	// The raw secret is never stored.
	RefreshHash [32]byte

	Valid bool

	CreatedAt    int64
	ExpiresAt    int64
	LastActiveAt int64

	// Device metadata captured at issue time and refreshed on rotation.
	// Informational: mismatches are logged, not enforced, unless strict
	// device matching is configured.
	IP          string
	UserAgent   string
	Fingerprint string
}
