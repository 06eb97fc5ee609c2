// Package rate provides Redis-backed fixed-window throttles for
// security-sensitive authentication workflows: login attempts, OTP
// issuance, and password-reset requests.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on the first hit.
// Identifiers and IPs are hashed before appearing in key names. Prefixes:
//   - agrl:u: — login per-identifier
//   - agrl:i: — login per-IP
//   - agrl:o: — OTP issuance per-identifier
//   - agrl:r: — reset requests per-identifier
//
// # What this package must NOT do
//
//   - Implement the account lockout state machine (that lives on the user
//     record, owned by the Engine).
//   - Be imported outside the authgate module.
package rate
