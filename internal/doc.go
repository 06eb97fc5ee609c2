// Package internal contains helper utilities that are intentionally
// private to authgate, including secure random generation, opaque token
// encoding, and secret hashing.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - rate — Redis-backed throttles for login, OTP issue, and reset flows
//   - stores — short-lived challenge records (reset, OTP, verification)
//     and the token revocation list
//
// # What this package must NOT do
//
//   - Export types that appear in the public authgate API.
//   - Be imported by any package outside the authgate module.
package internal
