// Package middleware exposes HTTP adapters for authgate: bearer-token
// enforcement, request metadata capture, and error-to-status mapping.
//
// # Guards
//
//   - [RequireAuth] — reads the Authorization header, calls
//     Engine.Validate, and injects the result into the request context.
//   - [WithRequestMetadata] — stamps client IP, user agent, and device
//     fingerprint into the context for session binding and throttles.
//
// # Cookies
//
// [RefreshCookie] writes and clears the refresh token cookie with
// attributes (Secure, SameSite, Max-Age) derived from the engine's
// security configuration.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated to
// the engine.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from
//     Engine.Validate.
package middleware
