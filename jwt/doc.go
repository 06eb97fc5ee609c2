// Package jwt issues and verifies the bearer tokens used by the engine:
// short-lived access tokens bound to a session and intermediate MFA
// challenge tokens carrying an mfa-pending marker.
package jwt
