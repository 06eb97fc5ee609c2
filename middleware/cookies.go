package middleware

import (
	"net/http"

	authgate "github.com/arcweld/authgate"
)

// DefaultRefreshCookieName is the cookie used by [RefreshCookie] unless the
// integrator overrides Name.
const DefaultRefreshCookieName = "refresh_token"

// RefreshCookie writes the refresh token as an http-only cookie with the
// attributes the engine's security configuration demands. The zero value is
// not usable; construct it with [NewRefreshCookie].
type RefreshCookie struct {
	Name   string
	Path   string
	policy authgate.CookiePolicy
}

// NewRefreshCookie derives cookie attributes from the engine configuration.
func NewRefreshCookie(engine *authgate.Engine) RefreshCookie {
	return RefreshCookie{
		Name:   DefaultRefreshCookieName,
		Path:   "/",
		policy: engine.CookiePolicy(),
	}
}

// Set writes the refresh token cookie. Max-Age follows the configured
// refresh lifetime so the cookie and the stored session expire together.
func (c RefreshCookie) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     c.Path,
		MaxAge:   int(c.policy.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.policy.Secure,
		SameSite: c.policy.SameSite,
	})
}

// Clear expires the refresh token cookie. Attributes must match Set for
// browsers to drop the original cookie.
func (c RefreshCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     c.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.policy.Secure,
		SameSite: c.policy.SameSite,
	})
}

// Read extracts the refresh token from the request, if present.
func (c RefreshCookie) Read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(c.Name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
