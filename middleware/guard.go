package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	authgate "github.com/arcweld/authgate"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the validation result stored by
// [RequireAuth] for the current request.
func AuthResultFromContext(ctx context.Context) (*authgate.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*authgate.AuthResult)
	return res, ok
}

// RequireAuth returns middleware that authenticates the request's bearer
// token through [authgate.Engine.Validate] and injects the result into the
// request context. Requests without a valid token are rejected with the
// status mapped by [StatusForError].
func RequireAuth(engine *authgate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.Validate(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", StatusForError(err))
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithRequestMetadata returns middleware that stamps the caller's IP,
// user agent, and device fingerprint into the request context so the
// engine can bind them to sessions and throttles. Mount it outside
// [RequireAuth] and any handler that calls login, refresh, or the
// challenge flows.
func WithRequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if ip := clientIP(r); ip != "" {
			ctx = authgate.WithClientIP(ctx, ip)
		}
		if ua := r.UserAgent(); ua != "" {
			ctx = authgate.WithUserAgent(ctx, ua)
		}
		if fp := r.Header.Get("X-Device-Fingerprint"); fp != "" {
			ctx = authgate.WithDeviceFingerprint(ctx, fp)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	// X-Forwarded-For is only trustworthy behind a proxy that sets it;
	// deployments without one fall back to the socket address.
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
