package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/sessionauth"
)

// Authenticator is the engine surface the guard needs.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*sessionauth.Principal, error)
}

// Guard returns middleware that enforces policies on every request. The
// client IP and User-Agent are attached to the context for audit and
// per-IP lockout before the policy is consulted.
func Guard(engine Authenticator, policies Policies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := sessionauth.WithClientIP(r.Context(), ClientIP(r))
			ctx = sessionauth.WithUserAgent(ctx, r.UserAgent())

			policy := policies.Lookup(r)
			if policy == PolicyPublic {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if engine == nil {
				WriteError(w, sessionauth.ErrEngineNotReady)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				if policy == PolicyOptional {
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				WriteError(w, sessionauth.ErrNoToken)
				return
			}

			principal, err := engine.Authenticate(ctx, token)
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx = sessionauth.WithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Require authenticates every request it wraps.
func Require(engine Authenticator) func(http.Handler) http.Handler {
	return Guard(engine, nil)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(r *http.Request) (string, bool) {
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// ClientIP returns the peer address of r without the port. Forwarding
// headers are ignored; put a trusted proxy in front and rewrite RemoteAddr
// there if needed.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
