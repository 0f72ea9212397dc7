package authz

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// CallerScheduler is the identity recorded for jobs enqueued by the
// in-process scheduler.
const CallerScheduler = "scheduler"

// CallerSecret is the identity recorded for requests authenticated by the
// bearer secret.
const CallerSecret = "cron-secret"

type identityCtxKey struct{}

// Identity represents the caller of a request.
type Identity struct {
	User       string
	RemoteAddr string
}

// WithIdentity returns a new context with the given Identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns the zero value and false if no identity is set.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// IdentityMiddleware records the remote address of every request as an
// anonymous identity. RequireBearer upgrades it once the secret matches.
// X-Forwarded-For wins over the socket address when present.
func IdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identity{User: "anonymous", RemoteAddr: RemoteAddr(r)}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RemoteAddr returns the client address of r without the port.
func RemoteAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
