package authz

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Error messages returned by RequireBearer.
const (
	MsgNotConfigured = "CRON_SECRET not configured"
	MsgUnauthorized  = "Unauthorized"
)

// RequireBearer returns middleware that admits a request only when its
// Authorization header is "Bearer <secret>". An unset secret is a server
// misconfiguration and yields 500; any other mismatch yields 401. Rejected
// requests never reach next.
func RequireBearer(secret SecretFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			want := secret()
			if want == "" {
				writeError(w, http.StatusInternalServerError, MsgNotConfigured)
				return
			}
			if !Authorized(r, want) {
				writeError(w, http.StatusUnauthorized, MsgUnauthorized)
				return
			}

			id, _ := IdentityFromContext(r.Context())
			if id.RemoteAddr == "" {
				id.RemoteAddr = RemoteAddr(r)
			}
			id.User = CallerSecret
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Authorized reports whether r carries "Bearer <secret>".
func Authorized(r *http.Request, secret string) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
