package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// apiKeyHeader is accepted as an alternative to the Authorization header
// for bot clients that cannot set a bearer scheme.
const apiKeyHeader = "X-API-Key"

// BearerAuth rejects requests that do not carry token, either as
// "Authorization: Bearer <token>" or in the X-API-Key header. An empty
// token rejects everything.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || !validToken(presentedToken(r), token) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="fbaboss"`)
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedToken(r *http.Request) string {
	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return r.Header.Get(apiKeyHeader)
}

func validToken(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
