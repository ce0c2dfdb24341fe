package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenHeader is accepted in place of an Authorization header by clients
// that cannot set one, such as browser uploads behind a proxy.
const TokenHeader = "X-DataViz-Token"

// BearerAuth rejects requests that do not present token.
func BearerAuth(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := presentedToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="dataviz"`)
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedToken(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, tok, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}
		return strings.TrimSpace(tok), true
	}
	if tok := r.Header.Get(TokenHeader); tok != "" {
		return tok, true
	}
	return "", false
}
