package middleware

import (
	"net/http"
	"strings"
)

const guestKeyHeader = "X-Guest-Key"

// GuestKey lifts the anonymous cart key header into the request context. The
// storefront generates the key client side and sends it on every cart call
// until the visitor logs in.
func GuestKey() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(guestKeyHeader))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithGuestKey(r.Context(), key)))
		})
	}
}
