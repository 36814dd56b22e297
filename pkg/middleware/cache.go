package middleware

import (
	"net/http"
)

// NoStore marks responses as uncacheable. Mounted on routes whose bodies
// carry tokens or private profile data.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}
