package middleware

import "net/http"

var (
	secureHeaders = map[string]string{
		"Referrer-Policy":        "strict-origin-when-cross-origin",
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Permissions-Policy":     "camera=(), microphone=(), geolocation=()",
	}
	// Task snapshots change every second and must never be served from an
	// intermediate cache.
	noStoreHeaders = map[string]string{
		"Cache-Control": "no-store, no-cache, must-revalidate, max-age=0",
		"Pragma":        "no-cache",
		"Expires":       "0",
	}
)

func withHeaders(set map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range set {
				h.Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecureHeaders adds the browser hardening headers to every response.
func SecureHeaders(next http.Handler) http.Handler { return withHeaders(secureHeaders)(next) }

// NoStore disables caching.
func NoStore(next http.Handler) http.Handler { return withHeaders(noStoreHeaders)(next) }
