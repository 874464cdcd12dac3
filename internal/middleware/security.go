package middleware

import (
	"net/http"
	"strings"
)

// SecurityHeaders sets the response headers appropriate for a browser-facing
// relay API. Relay responses carry one-time flow events, so anything under
// /relay/ is marked uncacheable; intermediaries replaying a stale poll body
// would duplicate settlement signals.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")

			if strings.HasPrefix(r.URL.Path, "/relay/") {
				h.Set("Cache-Control", "no-store")
			}

			if r.TLS != nil {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
