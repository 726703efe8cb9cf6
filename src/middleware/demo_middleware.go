package middleware

import (
	"net/http"
)

// DemoModeMiddleware makes the API read-only, except for the webhook receivers
// so a demo deployment still shows live ingestion.
func DemoModeMiddleware(isDemo bool) func(http.Handler) http.Handler {
	allowedPosts := map[string]bool{
		"/api/monzo/webhook": true,
		"/api/plaid/webhook": true,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isDemo && r.Method != http.MethodGet && r.Method != http.MethodOptions {
				if r.Method == http.MethodPost && allowedPosts[r.URL.Path] {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "Demo mode: only GET requests are allowed", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
