package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/llamawrapper/sitepanel/internal/config"
)

// KeyCookie carries an admin key for the page's own forms. The dashboard
// login sets it when an admin key is entered.
const KeyCookie = "sitepanel_key"

// Auth returns middleware that requires an admin key on mutating requests.
// Reads are never gated, nor are posts to the exempt paths.
func Auth(cfg config.AuthConfig, exempt ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		skip[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || !isMutating(r) || skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if !ValidKey(cfg.AdminKeys, extractAPIKey(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":{"message":"Invalid or missing admin key","type":"authentication_error","code":"invalid_api_key"}}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isMutating(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// ValidKey reports whether key is one of keys, comparing in constant time.
func ValidKey(keys []string, key string) bool {
	if key == "" {
		return false
	}
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func extractAPIKey(r *http.Request) string {
	// Check Authorization: Bearer <key>
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if c, err := r.Cookie(KeyCookie); err == nil {
		return c.Value
	}
	return ""
}
