package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/delegatewatch/delegatewatch/internal/config"
)

// APIKeyAuth validates API key authentication for /api/v1/*.
//
// When enabled (an API key is configured), requests must carry a valid
// key via the configured header (default X-Api-Key) or
// Authorization: Bearer <key>. /health and /version stay public so
// probes and setup tooling work without credentials.
type APIKeyAuth struct {
	keys    map[string]bool
	header  string
	enabled bool
}

// NewAPIKeyAuth builds API key auth from config. The configured key
// value may be a comma-separated list to allow key rotation.
func NewAPIKeyAuth(cfg config.AuthConfig) *APIKeyAuth {
	auth := &APIKeyAuth{
		keys:   make(map[string]bool),
		header: cfg.APIKeyHeader,
	}
	for _, key := range strings.Split(cfg.APIKey, ",") {
		if key = strings.TrimSpace(key); key != "" {
			auth.keys[key] = true
			auth.enabled = true
		}
	}
	return auth
}

// Enabled returns whether API key auth is active.
func (a *APIKeyAuth) Enabled() bool { return a.enabled }

// Middleware returns an http.Handler middleware that enforces API key auth.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := a.extractKey(r)
		if key == "" {
			respondUnauthorized(w, "API key required. Set "+a.header+" or Authorization: Bearer <key>.")
			return
		}
		if !a.validateKey(key) {
			respondUnauthorized(w, "Invalid API key.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *APIKeyAuth) validateKey(candidate string) bool {
	for key := range a.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func (a *APIKeyAuth) extractKey(r *http.Request) string {
	if key := r.Header.Get(a.header); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func isPublicPath(path string) bool {
	return path == "/health" || path == "/version"
}

func respondUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="delegatewatch"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": msg,
	})
}
