package shield

import (
	"net/http"
	"slices"
	"strings"
)

// HeaderConfig tunes the response headers of the playground API.
type HeaderConfig struct {
	// AllowedOrigins lists the UI origins granted cross-origin access
	// ("https://play.example"). Empty means same origin only.
	AllowedOrigins []string
	// CacheControl is set on every response; handlers may override it.
	CacheControl string
}

// DefaultHeaders serves same-origin clients and disables caching, which
// suits session state. Snapshot responses set their own long-lived policy.
func DefaultHeaders() HeaderConfig {
	return HeaderConfig{CacheControl: "no-store"}
}

// OriginAllowed reports whether origin is one of the configured UI origins.
func (c HeaderConfig) OriginAllowed(origin string) bool {
	return origin != "" && slices.ContainsFunc(c.AllowedOrigins, func(o string) bool {
		return strings.EqualFold(strings.TrimRight(o, "/"), origin)
	})
}

// SecurityHeaders sets the API header policy and answers CORS preflights
// from allowed origins. Responses are JSON or text, never documents, so the
// content policy forbids everything.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	corp := "same-origin"
	if len(cfg.AllowedOrigins) > 0 {
		corp = "cross-origin"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			// Share locations carry snapshot handles.
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cross-Origin-Resource-Policy", corp)
			if cfg.CacheControl != "" {
				h.Set("Cache-Control", cfg.CacheControl)
			}

			origin := r.Header.Get("Origin")
			if !cfg.OriginAllowed(origin) {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
