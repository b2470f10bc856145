// Package shield provides the HTTP middleware stack of the playground
// server: security headers, body limits, request ids with per-request
// loggers and an access log.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(logger, shield.DefaultHeaders()) {
//	    r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"
)

// DefaultStack returns the standard middleware, outermost first:
// RequestID, AccessLog, SecurityHeaders, MaxBody.
func DefaultStack(logger *slog.Logger, headers HeaderConfig) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		RequestID(logger),
		AccessLog,
		SecurityHeaders(headers),
		MaxBody(DefaultMaxBody),
	}
}
