package shield

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"

	"github.com/hazyhaar/weslplay/horosafe"
	"github.com/hazyhaar/weslplay/idgen"
	"github.com/hazyhaar/weslplay/kit"
)

var newRequestID = idgen.Prefixed("req_", idgen.Hex(6))

// RequestID assigns each request an id, taken from a well-formed incoming
// X-Request-ID header or generated, and stores it with a per-request logger
// derived from base in the context.
func RequestID(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if horosafe.ValidateIdentifier(id) != nil || len(id) > 64 {
				id = newRequestID()
			}
			w.Header().Set("X-Request-ID", id)

			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)
			ctx := kit.WithLogger(kit.WithRequestID(r.Context(), id), logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLog logs one line per request with status, size and duration,
// through the request logger.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		level := slog.LevelInfo
		if m.Code >= 500 {
			level = slog.LevelError
		}
		kit.Logger(r.Context()).Log(r.Context(), level, "request",
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration.Round(time.Microsecond),
		)
	})
}
