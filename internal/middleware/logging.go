package middleware

import (
	"net/http"
	"time"

	"github.com/soaringjerry/whenwhy/internal/logger"
)

// Logging writes one line per request. Health checks log at debug level.
func Logging(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			kv := []any{
				"request_id", RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			switch {
			case r.URL.Path == "/api/health":
				log.Debug("request", kv...)
			case sw.status >= 500:
				log.Error("request", kv...)
			default:
				log.Info("request", kv...)
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
