// Package middleware provides HTTP middleware for the engine's server.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RequestLogger returns middleware that logs HTTP requests with status and
// duration. Progress polls and static assets log at DEBUG so the dashboard's
// once-a-second polling does not drown the log; everything else logs at INFO.
// Pass nil logger to disable logging.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			log := logger.Info
			if quietPath(r.URL.Path) {
				log = logger.Debug
			}
			log("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// quietPath reports whether a path is polled or fetched often enough that
// per-request INFO logging would be noise.
func quietPath(path string) bool {
	return strings.HasPrefix(path, "/ui/static/") ||
		strings.HasPrefix(path, "/api/progress") ||
		path == "/health"
}

// responseWriter captures the status code and guards against handlers that
// call WriteHeader more than once.
type responseWriter struct {
	http.ResponseWriter
	statusCode    int
	headerWritten bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.headerWritten {
		return
	}
	rw.statusCode = code
	rw.headerWritten = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.headerWritten {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
