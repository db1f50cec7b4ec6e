package middleware

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/swiftsocket/internal/errors"
)

// AccessLog logs every request, raising the level for error responses
func AccessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create a response writer wrapper to capture status code
			rwWrapper := newResponseWriterWrapper(w)

			next.ServeHTTP(rwWrapper, r)

			logResponse(log, r, rwWrapper, time.Since(start))
		})
	}
}

// logResponse logs a finished request based on status code
func logResponse(log zerolog.Logger, r *http.Request, rw *responseWriterWrapper, elapsed time.Duration) {
	var event *zerolog.Event
	switch {
	case rw.hijacked:
		event = log.Debug()
	case rw.statusCode >= 500:
		event = log.Error()
	case rw.statusCode >= 400:
		event = log.Info()
	default:
		event = log.Debug()
	}

	event.
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Str("remote", r.RemoteAddr).
		Int("status", rw.statusCode).
		Bool("upgraded", rw.hijacked).
		Dur("elapsed", elapsed).
		Msg("Request handled")
}

// responseWriterWrapper wraps a http.ResponseWriter to capture the status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
	hijacked   bool
}

// newResponseWriterWrapper creates a new response writer wrapper
func newResponseWriterWrapper(w http.ResponseWriter) *responseWriterWrapper {
	return &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader captures the status code and passes it to the wrapped writer
func (rww *responseWriterWrapper) WriteHeader(code int) {
	rww.statusCode = code
	rww.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades through the wrapper
func (rww *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rww.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.Wrap(errors.ErrTransport, "response writer does not support hijacking")
	}
	conn, rw, err := hj.Hijack()
	if err == nil {
		rww.statusCode = http.StatusSwitchingProtocols
		rww.hijacked = true
	}
	return conn, rw, err
}
