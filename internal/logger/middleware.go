package logger

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	size, err := w.ResponseWriter.Write(b)
	w.size += size
	return size, err
}

// Hijack implements the http.Hijacker interface
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("responseWriter doesn't support hijacking")
}

// Flush implements the http.Flusher interface
func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// HTTPMiddleware creates a logging middleware for HTTP requests
func HTTPMiddleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLogger := logger.WithHTTPRequest(r)
			reqLogger.Debug("Request received")

			wrapped := &responseWriter{
				ResponseWriter: w,
				status:         200,
			}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			respLogger := reqLogger.WithDuration(duration).WithFields(map[string]interface{}{
				"status": wrapped.status,
				"size":   wrapped.size,
			})

			switch {
			case wrapped.status >= 500:
				respLogger.Error("Request failed with server error")
			case wrapped.status >= 400:
				respLogger.Warn("Request failed with client error")
			default:
				respLogger.Info("Request completed")
			}

			if duration > 1*time.Second {
				respLogger.Warnf("Slow request detected: %v", duration)
			}
		})
	}
}

// SSEMiddleware creates a logging middleware specifically for SSE endpoints.
// Unlike HTTPMiddleware it logs connection open and close rather than a
// single request/response pair, since SSE connections are long-lived.
func SSEMiddleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			sseLogger := logger.WithHTTPRequest(r).WithField("connection_type", "sse")
			sseLogger.Info("SSE connection initiated")

			wrapped := &responseWriter{
				ResponseWriter: w,
				status:         200,
			}

			next.ServeHTTP(wrapped, r)

			sseLogger.WithDuration(time.Since(start)).Info("SSE connection closed")
		})
	}
}
