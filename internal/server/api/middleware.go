package api

import (
	"net/http"
	"strings"
	"time"
)

// slowRequestThreshold is the duration above which requests are logged at
// WARN level. Event streams are exempt.
const slowRequestThreshold = time.Second

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the Flusher underneath.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// logRequests logs every request with its status and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		streaming := strings.HasPrefix(rec.Header().Get("Content-Type"), "text/event-stream")
		switch {
		case rec.status >= http.StatusInternalServerError:
			s.logger.Warn(r.Context(), "request failed", attrs...)
		case duration > slowRequestThreshold && !streaming:
			s.logger.Warn(r.Context(), "slow request", attrs...)
		default:
			s.logger.Debug(r.Context(), "request completed", attrs...)
		}
	})
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeErrorString(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if _, err := s.deps.Auth.Verify(token); err != nil {
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
