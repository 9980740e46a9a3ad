package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"
)

// statusRecorder captures the status written on the wire and, separately,
// the outcome a handler wants counted (they differ in legacy error mode).
type statusRecorder struct {
	http.ResponseWriter
	status      int
	outcome     int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func setOutcome(w http.ResponseWriter, status int) {
	if rec, ok := w.(*statusRecorder); ok {
		rec.outcome = status
	}
}

// instrument records request count and latency for endpoint, logs the
// request and turns handler panics into a 500.
func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("http_panic_recovered",
					"endpoint", endpoint,
					"error", fmt.Sprintf("%v", p),
					"stack", string(debug.Stack()),
				)
				if !rec.wroteHeader {
					writeJSON(rec, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
				}
				rec.outcome = http.StatusInternalServerError
			}

			status := rec.outcome
			if status == 0 {
				status = rec.status
			}
			took := time.Since(start)
			s.metrics.ObserveRequest(endpoint, r.Method, status, took)
			s.logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", took.Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next(rec, r)
	})
}
