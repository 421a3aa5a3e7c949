package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/tally/pkg/metrics"
)

// failure labels a non-2xx answer for the error counters.
type failure struct {
	kind     string
	severity string
}

// Statuses the handlers of this package produce. A 409 is a stat shortfall
// the caller asked to be told about, and a 503 means intake has stopped.
var failures = map[int]failure{
	http.StatusBadRequest:         {kind: "bad_request", severity: "low"},
	http.StatusNotFound:           {kind: "not_found", severity: "low"},
	http.StatusConflict:           {kind: "shortfall", severity: "info"},
	http.StatusTooManyRequests:    {kind: "queue_full", severity: "medium"},
	http.StatusServiceUnavailable: {kind: "unavailable", severity: "high"},
}

func classify(status int) (failure, bool) {
	if status < http.StatusBadRequest {
		return failure{}, false
	}
	if f, ok := failures[status]; ok {
		return f, true
	}
	if status >= http.StatusInternalServerError {
		return failure{kind: "server_error", severity: "critical"}, true
	}
	return failure{kind: "client_error", severity: "low"}, true
}

// Instrument records request counts, latency and classified failures for
// one route.
func Instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)

		ms := float64(time.Since(start).Milliseconds())
		code := strconv.Itoa(sw.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, ms)

		f, failed := classify(sw.status)
		if !failed {
			return
		}
		metrics.RecordErrorByEndpoint(endpoint, r.Method, f.kind)
		metrics.RecordErrorByType(f.kind, f.severity)
		metrics.RecordErrorLatency("http", f.kind, ms)
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
