package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/agropredict/pkg/metrics"
)

// MetricsMiddleware records request count, latency and error class for
// endpoint. A caller supplied X-Request-ID is echoed on the response.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if id := r.Header.Get(RequestIDHeader); id != "" {
			w.Header().Set(RequestIDHeader, id)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, float64(time.Since(start).Microseconds())/1000)

		if rec.status >= http.StatusBadRequest {
			class := getErrorType(rec.status)
			metrics.RecordErrorByComponent("http", class)
			metrics.RecordErrorByType(class, getErrorSeverity(rec.status))
		}
	}
}

// getErrorType maps a status to the error class used in metrics labels.
func getErrorType(status int) string {
	switch status {
	case http.StatusConflict:
		return "superseded"
	case http.StatusBadGateway:
		return "upstream"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusTooManyRequests:
		return "rate_limit"
	case http.StatusNotFound:
		return "not_found"
	}
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error"
	case status >= http.StatusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// getErrorSeverity ranks server faults above caller mistakes. A superseded
// round is expected traffic.
func getErrorSeverity(status int) string {
	switch {
	case status == http.StatusConflict:
		return "low"
	case status >= http.StatusInternalServerError:
		return "high"
	case status >= http.StatusBadRequest:
		return "medium"
	default:
		return "low"
	}
}

// statusRecorder remembers the status written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}
