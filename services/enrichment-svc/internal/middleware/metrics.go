package middleware

import (
	"net/http"
	"time"

	"enrichment-svc/pkg/metrics"
)

// Metrics records one HTTP request observation per call into the
// process-wide Prometheus registry.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusCapture{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		metrics.Get().RecordHTTPRequest(r.URL.Path, sw.status, time.Since(start))
	})
}
