package middleware

import (
	"net/http"
	"strconv"
	"time"

	"enrichment-svc/pkg/logger"
	"enrichment-svc/pkg/metrics"
	"enrichment-svc/pkg/ratelimit"
)

// RateLimit gates inbound requests through limiter, keyed by the
// caller's address. A limiter check failure fails open: the request is
// allowed through rather than rejected on an internal error.
func RateLimit(limiter ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Log.Warn("rate limit check failed", "error", err, "key", key)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				metrics.Get().RecordHTTPRequest(r.URL.Path, http.StatusTooManyRequests, 0)
				info, infoErr := limiter.GetInfo(r.Context(), key)
				if infoErr == nil && info != nil {
					w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
					w.Header().Set("X-RateLimit-Remaining", "0")
					w.Header().Set("X-RateLimit-Reset", info.ResetAt.Format(time.RFC3339))
				}
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return "ip:" + fwd
	}
	return "ip:" + r.RemoteAddr
}
