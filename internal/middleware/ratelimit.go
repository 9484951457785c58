package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"genesis/internal/ratelimit"
)

type rateLimitResponse struct {
	Error             string `json:"error"`
	RemainingRequests int    `json:"remaining_requests"`
	RetryAfter        int    `json:"retry_after"`
}

// RateLimit gates the wrapped handler with a per-client sliding window. The
// client is identified by its forwarded or remote IP address.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	limit := strconv.Itoa(limiter.MaxRequests())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIPForRateLimit(r)
			w.Header().Set("X-RateLimit-Limit", limit)
			if !limiter.Allow(ip) {
				retry := int(math.Ceil(limiter.RetryAfter(ip).Seconds()))
				if retry < 1 {
					retry = int(limiter.Window().Seconds())
				}
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(rateLimitResponse{
					Error:             "Rate limit exceeded",
					RemainingRequests: limiter.Remaining(ip),
					RetryAfter:        retry,
				})
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(ip)))
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
