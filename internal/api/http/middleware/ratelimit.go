package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dtroode/zklogin-recovery/internal/api/http/handler"
	"github.com/dtroode/zklogin-recovery/internal/logger"
	"github.com/dtroode/zklogin-recovery/internal/metrics"
	"github.com/dtroode/zklogin-recovery/internal/ratelimit"
)

// RateLimit rejects clients that exceed their token bucket.
type RateLimit struct {
	limiter    *ratelimit.Limiter
	metrics    *metrics.Metrics
	trustProxy bool
	logger     *logger.Logger
	now        func() time.Time
}

// NewRateLimit creates the middleware. With trustProxy the first
// X-Forwarded-For address identifies the client.
func NewRateLimit(limiter *ratelimit.Limiter, m *metrics.Metrics, trustProxy bool, logger *logger.Logger) *RateLimit {
	return &RateLimit{
		limiter:    limiter,
		metrics:    m,
		trustProxy: trustProxy,
		logger:     logger,
		now:        time.Now,
	}
}

// Handle applies the limit to next.
func (rl *RateLimit) Handle(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := rl.clientKey(r)
		if !rl.limiter.Allow(client, rl.now()) {
			rl.logger.Debug("HTTP request rate limited", "client", client, "path", r.URL.Path)
			rl.metrics.ObserveRateLimited(route)
			w.Header().Set("Retry-After", "1")
			handler.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimit) clientKey(r *http.Request) string {
	if rl.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
