package middleware

import (
	"net/http"
	"time"

	"github.com/dtroode/zklogin-recovery/internal/metrics"
)

// Metrics records request counts and latency per route.
type Metrics struct {
	metrics *metrics.Metrics
}

func NewMetrics(m *metrics.Metrics) *Metrics {
	return &Metrics{metrics: m}
}

// Handle observes next under the route label.
func (m *Metrics) Handle(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := record(w)
		next.ServeHTTP(rec, r)
		m.metrics.ObserveRequest(route, rec.status, time.Since(start))
	})
}
