package router

import (
	"net/http"

	"github.com/dtroode/zklogin-recovery/internal/api/http/handler"
	"github.com/dtroode/zklogin-recovery/internal/api/http/middleware"
	"github.com/dtroode/zklogin-recovery/internal/logger"
	"github.com/dtroode/zklogin-recovery/internal/metrics"
	"github.com/dtroode/zklogin-recovery/internal/ratelimit"
)

// Router wires the derivation endpoints and their middleware.
type Router struct {
	service    handler.DerivationService
	metrics    *metrics.Metrics
	limiter    *ratelimit.Limiter
	trustProxy bool
	logger     *logger.Logger
}

// New creates a Router. limiter may be nil to disable rate limiting.
func New(
	service handler.DerivationService,
	m *metrics.Metrics,
	limiter *ratelimit.Limiter,
	trustProxy bool,
	logger *logger.Logger,
) *Router {
	return &Router{
		service:    service,
		metrics:    m,
		limiter:    limiter,
		trustProxy: trustProxy,
		logger:     logger,
	}
}

// Register builds the HTTP handler tree.
func (r *Router) Register() http.Handler {
	logging := middleware.NewLogging(r.logger)
	observe := middleware.NewMetrics(r.metrics)
	limit := middleware.NewRateLimit(r.limiter, r.metrics, r.trustProxy, r.logger)
	h := handler.NewDerivation(r.service, r.logger)

	mux := http.NewServeMux()

	post := func(route string, fn http.HandlerFunc, limited bool) {
		var next http.Handler = fn
		if limited {
			next = limit.Handle(route, next)
		}
		mux.Handle(route, observe.Handle(route, middleware.Method(http.MethodPost, next)))
	}

	post("/nonce", h.Nonce, false)
	post("/salt", h.Salt, true)
	post("/zk-addr", h.ZkAddr, true)

	mux.Handle("/healthz", middleware.Method(http.MethodGet, http.HandlerFunc(h.Health)))
	if r.metrics != nil {
		mux.Handle("/metrics", middleware.Method(http.MethodGet, r.metrics.Handler()))
	}

	return logging.Handle(mux)
}
