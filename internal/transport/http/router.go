package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	"cloudgate/internal/platform/middleware"
	"cloudgate/pkg/platform/middleware/metadata"
	"cloudgate/pkg/platform/middleware/requesttime"
)

// MetricsURL exposes the Prometheus registry.
const MetricsURL = "/metrics"

// RouterConfig collects the handlers and middleware settings for NewRouter.
type RouterConfig struct {
	Logger         *slog.Logger
	Auth           *AuthHandler
	Account        *AccountHandler
	Health         HealthChecker
	Metrics        http.Handler
	SessionCookie  middleware.SessionCookieConfig
	RequestTimeout time.Duration
	// TrustedProxies may set the forwarded client address.
	TrustedProxies []netip.Prefix
}

// NewRouter builds the chi router. Operational endpoints sit outside the
// session group so health checks never mint session cookies.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata(cfg.TrustedProxies))
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get(HealthURL, healthHandler(cfg.Health, cfg.Logger))
	if cfg.Metrics != nil {
		r.Handle(MetricsURL, cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Language)
		r.Use(middleware.SessionCookie(cfg.SessionCookie, cfg.Logger))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, LandingPageURL, http.StatusFound)
		})
		if cfg.Auth != nil {
			cfg.Auth.Register(r)
		}
		if cfg.Account != nil {
			cfg.Account.Register(r)
		}
	})

	return r
}

func requestID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

// rateLimited returns the limiter's middleware for route, or a pass-through
// when no limiter is configured.
func rateLimited(limiter *middleware.RateLimiter, route string) func(http.Handler) http.Handler {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return limiter.Middleware(route)
}
