package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cloudgate/internal/platform/metrics"
	dErrors "cloudgate/pkg/domain-errors"
	"cloudgate/pkg/platform/httputil"
	"cloudgate/pkg/requestcontext"
)

// idleBucketTTL is how long an unused per-client bucket is kept.
const idleBucketTTL = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per client IP. Idle buckets are swept
// inline while the limiter is in use; it starts no goroutines.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
	disabled  bool
}

// RateLimitOption configures a RateLimiter.
type RateLimitOption func(*RateLimiter)

// WithRateLimitDisabled turns the limiter into a pass-through.
func WithRateLimitDisabled(disabled bool) RateLimitOption {
	return func(l *RateLimiter) {
		l.disabled = disabled
	}
}

// WithRateLimitMetrics counts rejected requests on m.
func WithRateLimitMetrics(m *metrics.Metrics) RateLimitOption {
	return func(l *RateLimiter) {
		l.metrics = m
	}
}

// WithRateLimitClock overrides the clock used for bucket expiry.
func WithRateLimitClock(now func() time.Time) RateLimitOption {
	return func(l *RateLimiter) {
		l.now = now
	}
}

// NewRateLimiter allows perSecond requests per client with the given burst.
func NewRateLimiter(perSecond float64, burst int, logger *slog.Logger, opts ...RateLimitOption) *RateLimiter {
	l := &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// Allow reports whether the client may proceed.
func (l *RateLimiter) Allow(clientIP string) bool {
	if clientIP == "" {
		clientIP = "unknown"
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > idleBucketTTL {
		for ip, b := range l.buckets {
			if now.Sub(b.lastSeen) > idleBucketTTL {
				delete(l.buckets, ip)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[clientIP]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[clientIP] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the limit with 429. Apply after
// metadata.ClientMetadata so the client IP is on the context.
func (l *RateLimiter) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.disabled {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			if !l.Allow(ip) {
				l.metrics.IncRateLimited(route)
				l.logger.WarnContext(ctx, "rate limit exceeded",
					"route", route,
					"request_id", GetRequestID(ctx),
				)
				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
				httputil.WriteError(w, dErrors.New(dErrors.CodeTooManyRequests, "too many requests, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *RateLimiter) retryAfterSeconds() int {
	if l.limit <= 0 {
		return 60
	}
	secs := int(1 / float64(l.limit))
	if secs < 1 {
		return 1
	}
	return secs
}
