package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/platinummonkey/andobill/pkg/httputil"
	"github.com/platinummonkey/andobill/pkg/observability"
	"github.com/platinummonkey/andobill/pkg/rbac"
	"github.com/platinummonkey/andobill/pkg/throttle"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 600, WindowDuration: time.Minute}
}

// RateLimitMiddleware caps request rates per user, or per address for
// anonymous requests. The counters live in a throttle.Limiter so they are
// shared across instances when it is Redis-backed.
type RateLimitMiddleware struct {
	limiter throttle.Limiter
	config  RateLimitConfig
	logger  *observability.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(limiter throttle.Limiter, config RateLimitConfig, logger *observability.Logger) *RateLimitMiddleware {
	if config.RequestsPerWindow <= 0 || config.WindowDuration <= 0 {
		config = DefaultRateLimitConfig()
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &RateLimitMiddleware{limiter: limiter, config: config, logger: logger.WithField("component", "ratelimit")}
}

func rateLimitKey(r *http.Request) string {
	if g := rbac.FromContext(r.Context()); g != nil {
		return fmt.Sprintf("api|user:%d", g.UserID())
	}
	return "api|ip:" + httputil.ClientIP(r)
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := rateLimitKey(r)

		hits, err := m.limiter.Hit(ctx, key, m.config.WindowDuration)
		if err != nil {
			// fail open
			m.logger.WithError(err).Warn("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		remaining := m.config.RequestsPerWindow - hits
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.config.RequestsPerWindow))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if hits > m.config.RequestsPerWindow {
			wait, err := m.limiter.AvailableIn(ctx, key)
			if err != nil || wait <= 0 {
				wait = m.config.WindowDuration
			}
			httputil.WriteTooManyRequests(w, wait, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
