package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rajaaravindrakoti2006-hash/doctor/internal/platform/auth"
)

// RateLimitConfig bounds how fast one caller may hit the API.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL drops buckets of callers not seen for this long. Zero keeps them.
	IdleTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
		IdleTTL:           10 * time.Minute,
	}
}

type tokenBucket struct {
	tokens   float64
	lastSeen time.Time
}

// limiter keeps one token bucket per caller.
type limiter struct {
	mu        sync.Mutex
	cfg       RateLimitConfig
	buckets   map[string]*tokenBucket
	now       func() time.Time
	lastSweep time.Time
}

func newLimiter(cfg RateLimitConfig, now func() time.Time) *limiter {
	return &limiter{cfg: cfg, buckets: make(map[string]*tokenBucket), now: now, lastSweep: now()}
}

// take spends one token for key. When the bucket is empty it returns the
// number of seconds until the next token.
func (l *limiter) take(key string) (ok bool, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, found := l.buckets[key]
	if !found {
		b = &tokenBucket{tokens: float64(l.cfg.BurstSize), lastSeen: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(float64(l.cfg.BurstSize), b.tokens+now.Sub(b.lastSeen).Seconds()*l.cfg.RequestsPerSecond)
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.cfg.RequestsPerSecond <= 0 {
		return false, 1
	}
	return false, int(math.Ceil((1 - b.tokens) / l.cfg.RequestsPerSecond))
}

func (l *limiter) sweep(now time.Time) {
	if l.cfg.IdleTTL <= 0 || now.Sub(l.lastSweep) < l.cfg.IdleTTL {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.cfg.IdleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// rateLimitKey identifies the caller: the authenticated user when there is
// one, the client address otherwise.
func rateLimitKey(c echo.Context) string {
	if id := auth.UserIDFromContext(c.Request().Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + c.RealIP()
}

// RateLimit rejects callers that exceed cfg with 429. It must run after the
// auth middleware for per-user limits to apply.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(newLimiter(cfg, time.Now))
}

func rateLimit(l *limiter) echo.MiddlewareFunc {
	limit := strconv.FormatFloat(l.cfg.RequestsPerSecond, 'f', -1, 64)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			ok, retryAfter := l.take(rateLimitKey(c))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
