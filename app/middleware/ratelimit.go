package appMiddleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/FACorreiaa/go-account-service/internal/api"
)

// RateLimiter counts requests per key in fixed windows. Counters live in an
// in-memory cache and expire together with their window.
type RateLimiter struct {
	counters *cache.Cache
	limit    int
	window   time.Duration
	logger   *slog.Logger
}

func NewRateLimiter(limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		counters: cache.New(window, 2*window),
		limit:    limit,
		window:   window,
		logger:   logger,
	}
}

// Allow registers one hit for key. When the limit is exceeded it returns false
// and the time left until the window resets.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	if err := rl.counters.Add(key, 1, rl.window); err == nil {
		return true, 0
	}

	n, err := rl.counters.IncrementInt(key, 1)
	if err != nil {
		// The window expired between Add and IncrementInt.
		rl.counters.Set(key, 1, rl.window)
		return true, 0
	}
	if n <= rl.limit {
		return true, 0
	}

	_, expiresAt, found := rl.counters.GetWithExpiration(key)
	if !found {
		return true, 0
	}
	return false, time.Until(expiresAt)
}

// Middleware rejects clients over the limit with 429 Too Many Requests.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r) + "|" + r.URL.Path
		allowed, retryAfter := rl.Allow(key)
		if !allowed {
			rl.logger.WarnContext(r.Context(), "Rate limit exceeded",
				slog.String("client", clientIP(r)),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			api.ErrorResponse(w, r, http.StatusTooManyRequests, "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP expects chi's RealIP middleware to have normalized RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit builds a per client limiter allowing requests hits per window.
func RateLimit(requests int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return NewRateLimiter(requests, window, logger).Middleware
}
